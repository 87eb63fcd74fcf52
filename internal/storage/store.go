package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/san-kum/drop/internal/dynamo"
	"github.com/san-kum/drop/internal/store"
)

const (
	metadataFile = "metadata.json"
	statesFile   = "states.csv"
)

var ErrClosed = errors.New("recorder closed")

var header = []string{"time", "id", "px", "py", "pz", "vx", "vy", "vz"}

// Store lists and reads recorded sessions under a base directory.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Started    time.Time          `json:"started"`
	Finished   time.Time          `json:"finished,omitempty"`
	StepTime   float64            `json:"step_time"`
	Integrator string             `json:"integrator"`
	Every      int                `json:"record_every"`
	Steps      uint64             `json:"steps"`
	Rows       uint64             `json:"rows"`
	SimTime    float64            `json:"sim_time"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// Recorder appends every Nth published snapshot of one session to
// states.csv, one row per object.
type Recorder struct {
	mu     sync.Mutex
	dir    string
	meta   RunMetadata
	file   *os.File
	w      *csv.Writer
	seen   uint64
	closed bool
}

// Start creates a new session directory and opens its CSV file.
func (s *Store) Start(stepTime float64, integrator string, every int) (*Recorder, error) {
	if every < 1 {
		every = 1
	}
	now := time.Now()
	runID := fmt.Sprintf("run_%d", now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, err
	}

	r := &Recorder{
		dir: runDir,
		meta: RunMetadata{
			ID:         runID,
			Started:    now,
			StepTime:   stepTime,
			Integrator: integrator,
			Every:      every,
		},
	}
	if err := r.writeMetadata(); err != nil {
		return nil, err
	}

	f, err := os.Create(filepath.Join(runDir, statesFile))
	if err != nil {
		return nil, err
	}
	r.file = f
	r.w = csv.NewWriter(f)
	if err := r.w.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Recorder) ID() string { return r.meta.ID }

// Dir is the session directory holding states.csv and metadata.json.
func (r *Recorder) Dir() string { return r.dir }

// Record appends snap if it falls on the sampling interval.
func (r *Recorder) Record(snap store.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	r.seen++
	r.meta.Steps = r.seen
	r.meta.SimTime = snap.Time
	if (r.seen-1)%uint64(r.meta.Every) != 0 {
		return nil
	}

	ts := strconv.FormatFloat(snap.Time, 'f', 6, 64)
	for i, id := range snap.IDs {
		row := make([]string, 0, len(header))
		row = append(row, ts, strconv.Itoa(id))
		for _, val := range snap.State[i*dynamo.Stride : (i+1)*dynamo.Stride] {
			row = append(row, strconv.FormatFloat(val, 'f', 6, 64))
		}
		if err := r.w.Write(row); err != nil {
			return err
		}
		r.meta.Rows++
	}
	r.w.Flush()
	return r.w.Error()
}

// Close flushes the CSV file and finalizes the session metadata.
func (r *Recorder) Close(metrics map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	r.w.Flush()
	werr := r.w.Error()
	cerr := r.file.Close()

	r.meta.Finished = time.Now()
	r.meta.Metrics = metrics
	return errors.Join(werr, cerr, r.writeMetadata())
}

func (r *Recorder) writeMetadata() error {
	metaFile, err := os.Create(filepath.Join(r.dir, metadataFile))
	if err != nil {
		return err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	return enc.Encode(r.meta)
}

// List returns the metadata of every recorded session, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Started.Before(runs[j].Started) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Sample is one object row of states.csv.
type Sample struct {
	Time  float64
	ID    int
	State [dynamo.Stride]float64
}

// LoadSamples reads back the rows of a session for offline inspection.
func (s *Store) LoadSamples(runID string) ([]Sample, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, statesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(header)

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []Sample{}, nil
	}

	samples := make([]Sample, 0, len(records)-1)
	for _, record := range records[1:] {
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			continue
		}
		id, err := strconv.Atoi(record[1])
		if err != nil {
			continue
		}
		smp := Sample{Time: t, ID: id}
		for j := range smp.State {
			smp.State[j], err = strconv.ParseFloat(record[j+2], 64)
			if err != nil {
				break
			}
		}
		if err != nil {
			continue
		}
		samples = append(samples, smp)
	}
	return samples, nil
}
