package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/san-kum/drop/internal/store"
)

const namespace = "drop"

// Collector exposes engine activity to prometheus. All methods are safe for
// concurrent use.
type Collector struct {
	ticks         prometheus.Counter
	stepSeconds   prometheus.Histogram
	objects       prometheus.Gauge
	simTime       prometheus.Gauge
	commands      *prometheus.CounterVec
	droppedWrites prometheus.Counter
	invalidStates prometheus.Counter
	publishErrors prometheus.Counter
	subscribers   prometheus.Gauge
	observed      *prometheus.GaugeVec

	mu      sync.Mutex
	metrics []Metric
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer, observers ...Metric) *Collector {
	c := &Collector{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Integration steps completed.",
		}),
		stepSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "step_duration_seconds",
			Help:    "Wall time of one locked integration step.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		objects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "objects",
			Help: "Live simulated objects.",
		}),
		simTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "simulation_time_seconds",
			Help: "Logical simulation clock.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "commands_total",
			Help: "Control commands handled, by letter and result.",
		}, []string{"cmd", "result"}),
		droppedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "dropped_state_writes_total",
			Help: "State writes discarded because the vector length changed.",
		}),
		invalidStates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "invalid_states_total",
			Help: "Steps that produced NaN or Inf.",
		}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "publish_errors_total",
			Help: "Broadcasts that could not be delivered to a subscriber.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "subscribers",
			Help: "Connected state subscribers.",
		}),
		observed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "observed",
			Help: "Session metrics computed from published snapshots.",
		}, []string{"metric"}),
		metrics: observers,
	}

	if reg != nil {
		reg.MustRegister(c.ticks, c.stepSeconds, c.objects, c.simTime, c.commands,
			c.droppedWrites, c.invalidStates, c.publishErrors, c.subscribers, c.observed)
	}
	return c
}

// ObserveStep records one completed step and feeds snap to every metric.
func (c *Collector) ObserveStep(d time.Duration, snap store.Snapshot) {
	c.ticks.Inc()
	c.stepSeconds.Observe(d.Seconds())
	c.objects.Set(float64(len(snap.IDs)))
	c.simTime.Set(snap.Time)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.metrics {
		m.Observe(snap)
		c.observed.WithLabelValues(m.Name()).Set(m.Value())
	}
}

// ObserveCommand counts a handled control message. Letter 0 marks input that
// was not a command.
func (c *Collector) ObserveCommand(letter byte, err error) {
	cmd := "unknown"
	if letter != 0 {
		cmd = string(letter)
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.commands.WithLabelValues(cmd, result).Inc()
}

func (c *Collector) DroppedWrite() { c.droppedWrites.Inc() }

func (c *Collector) InvalidState() { c.invalidStates.Inc() }

func (c *Collector) PublishError() { c.publishErrors.Inc() }

func (c *Collector) SetSubscribers(n int) { c.subscribers.Set(float64(n)) }

// Values returns the current value of every session metric by name.
func (c *Collector) Values() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.metrics))
	for _, m := range c.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}
