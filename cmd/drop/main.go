package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/san-kum/drop/internal/automation"
	"github.com/san-kum/drop/internal/config"
	"github.com/san-kum/drop/internal/engine"
	"github.com/san-kum/drop/internal/integrators"
	"github.com/san-kum/drop/internal/metrics"
	"github.com/san-kum/drop/internal/monitor"
	"github.com/san-kum/drop/internal/storage"
	"github.com/san-kum/drop/internal/transport"
)

var (
	configFile string
	preset     string
	listen     string
	dataDir    string
	stepTime   float64
	odeMethod  string
	recordDir  string
	logLevel   string
	scriptFile string
	scenario   string
	objectID   int
	timeout    time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "drop",
		Short:         "real-time free-flight point mass simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&listen, "listen", config.DefaultListen, "engine address")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the engine",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}
	serveCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	serveCmd.Flags().Float64Var(&stepTime, "step", config.DefaultStepTime, "integration step in seconds")
	serveCmd.Flags().StringVar(&odeMethod, "method", config.DefaultODEMethod, "ode method ("+strings.Join(integrators.Names(), ", ")+")")
	serveCmd.Flags().StringVar(&recordDir, "record", "", "record published states under this directory")
	serveCmd.Flags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "log level")

	sendCmd := &cobra.Command{
		Use:   "send [command...]",
		Short: "send control commands and print the replies",
		RunE:  send,
	}
	sendCmd.Flags().StringVar(&scriptFile, "file", "", "read commands from a script, one per line")
	sendCmd.Flags().StringVar(&scenario, "scenario", "", "run a yaml scenario with expected replies")
	sendCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "reply timeout per command")

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "inspect the state broadcast",
		Args:  cobra.NoArgs,
		RunE:  runMonitor,
	}
	monitorCmd.Flags().IntVar(&objectID, "object", -1, "object id to trace (default first)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	runsCmd := &cobra.Command{
		Use:   "runs [run_id]",
		Short: "list recorded sessions or plot one",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listRuns,
	}
	runsCmd.Flags().StringVar(&dataDir, "data", ".drop", "recording directory")

	rootCmd.AddCommand(serveCmd, sendCmd, monitorCmd, presetsCmd, runsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves preset, then file, then explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s", preset)
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile, cfg)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Listen = listen
	}
	if flags.Changed("step") {
		cfg.StepTime = stepTime
	}
	if flags.Changed("method") {
		cfg.ODEMethod = odeMethod
	}
	if flags.Changed("record") {
		cfg.RecordDir = recordDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) *slog.Logger {
	lvl, err := cfg.Level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	col := metrics.New(reg,
		metrics.NewEnergy(cfg.Gravity),
		metrics.NewEnergyDrift(cfg.Gravity),
		metrics.NewStability(cfg.Bounds()),
	)

	hub := transport.NewHub(log.With("component", "transport"), cfg.PublishBuffer)
	hub.SetObserver(col)

	eng, err := engine.New(cfg, hub, log.With("component", "engine"))
	if err != nil {
		return err
	}
	eng.SetMetrics(col)

	var rec *storage.Recorder
	if cfg.RecordDir != "" {
		st := storage.New(cfg.RecordDir)
		if err := st.Init(); err != nil {
			return err
		}
		rec, err = st.Start(cfg.StepTime, cfg.ODEMethod, cfg.RecordEvery)
		if err != nil {
			return fmt.Errorf("start recording: %w", err)
		}
		if err := config.Save(filepath.Join(rec.Dir(), "config.yaml"), cfg); err != nil {
			rec.Close(nil)
			return fmt.Errorf("save run config: %w", err)
		}
		eng.SetRecorder(rec)
		log.Info("recording", "run", rec.ID(), "dir", cfg.RecordDir)
	}

	mux := http.NewServeMux()
	hub.Mount(mux, cfg.StatePath, cfg.ControlPath)
	mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srvErr := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", ln.Addr().String(),
			"state", cfg.StatePath, "control", cfg.ControlPath, "metrics", cfg.MetricsPath)
		srvErr <- srv.Serve(ln)
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := <-srvErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("transport failed", "err", err)
			srvErr <- err
			cancel()
		}
	}()

	runErr := eng.Run(runCtx)

	hub.Close()
	shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	srv.Shutdown(shutdownCtx)

	if rec != nil {
		if err := rec.Close(col.Values()); err != nil {
			log.Error("close recording", "err", err)
		}
	}

	select {
	case err := <-srvErr:
		return fmt.Errorf("transport: %w", err)
	default:
	}
	return runErr
}

func controlURL(cmd *cobra.Command) (string, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile, nil)
		if err != nil {
			return "", err
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("listen") {
		cfg.Listen = listen
	}
	return transport.Endpoint(cfg.Listen, cfg.ControlPath), nil
}

func readScript(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}

func send(cmd *cobra.Command, args []string) error {
	msgs := append([]string(nil), args...)
	if scriptFile != "" {
		lines, err := readScript(scriptFile)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		msgs = append(msgs, lines...)
	}
	var sc *automation.Scenario
	if scenario != "" {
		loaded, err := automation.LoadScenario(scenario)
		if err != nil {
			return fmt.Errorf("load scenario: %w", err)
		}
		sc = loaded
	}
	if len(msgs) == 0 && sc == nil {
		return errors.New("nothing to send")
	}

	url, err := controlURL(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	client, err := transport.Dial(ctx, url)
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()

	for _, msg := range msgs {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		reply, err := client.Request(ctx, []byte(msg))
		cancel()
		if err != nil {
			return fmt.Errorf("%s: %w", msg, err)
		}
		fmt.Printf("%s -> %s\n", msg, reply)
	}

	if sc != nil {
		fmt.Printf("scenario: %s\n", sc.Name)
		results, err := automation.RunScenario(context.Background(), sc, timed{client})
		for _, r := range results {
			fmt.Printf("  [%d] %s -> %s\n", r.Step, r.Sent, r.Reply)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// timed applies the per-command reply timeout to scenario requests.
type timed struct{ c *transport.Client }

func (t timed) Request(ctx context.Context, msg []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return t.c.Request(ctx, msg)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile, nil)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("listen") {
		cfg.Listen = listen
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames, err := transport.Subscribe(ctx, transport.Endpoint(cfg.Listen, cfg.StatePath))
	if err != nil {
		return err
	}

	p := tea.NewProgram(monitor.NewModel(frames, objectID))
	_, err = p.Run()
	return err
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTEP\tMETHOD\tRECORD EVERY\tBUFFER")
	for _, name := range config.ListPresets() {
		p := config.Presets[name]
		fmt.Fprintf(w, "%s\t%.4fs\t%s\t%d\t%d\n", name, p.StepTime, p.ODEMethod, p.RecordEvery, p.PublishBuffer)
	}
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if len(args) == 1 {
		return plotRun(st, args[0])
	}

	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tSTEPS\tSIM TIME\tDT\tINTEG\tROWS\tDRIFT")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2fs\t%.4fs\t%s\t%d\t%.3g\n",
			run.ID,
			run.Started.Format("2006-01-02 15:04:05"),
			run.Steps,
			run.SimTime,
			run.StepTime,
			run.Integrator,
			run.Rows,
			run.Metrics["energy_drift"],
		)
	}
	return w.Flush()
}

func plotRun(st *storage.Store, runID string) error {
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	samples, err := st.LoadSamples(runID)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("integrator: %s, step %.4fs\n", meta.Integrator, meta.StepTime)
	fmt.Printf("samples: %d\n\n", len(samples))

	altitude := make(map[int][]float64)
	for _, s := range samples {
		altitude[s.ID] = append(altitude[s.ID], s.State[2])
	}
	ids := make([]int, 0, len(altitude))
	for id := range altitude {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	const maxPlots = 6
	for i, id := range ids {
		if i == maxPlots {
			fmt.Printf("(%d more objects)\n", len(ids)-maxPlots)
			break
		}
		data := altitude[id]
		if len(data) < 2 {
			continue
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10), asciigraph.Width(70),
			asciigraph.Caption(fmt.Sprintf("object %d altitude", id)))
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}
