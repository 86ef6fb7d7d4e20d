package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/seesaw/internal/config"
	"github.com/san-kum/seesaw/internal/diag"
	"github.com/san-kum/seesaw/internal/experiment"
	"github.com/san-kum/seesaw/internal/hw"
	"github.com/san-kum/seesaw/internal/metrics"
	"github.com/san-kum/seesaw/internal/plant"
	"github.com/san-kum/seesaw/internal/rig"
	"github.com/san-kum/seesaw/internal/storage"
	"github.com/san-kum/seesaw/internal/telemetry"
	"github.com/san-kum/seesaw/internal/tui"
)

var (
	dataDir    string
	configFile string
	preset     string
	useHW      bool
	realtime   bool
	kp         float64
	ki         float64
	kd         float64
	setpoint   float64
	duration   float64
	seed       int64
	// live view
	frameRate int
	// serve
	httpAddr   string
	mqttBroker string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "seesaw",
		Short: "beam balance controller",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// glog reads its flags from the standard flag set
			flag.CommandLine.Parse(nil)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultDataDir, "data directory")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "arm the rig and record one run",
		Args:  cobra.NoArgs,
		RunE:  runOnce,
	}
	addRigFlags(runCmd)
	addTuningFlags(runCmd)
	runCmd.Flags().BoolVar(&realtime, "realtime", false, "pace the simulated rig in wall-clock time")
	runCmd.Flags().IntVar(&frameRate, "fps", 0, "draw the beam at this frame rate (0 disables)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the loop with HTTP, websocket and MQTT access",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}
	addRigFlags(serveCmd)
	addTuningFlags(serveCmd)
	serveCmd.Flags().StringVar(&httpAddr, "addr", "", "http listen address")
	serveCmd.Flags().StringVar(&mqttBroker, "mqtt", "", "mqtt broker host")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "interactive tuning dashboard",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	addRigFlags(liveCmd)
	addTuningFlags(liveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a run in the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE:  plotRun,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "step response and frequency analysis",
		Args:  cobra.MaximumNArgs(1),
		RunE:  analyzeRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run samples to CSV",
		Args:  cobra.MaximumNArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE:  exportJSON,
	}

	exportPNGCmd := &cobra.Command{
		Use:   "export-png [run_id] [file]",
		Short: "render run response and terms to PNG",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  exportPNG,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list tuning presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.ListPresets() {
				p, _ := config.GetPreset(name)
				fmt.Printf("  %-14s kp=%.2f ki=%.2f kd=%.2f setpoint=%.0f base=%d\n",
					name, p.Kp, p.Ki, p.Kd, p.Setpoint, p.Base)
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, serveCmd, liveCmd, listCmd, plotCmd, analyzeCmd, exportCSVCmd, exportJSONCmd, exportPNGCmd, presetsCmd)
	rootCmd.AddCommand(tuneCommands()...)

	err := rootCmd.Execute()
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}

func addRigFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&useHW, "hw", false, "drive the physical rig instead of the simulation")
	cmd.Flags().Int64Var(&seed, "seed", 1, "simulation random seed")
}

func addTuningFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&preset, "preset", "", "start from a named tuning preset")
	cmd.Flags().Float64Var(&kp, "kp", config.DefaultKp, "proportional gain")
	cmd.Flags().Float64Var(&ki, "ki", config.DefaultKi, "integral gain")
	cmd.Flags().Float64Var(&kd, "kd", config.DefaultKd, "derivative gain")
	cmd.Flags().Float64Var(&setpoint, "setpoint", config.DefaultSetpoint, "target sensor reading")
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDurationMs/1000, "run duration in seconds")
}

// loadConfig reads the config file, then applies the preset and any flags
// given explicitly on the command line, in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("data") || configFile == "" {
		cfg.Storage.DataDir = dataDir
	}

	if preset != "" {
		t, ok := config.GetPreset(preset)
		if !ok {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		cfg.Tuning = t
	}

	var p config.Patch
	if cmd.Flags().Changed("kp") {
		p.Kp = &kp
	}
	if cmd.Flags().Changed("ki") {
		p.Ki = &ki
	}
	if cmd.Flags().Changed("kd") {
		p.Kd = &kd
	}
	if cmd.Flags().Changed("setpoint") {
		p.Setpoint = &setpoint
	}
	if cmd.Flags().Changed("time") {
		ms := int(duration * 1000)
		p.DurationMs = &ms
	}
	cfg.Tuning = cfg.Tuning.Apply(p, cfg.Rig)

	if cmd.Flags().Changed("seed") {
		cfg.Sim.Seed = seed
	}
	return cfg, nil
}

// pacedClock runs the simulation in wall-clock time.
type pacedClock struct {
	*plant.Plant
}

func (c pacedClock) Sleep(d time.Duration) {
	time.Sleep(d)
	c.Plant.Sleep(d)
}

// openRig returns the hardware to drive, the source name recorded with each
// run and a function releasing it.
func openRig(cfg *config.Config, paced bool) (rig.Hardware, string, func(), error) {
	if !useHW {
		p := plant.FromConfig(cfg.Sim)
		h := p.Hardware()
		if paced {
			h.Clock = pacedClock{p}
		}
		return h, "sim", func() {}, nil
	}

	if err := hw.Open(); err != nil {
		return rig.Hardware{}, "", nil, fmt.Errorf("gpio: %w", err)
	}
	h, port, err := hw.Hardware(cfg.Hardware, cfg.Rig, rig.NewSystemClock())
	if err != nil {
		hw.Close()
		return rig.Hardware{}, "", nil, err
	}
	release := func() {
		port.Close()
		hw.Close()
	}
	return h, "hw:" + cfg.Hardware.SerialPort, release, nil
}

// runDone closes when the loop reports a finished run.
type runDone struct {
	done   chan struct{}
	result experiment.Result
}

func (r *runDone) OnStep(experiment.Status) {}

func (r *runDone) OnRunComplete(run int, res experiment.Result) {
	r.result = res
	close(r.done)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := diag.NewAsync(1024)
	defer log.Close()

	h, source, release, err := openRig(cfg, realtime || useHW || frameRate > 0)
	if err != nil {
		return err
	}
	defer release()

	loop, err := experiment.New(cfg, h, log)
	if err != nil {
		return err
	}
	store := storage.New(cfg.Storage.DataDir)
	rec := storage.NewRecorder(store, cfg.Rig, source, log)
	waiter := &runDone{done: make(chan struct{})}
	loop.AddObserver(rec)
	loop.AddObserver(waiter)
	if frameRate > 0 {
		live := tui.NewLiveRenderer(os.Stdout, cfg.Rig, frameRate)
		live.Start()
		defer live.Stop()
		loop.AddObserver(live)
	}

	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("arming %s...\n", source)
	if err := loop.Arm(ctx); err != nil {
		return err
	}
	if err := loop.Start(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	errc := make(chan error, 1)
	go func() { errc <- loop.Run(runCtx, nil) }()

	start := time.Now()
	select {
	case <-waiter.done:
	case <-ctx.Done():
	}
	cancel()
	if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("interrupted")
	}

	res := waiter.result
	fmt.Printf("completed in %v\n", time.Since(start).Round(time.Millisecond))
	if rec.LastID != "" {
		fmt.Printf("run id: %s\n", rec.LastID)
	}
	if res.Aborted {
		fmt.Println("aborted: outputs never reached the base command")
		return nil
	}
	fmt.Printf("samples: %d  trips: %d\n", len(res.Samples), res.Trips)
	fmt.Println("\nmetrics:")
	m := metrics.Evaluate(res.Samples)
	for _, name := range metrics.Sorted(m) {
		fmt.Printf("  %s: %.4f\n", name, m[name])
	}
	return nil
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Telemetry.HTTPAddr = httpAddr
	}
	if cmd.Flags().Changed("mqtt") {
		cfg.Telemetry.MQTT.Broker = mqttBroker
	}
	log := diag.NewAsync(4096)
	defer log.Close()

	h, source, release, err := openRig(cfg, true)
	if err != nil {
		return err
	}
	defer release()

	loop, err := experiment.New(cfg, h, log)
	if err != nil {
		return err
	}
	store := storage.New(cfg.Storage.DataDir)
	client := experiment.NewClient()
	hub := telemetry.NewHub(64, log)
	loop.AddObserver(hub)
	loop.AddObserver(storage.NewRecorder(store, cfg.Rig, source, log))

	ctx, stop := signalContext()
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.Telemetry.MQTT.Broker != "" {
		bridge := telemetry.NewBridge(nil, cfg.Telemetry.MQTT.Prefix, client, log)
		bridge.Connect(cfg.Telemetry.MQTT)
		defer bridge.Close()
		loop.AddObserver(bridge)
		g.Go(func() error {
			bridge.Run(ctx)
			return nil
		})
	}

	server := telemetry.NewServer(client, hub, store, log)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return server.ListenAndServe(ctx, cfg.Telemetry.HTTPAddr)
	})
	g.Go(func() error {
		if err := loop.Arm(ctx); err != nil {
			return err
		}
		fmt.Printf("armed %s, serving on %s\n", source, cfg.Telemetry.HTTPAddr)
		return loop.Run(ctx, client.Requests())
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := diag.NewAsync(1024)
	defer log.Close()

	h, source, release, err := openRig(cfg, true)
	if err != nil {
		return err
	}
	defer release()

	loop, err := experiment.New(cfg, h, log)
	if err != nil {
		return err
	}
	client := experiment.NewClient()
	feed := tui.NewFeed()
	loop.AddObserver(feed)
	loop.AddObserver(storage.NewRecorder(storage.New(cfg.Storage.DataDir), cfg.Rig, source, log))

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dash := tui.NewDashboard(client, feed, cfg.Rig, loop.Tuning())
	errc := make(chan error, 1)
	go func() {
		if err := loop.Arm(ctx); err != nil {
			errc <- err
			return
		}
		errc <- loop.Run(ctx, client.Requests())
	}()

	p := tea.NewProgram(dash, tea.WithAltScreen())
	_, err = p.Run()
	cancel()
	if lerr := <-errc; lerr != nil && !errors.Is(lerr, context.Canceled) && err == nil {
		err = lerr
	}
	return err
}
