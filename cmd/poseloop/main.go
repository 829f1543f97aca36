package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/poseloop/internal/automation"
	"github.com/san-kum/poseloop/internal/config"
	"github.com/san-kum/poseloop/internal/control"
	"github.com/san-kum/poseloop/internal/dynamo"
	"github.com/san-kum/poseloop/internal/experiment"
	"github.com/san-kum/poseloop/internal/optim"
	"github.com/san-kum/poseloop/internal/sim"
	"github.com/san-kum/poseloop/internal/storage"
	"github.com/san-kum/poseloop/internal/transport"
)

var (
	dataDir    string
	configFile string
	preset     string

	strategy   string
	integrator string
	ts         float64
	duration   float64
	seed       int64
	startX     float64
	startY     float64
	startTheta float64
	refX       float64
	refY       float64
	refTheta   float64
	kp         float64
	kw         float64
	dmin       float64
	rDistance  float64
	normalize  bool

	runLogEvery   int
	driveLogEvery int

	// drive
	sinkKind    string
	broker      string
	trustSource bool
	repeatStop  bool

	// sweep
	runs   int
	box    float64
	spread float64

	// param-sweep
	sweepParam    string
	sweepMin      float64
	sweepMax      float64
	sweepSteps    int
	saveScenarios bool

	// tune
	kpMin, kpMax float64
	kwMin, kwMax float64
	gridSize     int
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "poseloop",
		Short:        "pose regulation for differential-drive robots",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".poseloop", "data directory")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "simulate one maneuver and store it",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addScenarioFlags(runCmd)
	runCmd.Flags().IntVar(&runLogEvery, "log-every", 0, "log distance to goal every n ticks")

	driveCmd := &cobra.Command{
		Use:   "drive",
		Short: "close the loop over MQTT odometry and an MQTT or CAN actuator",
		Args:  cobra.NoArgs,
		RunE:  driveRobot,
	}
	addScenarioFlags(driveCmd)
	driveCmd.Flags().IntVar(&driveLogEvery, "log-every", 50, "log distance to goal every n ticks")
	driveCmd.Flags().StringVar(&sinkKind, "sink", "mqtt", "actuator sink (mqtt, can)")
	driveCmd.Flags().StringVar(&broker, "broker", config.DefaultBroker, "mqtt broker url")
	driveCmd.Flags().BoolVar(&trustSource, "trust-source", false, "re-read the pose source every tick")
	driveCmd.Flags().BoolVar(&repeatStop, "repeat-stop", false, "keep sending stop after the maneuver ends")

	compareCmd := &cobra.Command{
		Use:   "compare [integrator1] [integrator2] ...",
		Short: "compare integrators on the same maneuver",
		RunE:  compareIntegrators,
	}
	addScenarioFlags(compareCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "run an ensemble of random start poses",
		Args:  cobra.NoArgs,
		RunE:  sweepStarts,
	}
	addScenarioFlags(sweepCmd)
	sweepCmd.Flags().IntVar(&runs, "runs", 32, "number of start poses")
	sweepCmd.Flags().Float64Var(&box, "box", 5, "half-width of the start box around the origin")
	sweepCmd.Flags().Float64Var(&spread, "spread", -1, "heading spread around the bearing to the goal (negative: uniform heading)")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search kp and kw for the fastest arrival",
		Args:  cobra.NoArgs,
		RunE:  tuneGains,
	}
	addScenarioFlags(tuneCmd)
	tuneCmd.Flags().Float64Var(&kpMin, "kp-min", 0.2, "lowest kp")
	tuneCmd.Flags().Float64Var(&kpMax, "kp-max", 1.0, "highest kp")
	tuneCmd.Flags().Float64Var(&kwMin, "kw-min", 0.4, "lowest kw")
	tuneCmd.Flags().Float64Var(&kwMax, "kw-max", 2.0, "highest kw")
	tuneCmd.Flags().IntVar(&gridSize, "grid", 5, "points per axis")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a scripted batch of maneuvers",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	scenarioCmd.Flags().BoolVar(&saveScenarios, "save", true, "store steps that set save_as")

	paramSweepCmd := &cobra.Command{
		Use:   "param-sweep",
		Short: "vary one tuning parameter (kp, kw, dmin, r_distance)",
		Args:  cobra.NoArgs,
		RunE:  sweepParameter,
	}
	addScenarioFlags(paramSweepCmd)
	paramSweepCmd.Flags().StringVar(&sweepParam, "param", "kp", "parameter to vary")
	paramSweepCmd.Flags().Float64Var(&sweepMin, "min", 0.2, "lowest value")
	paramSweepCmd.Flags().Float64Var(&sweepMax, "max", 1.0, "highest value")
	paramSweepCmd.Flags().IntVar(&sweepSteps, "steps", 9, "number of values")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTRATEGY\tSTART\tREF\tDURATION")
			for _, name := range config.ListPresets() {
				p := config.GetPreset(name)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1fs\n", name, p.Strategy, p.StartPose, p.RefPose, p.Duration)
			}
			return w.Flush()
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run trajectory to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run trajectory to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	rootCmd.AddCommand(runCmd, driveCmd, compareCmd, sweepCmd, scenarioCmd, paramSweepCmd, tuneCmd, presetsCmd, listCmd, exportCmd, exportJSONCmd, exportCSVCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addScenarioFlags(cmd *cobra.Command) {
	def := config.DefaultConfig()
	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "config file path (yaml)")
	f.StringVar(&preset, "preset", "", "use preset configuration")
	f.StringVar(&strategy, "strategy", def.Strategy, "control strategy ("+strings.Join(control.ListStrategies(), ", ")+")")
	f.StringVar(&integrator, "integrator", def.Integrator, "pose integrator")
	f.Float64Var(&ts, "ts", def.Ts, "sampling period in seconds")
	f.Float64Var(&duration, "time", def.Duration, "time budget in seconds")
	f.Int64Var(&seed, "seed", 0, "random seed")
	f.Float64Var(&startX, "x", def.StartPose.X, "start x")
	f.Float64Var(&startY, "y", def.StartPose.Y, "start y")
	f.Float64Var(&startTheta, "theta", def.StartPose.Theta, "start heading")
	f.Float64Var(&refX, "ref-x", def.RefPose.X, "reference x")
	f.Float64Var(&refY, "ref-y", def.RefPose.Y, "reference y")
	f.Float64Var(&refTheta, "ref-theta", def.RefPose.Theta, "reference heading")
	f.Float64Var(&kp, "kp", def.Gains.Kp, "distance gain")
	f.Float64Var(&kw, "kw", def.Gains.Kw, "heading gain")
	f.Float64Var(&dmin, "dmin", def.Dmin, "goal tolerance")
	f.Float64Var(&rDistance, "r-distance", def.RDistance, "via-point offset")
	f.BoolVar(&normalize, "normalize-approach", def.NormalizeApproach, "wrap the approach heading error")
}

// loadConfig starts from a preset or the defaults, applies the config file
// and then every flag set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("strategy") {
		cfg.Strategy = strategy
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("ts") {
		cfg.Ts = ts
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("x") {
		cfg.StartPose.X = startX
	}
	if flags.Changed("y") {
		cfg.StartPose.Y = startY
	}
	if flags.Changed("theta") {
		cfg.StartPose.Theta = startTheta
	}
	if flags.Changed("ref-x") {
		cfg.RefPose.X = refX
	}
	if flags.Changed("ref-y") {
		cfg.RefPose.Y = refY
	}
	if flags.Changed("ref-theta") {
		cfg.RefPose.Theta = refTheta
	}
	if flags.Changed("kp") {
		cfg.Gains.Kp = kp
	}
	if flags.Changed("kw") {
		cfg.Gains.Kw = kw
	}
	if flags.Changed("dmin") {
		cfg.Dmin = dmin
	}
	if flags.Changed("r-distance") {
		cfg.RDistance = rDistance
	}
	if flags.Changed("normalize-approach") {
		cfg.NormalizeApproach = normalize
	}
	if flags.Changed("broker") {
		cfg.MQTT.Broker = broker
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runInfo(cfg *config.Config) storage.RunInfo {
	return storage.RunInfo{
		Strategy:   cfg.Strategy,
		Integrator: cfg.Integrator,
		Ts:         cfg.Ts,
		Duration:   cfg.Duration,
		Seed:       cfg.Seed,
		Ref:        cfg.RefPose,
	}
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	var opts []sim.DriverOption
	if runLogEvery > 0 {
		opts = append(opts, sim.WithLogger(log.Default()), sim.WithLogEvery(runLogEvery))
	}

	exp := experiment.New(cfg)
	if err := exp.Setup(experiment.NewRegistry(), opts...); err != nil {
		return err
	}

	fmt.Printf("running %s from %s to %s...\n", cfg.Strategy, cfg.StartPose, cfg.RefPose)
	start := time.Now()

	result, err := exp.Run(cmd.Context())
	if err != nil {
		return err
	}

	elapsed := time.Since(start)

	runID, err := st.Save(runInfo(cfg), result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("outcome: %s after %.2fs (%d steps)\n", result.Outcome, result.Duration(), result.Steps)
	fmt.Printf("final pose: %s, distance %.4f\n", result.Final(), result.FinalDistance)
	fmt.Println("\nmetrics:")
	for name, val := range result.Metrics {
		fmt.Printf("  %s: %.6f\n", name, val)
	}

	return nil
}

func driveRobot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctrl, err := experiment.NewRegistry().GetController(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.Default()

	client, err := transport.Connect(cfg.MQTT)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	logger.Printf("mqtt: connected to %s", cfg.MQTT.Broker)

	src := transport.NewMQTTSource(logger)
	if err := src.Subscribe(client, cfg.MQTT.PoseTopic, byte(cfg.MQTT.QoS)); err != nil {
		return err
	}

	var sink dynamo.ActuatorSink
	switch sinkKind {
	case "mqtt":
		sink = transport.NewMQTTSink(client, cfg.MQTT.CmdTopic, byte(cfg.MQTT.QoS))
	case "can":
		canSink, err := transport.DialCAN(ctx, cfg.CAN.Interface, cfg.CAN.FrameID)
		if err != nil {
			return err
		}
		defer canSink.Close()
		sink = canSink
	default:
		return fmt.Errorf("unknown sink: %s (available: mqtt, can)", sinkKind)
	}

	opts := []sim.DriverOption{sim.WithLogger(logger), sim.WithLogEvery(driveLogEvery)}
	if trustSource {
		opts = append(opts, sim.WithTrustSource())
	}
	if repeatStop {
		opts = append(opts, sim.WithRepeatStop())
	}

	drv, err := sim.NewDriver(ctrl, src, sink, cfg.Ts, opts...)
	if err != nil {
		return err
	}

	logger.Printf("driver: %s toward %s, waiting for odometry on %s", cfg.Strategy, cfg.RefPose, cfg.MQTT.PoseTopic)
	err = drv.Run(ctx, 0)

	received, rejected := src.Stats()
	logger.Printf("driver: %d ticks, %d skipped, %d samples (%d rejected), outcome %s",
		drv.Ticks(), drv.Skipped(), received, rejected, drv.Outcome())
	return err
}

func compareIntegrators(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	integrators := args
	if len(integrators) == 0 {
		integrators = []string{"unicycle", "euler"}
	}

	fmt.Printf("comparing integrators for %s (ts=%.3f, duration=%.1fs)\n\n", cfg.Strategy, cfg.Ts, cfg.Duration)
	fmt.Printf("%-10s  %-13s  %-28s  %-10s  %-10s\n", "integrator", "outcome", "final", "t_goal", "time_ms")
	fmt.Println(strings.Repeat("-", 80))

	registry := experiment.NewRegistry()
	for _, name := range integrators {
		c := cfg.Clone()
		c.Integrator = name

		exp := experiment.New(c)
		if err := exp.Setup(registry); err != nil {
			fmt.Printf("%-10s  error: %v\n", name, err)
			continue
		}

		start := time.Now()
		result, err := exp.Run(cmd.Context())
		elapsed := time.Since(start)

		if err != nil {
			fmt.Printf("%-10s  error: %v\n", name, err)
			continue
		}

		fmt.Printf("%-10s  %-13s  %-28s  %10.3f  %10.2f\n", name, result.Outcome, result.Final(),
			result.Metrics["time_to_goal"], float64(elapsed.Microseconds())/1000)
	}

	return nil
}

func sweepStarts(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	reg := experiment.NewRegistry()
	ctrl, err := reg.GetController(cfg)
	if err != nil {
		return err
	}

	sample := sim.BoxSampler(-box, box, -box, box)
	if spread >= 0 {
		sample = sim.FacingSampler(-box, box, -box, box, cfg.RefPose, spread)
	}

	ens := sim.NewEnsemble(sim.New(ctrl), runs, cfg.Seed).
		WithMetrics(func() []dynamo.Metric { return reg.DefaultMetrics(cfg) })
	start := time.Now()
	results, err := ens.Run(cmd.Context(), sample, sim.DefaultConfig())
	if err != nil {
		return err
	}

	reached := 0
	var total, worst, path float64
	for _, r := range results {
		if r.Outcome != dynamo.OutcomeGoalReached {
			continue
		}
		reached++
		path += r.Metrics["path_length"]
		total += r.Duration()
		if r.Duration() > worst {
			worst = r.Duration()
		}
	}

	fmt.Printf("%d runs in %v\n", len(results), time.Since(start))
	fmt.Printf("goal reached: %d/%d\n", reached, len(results))
	if reached > 0 {
		fmt.Printf("time to goal: mean %.2fs, worst %.2fs\n", total/float64(reached), worst)
		fmt.Printf("path length: mean %.2fm\n", path/float64(reached))
	}
	for i, r := range results {
		if r.Outcome != dynamo.OutcomeGoalReached {
			fmt.Printf("  run %d from %s: %s at distance %.3f\n", i, r.Start, r.Outcome, r.FinalDistance)
		}
	}
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	var st *storage.Store
	if saveScenarios {
		st = storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
	}

	r := automation.NewRunner(experiment.NewRegistry(), st, log.Default())
	results, err := r.RunScenario(cmd.Context(), sc)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tSTRATEGY\tOUTCOME\tTIME\tDISTANCE\tRUN")
	for _, sr := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%.3f\t%s\n",
			sr.Name, sr.Config.Strategy, sr.Result.Outcome, sr.Result.Duration(), sr.Result.FinalDistance, sr.RunID)
	}
	if ferr := w.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	return err
}

func sweepParameter(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	r := automation.NewRunner(experiment.NewRegistry(), nil, nil)
	results, err := r.RunSweep(cmd.Context(), &automation.ParameterSweep{
		Base:      cfg,
		ParamName: sweepParam,
		ParamMin:  sweepMin,
		ParamMax:  sweepMax,
		NumSteps:  sweepSteps,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tOUTCOME\tT_GOAL\tDISTANCE\tPATH\n", strings.ToUpper(sweepParam))
	for _, res := range results {
		fmt.Fprintf(w, "%.4f\t%s\t%.3f\t%.3f\t%.3f\n", res.ParamValue, res.Outcome, res.TimeToGoal, res.FinalDistance, res.PathLength)
	}
	return w.Flush()
}

func tuneGains(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	g := optim.NewGridSearch([]string{"kp", "kw"}, [][]float64{
		optim.Linspace(kpMin, kpMax, gridSize),
		optim.Linspace(kwMin, kwMax, gridSize),
	})

	fmt.Printf("searching %dx%d grid for %s from %s...\n", gridSize, gridSize, cfg.Strategy, cfg.StartPose)
	best, err := g.Search(cmd.Context(), optim.ExperimentObjective(cfg, experiment.NewRegistry(), "time_to_goal"))
	if err != nil {
		return err
	}

	fmt.Printf("trials: %d (%d failed)\n", best.Trials, best.Failed)
	fmt.Printf("best: kp=%.3f kw=%.3f time_to_goal=%.3f\n", best.Params["kp"], best.Params["kw"], best.Value)
	if best.Value > cfg.Duration {
		fmt.Println("no grid point reached the goal within the time budget")
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTRATEGY\tTIME\tOUTCOME\tSTEPS\tTS\tINTEG")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.4fs\t%s\n",
			run.ID,
			run.Strategy,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Outcome,
			run.Steps,
			run.Ts,
			run.Integrator,
		)
	}

	return w.Flush()
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	result := &sim.Result{
		Start:         meta.Start,
		Poses:         []dynamo.Pose{meta.Start, meta.Final},
		Outcome:       parseOutcome(meta.Outcome),
		Steps:         meta.Steps,
		FinalDistance: meta.FinalDistance,
		Metrics:       meta.Metrics,
	}
	return storage.ExportJSON(os.Stdout, meta.RunInfo, result)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, result, err := loadResult(args[0])
	if err != nil {
		return err
	}
	return storage.ExportJSON(os.Stdout, meta.RunInfo, result)
}

func exportCSV(cmd *cobra.Command, args []string) error {
	_, result, err := loadResult(args[0])
	if err != nil {
		return err
	}
	if len(result.Poses) == 0 {
		return fmt.Errorf("no data to export")
	}
	return storage.WriteCSV(os.Stdout, result)
}

func loadResult(runID string) (*storage.RunMetadata, *sim.Result, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	samples, err := st.LoadTrajectory(runID)
	if err != nil {
		return nil, nil, err
	}

	result := &sim.Result{
		Start:         meta.Start,
		Outcome:       parseOutcome(meta.Outcome),
		Steps:         meta.Steps,
		FinalDistance: meta.FinalDistance,
		Metrics:       meta.Metrics,
	}
	for i, s := range samples {
		result.Poses = append(result.Poses, s.Pose)
		result.Times = append(result.Times, s.Time)
		result.Phases = append(result.Phases, s.Phase)
		if i < len(samples)-1 {
			result.Commands = append(result.Commands, s.Command)
		}
	}
	return meta, result, nil
}

func parseOutcome(s string) dynamo.Outcome {
	for _, o := range []dynamo.Outcome{dynamo.OutcomeGoalReached, dynamo.OutcomeTimeout} {
		if o.String() == s {
			return o
		}
	}
	return dynamo.OutcomeRunning
}
