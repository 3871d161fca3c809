package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/mpcsim/internal/automation"
	"github.com/san-kum/mpcsim/internal/config"
	"github.com/san-kum/mpcsim/internal/experiment"
	"github.com/san-kum/mpcsim/internal/logging"
	"github.com/san-kum/mpcsim/internal/mpc"
	"github.com/san-kum/mpcsim/internal/optim"
	"github.com/san-kum/mpcsim/internal/sim"
)

var (
	verbose    bool
	configFile string
	preset     string
	controller string
	plant      string
	dt         float64
	horizon    int
	steps      int
	workers    int
	x0         []float64
	// tune
	horizons []float64
	qScales  []float64
	rScales  []float64
	metric   string
	// sweep
	spread float64
	runs   int
	// analyze
	band float64
	// montecarlo
	trials int
	seed   int64

	logger = zap.NewNop()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mpcsim",
		Short: "model predictive control simulation lab",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logging.New(verbose)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run a closed-loop simulation",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addConfigFlags(runCmd)

	solveCmd := &cobra.Command{
		Use:   "solve [model]",
		Short: "solve one horizon problem from x0",
		Args:  cobra.MaximumNArgs(1),
		RunE:  solveHorizon,
	}
	addConfigFlags(solveCmd)

	compareCmd := &cobra.Command{
		Use:   "compare [model] [controller...]",
		Short: "compare controllers on the same configuration",
		Args:  cobra.MinimumNArgs(1),
		RunE:  compareControllers,
	}
	addConfigFlags(compareCmd)

	tuneCmd := &cobra.Command{
		Use:   "tune [model]",
		Short: "grid search over horizon and weight scales",
		Args:  cobra.MaximumNArgs(1),
		RunE:  tuneController,
	}
	addConfigFlags(tuneCmd)
	tuneCmd.Flags().Float64SliceVar(&horizons, "horizons", []float64{10, 20, 30}, "horizon grid")
	tuneCmd.Flags().Float64SliceVar(&qScales, "q-scales", []float64{0.5, 1, 2}, "state weight scale grid")
	tuneCmd.Flags().Float64SliceVar(&rScales, "r-scales", []float64{0.5, 1, 2}, "input weight scale grid")
	tuneCmd.Flags().StringVar(&metric, "metric", "tracking_error", "metric to minimise")

	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "run the controller from perturbed initial states in parallel",
		Args:  cobra.MaximumNArgs(1),
		RunE:  sweepInitialStates,
	}
	addConfigFlags(sweepCmd)
	sweepCmd.Flags().Float64Var(&spread, "spread", 1.0, "maximum perturbation of each x0 component")
	sweepCmd.Flags().IntVar(&runs, "runs", 8, "number of runs")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [model]",
		Short: "model properties and closed-loop step response",
		Args:  cobra.MaximumNArgs(1),
		RunE:  analyzeExperiment,
	}
	addConfigFlags(analyzeCmd)
	analyzeCmd.Flags().Float64Var(&band, "band", 0.05, "settling band around the reference")

	scenarioCmd := &cobra.Command{
		Use:   "scenario <file>",
		Short: "run a scripted list of experiments and check their outcomes",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [model]",
		Short: "run seeded trials from randomly perturbed initial states",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMonteCarlo,
	}
	addConfigFlags(monteCarloCmd)
	monteCarloCmd.Flags().Float64Var(&spread, "spread", 1.0, "maximum perturbation of each x0 component")
	monteCarloCmd.Flags().IntVar(&trials, "trials", 20, "number of trials")
	monteCarloCmd.Flags().Int64Var(&seed, "seed", 1, "random seed")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for model: %s\n", args[0])
				return nil
			}
			fmt.Println(titleStyle.Render("presets for " + args[0]))
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list models and controllers",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := experiment.NewRegistry()
			fmt.Println(titleStyle.Render("models"))
			for _, m := range r.ListModels() {
				fmt.Printf("  %s\n", m)
			}
			fmt.Println(titleStyle.Render("controllers"))
			for _, c := range r.ListControllers() {
				fmt.Printf("  %s\n", c)
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, solveCmd, compareCmd, tuneCmd, sweepCmd, analyzeCmd, scenarioCmd, monteCarloCmd, presetsCmd, modelsCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().StringVar(&controller, "controller", config.DefaultController, "controller")
	cmd.Flags().StringVar(&plant, "plant", config.DefaultPlant, "plant: linear or nonlinear")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "sample time")
	cmd.Flags().IntVar(&horizon, "horizon", config.DefaultHorizon, "prediction horizon")
	cmd.Flags().IntVar(&steps, "steps", config.DefaultSteps, "simulation steps")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel runs (0 = unlimited)")
	cmd.Flags().Float64SliceVar(&x0, "x0", nil, "initial state")
}

// loadConfig resolves the configuration: preset, then config file, then
// flags the user set explicitly.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()

	model := ""
	if len(args) > 0 {
		model = args[0]
	}

	name := preset
	if name == "" && model != "" && model != cfg.Model {
		if names := config.ListPresets(model); len(names) > 0 {
			name = names[0]
			if config.GetPreset(model, "regulate") != nil {
				name = "regulate"
			}
		}
	}
	if name != "" {
		if model == "" {
			model = cfg.Model
		}
		p := config.GetPreset(model, name)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", name, config.ListPresets(model))
		}
		cfg = p
	} else if model != "" {
		cfg.Model = model
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("controller") {
		cfg.Controller = controller
	}
	if flags.Changed("plant") {
		cfg.Plant = plant
	}
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("horizon") {
		cfg.Horizon = horizon
	}
	if flags.Changed("steps") {
		cfg.Steps = steps
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("x0") {
		cfg.X0 = x0
	}
	return cfg, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg, experiment.WithLogger(logger))
	if err != nil {
		return err
	}

	fmt.Printf("running %s with %s (N=%d, %d steps)...\n", cfg.Model, cfg.Controller, cfg.Horizon, cfg.Steps)
	start := time.Now()
	tr, err := exp.Run(cmd.Context())
	elapsed := time.Since(start)

	printTrajectory(tr, err, elapsed)
	if err != nil {
		return errFailedRun
	}
	return nil
}

func analyzeExperiment(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg, experiment.WithLogger(logger))
	if err != nil {
		return err
	}

	printProperties(cfg.Model, exp.Properties())

	tr, err := exp.Run(cmd.Context())
	if tr != nil {
		printResponses(exp.Responses(tr, band), band)
	}
	if err != nil {
		fmt.Println(failStyle.Render("failed") + " at " + describeFailure(err))
		return errFailedRun
	}
	return nil
}

func solveHorizon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg, experiment.WithLogger(logger))
	if err != nil {
		return err
	}

	sol, err := exp.Solve()
	if err != nil {
		var failure *mpc.OptimizationFailure
		if errors.As(err, &failure) {
			fmt.Println(failStyle.Render("solve failed: ") + failure.Status.String())
			return errFailedRun
		}
		return err
	}
	printSolution(sol)
	return nil
}

func compareControllers(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args[:1])
	if err != nil {
		return err
	}
	names := args[1:]
	if len(names) == 0 {
		names = []string{"mpc", "lqr", "none"}
	}

	rows := make([]compareRow, 0, len(names))
	for _, name := range names {
		c := cfg.Clone()
		c.Controller = name
		exp, err := experiment.New(c, experiment.WithLogger(logger))
		if err != nil {
			return err
		}
		tr, err := exp.Run(cmd.Context())
		rows = append(rows, compareRow{name: name, tr: tr, err: err})
	}
	printComparison(rows)
	return nil
}

func tuneController(cmd *cobra.Command, args []string) error {
	base, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	g := optim.NewGridSearch(
		[]string{optim.ParamHorizon, optim.ParamQScale, optim.ParamRScale},
		[][]float64{horizons, qScales, rScales},
	)
	res, err := g.Search(cmd.Context(), func(params map[string]float64) (*experiment.Experiment, error) {
		cfg, err := optim.Apply(base, params)
		if err != nil {
			return nil, err
		}
		return experiment.New(cfg, experiment.WithLogger(logger))
	}, metric)
	if err != nil {
		return err
	}
	printTuning(res, metric)
	return nil
}

func sweepInitialStates(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg, experiment.WithLogger(logger))
	if err != nil {
		return err
	}

	x0s := perturb(sim.State(cfg.X0), spread, runs)
	start := time.Now()
	results, err := exp.Sweep(cmd.Context(), x0s)
	printSweep(x0s, results, err, time.Since(start))
	if err != nil {
		return errFailedRun
	}
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	outcomes, err := automation.RunScenario(cmd.Context(), sc, logger)
	printScenario(sc, outcomes)
	if err != nil {
		return err
	}
	for _, o := range outcomes {
		if !o.Passed {
			return errFailedRun
		}
	}
	return nil
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	mc := automation.MonteCarloConfig{Perturbation: spread, Trials: trials, Seed: seed}

	start := time.Now()
	results, err := automation.RunMonteCarlo(cmd.Context(), cfg, mc, logger)
	if err != nil {
		return err
	}
	printMonteCarlo(results, time.Since(start))
	return nil
}

// perturb spreads count initial states evenly along the diagonal through x0.
func perturb(x0 sim.State, spread float64, count int) []sim.State {
	out := make([]sim.State, count)
	for i := range out {
		offset := 0.0
		if count > 1 {
			offset = spread * (2*float64(i)/float64(count-1) - 1)
		}
		x := x0.Clone()
		for j := range x {
			x[j] += offset
		}
		out[i] = x
	}
	return out
}
