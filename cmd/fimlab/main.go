package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/san-kum/fimlab/internal/analysis"
	"github.com/san-kum/fimlab/internal/automation"
	"github.com/san-kum/fimlab/internal/cache"
	"github.com/san-kum/fimlab/internal/config"
	"github.com/san-kum/fimlab/internal/fim"
	"github.com/san-kum/fimlab/internal/hessian"
	"github.com/san-kum/fimlab/internal/metrics"
	"github.com/san-kum/fimlab/internal/storage"
	"github.com/san-kum/fimlab/internal/tui"
	"github.com/san-kum/fimlab/internal/viz"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

var (
	dataDir    string
	verbose    bool
	metricsOut string
	themeName  string

	// solve
	configFile string
	variant    string
	eps        float64
	workers    int
	useCache   bool
	fixedEps   bool

	// curvature
	mode       string
	big        bool
	bits       uint
	hessEps    float64
	rtol       float64
	maxIter    int
	useTUI     bool
	showMatrix bool

	// eig
	jsonOut string
	rates   bool

	// sweep
	scaleMin float64
	scaleMax float64
	steps    int
)

// app holds what every command shares once flags are parsed.
type app struct {
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Recorder
	store    *storage.Store
	render   *viz.Renderer
}

var current *app

func main() {
	rootCmd := &cobra.Command{
		Use:           "fimlab",
		Short:         "Fisher information of maximum entropy spin models under perturbation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			current = a
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if current == nil {
				return nil
			}
			defer current.logger.Sync()
			if metricsOut == "" {
				return nil
			}
			return metrics.WriteFile(metricsOut, current.registry)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".fimlab", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsOut, "metrics-out", "", "write prometheus metrics to this file on exit")
	rootCmd.PersistentFlags().StringVar(&themeName, "theme", viz.ThemeTerminal.Name, "color theme ("+strings.Join(viz.ThemeNames(), ", ")+")")

	solveCmd := &cobra.Command{
		Use:   "solve [family/preset]",
		Short: "compute and save the linear responses of a model",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSolve,
	}
	solveCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	solveCmd.Flags().StringVar(&variant, "variant", "", "perturbation variant")
	solveCmd.Flags().Float64Var(&eps, "eps", config.DefaultEps, "perturbation strength")
	solveCmd.Flags().IntVar(&workers, "workers", 0, "parallel solves (0 = all cpus)")
	solveCmd.Flags().BoolVar(&useCache, "cache", true, "reuse responses cached under the data directory")
	solveCmd.Flags().BoolVar(&fixedEps, "fixed-eps", false, "skip the per-row step size search")

	curvatureCmd := &cobra.Command{
		Use:   "curvature [run_id]",
		Short: "estimate the Fisher information matrix of a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  runCurvature,
	}
	curvatureCmd.Flags().StringVar(&mode, "mode", "full", "full, majority or covariance")
	curvatureCmd.Flags().BoolVar(&big, "big", false, "extended precision (majority mode)")
	curvatureCmd.Flags().UintVar(&bits, "bits", 0, "mantissa bits with --big")
	curvatureCmd.Flags().Float64Var(&hessEps, "eps", 0, "initial finite difference step")
	curvatureCmd.Flags().Float64Var(&rtol, "rtol", 0, "relative tolerance of the step halving check")
	curvatureCmd.Flags().IntVar(&maxIter, "max-iter", 0, "step reductions to try")
	curvatureCmd.Flags().IntVar(&workers, "workers", 0, "parallel entries (0 = all cpus)")
	curvatureCmd.Flags().BoolVar(&useTUI, "tui", false, "show a progress view")
	curvatureCmd.Flags().BoolVar(&showMatrix, "show", false, "print the matrix as a heat map")

	eigCmd := &cobra.Command{
		Use:   "eig [run_id]",
		Short: "eigen-decomposition of a run's Fisher information",
		Args:  cobra.ExactArgs(1),
		RunE:  runEig,
	}
	eigCmd.Flags().StringVar(&jsonOut, "json", "", "also write the report to this file")
	eigCmd.Flags().BoolVar(&rates, "rates", false, "majority log-probability rates per spin (coupling variant)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := current.store.List()
			if err != nil {
				return err
			}
			fmt.Print(current.render.Runs(runs))
			return nil
		},
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [family]",
		Short: "list available presets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			families := config.Families()
			if len(args) == 1 {
				families = args
			}
			for _, f := range families {
				presets := config.ListPresets(f)
				if len(presets) == 0 {
					fmt.Printf("no presets for family: %s\n", f)
					continue
				}
				fmt.Printf("%s:\n", f)
				for _, p := range presets {
					fmt.Printf("  %s/%s (%s)\n", f, p, config.GetPreset(f, p).Variant)
				}
			}
			return nil
		},
	}

	batchCmd := &cobra.Command{
		Use:   "batch [scenario.yaml]",
		Short: "run a scripted scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
	batchCmd.Flags().IntVar(&workers, "workers", 0, "parallel workers (0 = all cpus)")

	sweepCmd := &cobra.Command{
		Use:   "sweep [family/preset]",
		Short: "scale the couplings of a preset and track the leading curvature",
		Args:  cobra.ExactArgs(1),
		RunE:  runSweep,
	}
	sweepCmd.Flags().Float64Var(&scaleMin, "min", 0, "smallest coupling scale")
	sweepCmd.Flags().Float64Var(&scaleMax, "max", 2, "largest coupling scale")
	sweepCmd.Flags().IntVar(&steps, "steps", 5, "number of scales")
	sweepCmd.Flags().StringVar(&mode, "mode", "", "override the preset's hessian mode")

	rootCmd.AddCommand(solveCmd, curvatureCmd, eigCmd, listCmd, presetsCmd, batchCmd, sweepCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func setup() (*app, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		zcfg = zap.NewDevelopmentConfig()
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	st := storage.New(filepath.Join(dataDir, "runs"))
	if err := st.Init(); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	return &app{
		logger:   logger,
		registry: reg,
		metrics:  metrics.New(reg),
		store:    st,
		render:   viz.NewRenderer(viz.GetTheme(themeName), 60),
	}, nil
}

func (a *app) openCache() (*cache.Cache, error) {
	cfg := cache.DefaultConfig(filepath.Join(dataDir, "cache"))
	cfg.Logger = a.logger
	return cache.Open(cfg)
}

func (a *app) runner() *automation.Runner {
	return &automation.Runner{Store: a.store, Logger: a.logger, Metrics: a.metrics, Workers: workers}
}

func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	switch {
	case configFile != "":
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	case len(args) == 1:
		cfg = presetConfig(args[0])
		if cfg == nil {
			family, _, _ := strings.Cut(args[0], "/")
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets(family))
		}
	default:
		return nil, errors.New("give a preset or --config")
	}

	if variant != "" {
		cfg.Variant = variant
	}
	if cmd.Flags().Changed("eps") {
		cfg.Eps = eps
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = workers
	}
	if fixedEps {
		cfg.Solver.Adaptive = false
	}
	return cfg, nil
}

func presetConfig(name string) *config.Config {
	family, preset, ok := strings.Cut(name, "/")
	if !ok {
		return nil
	}
	return config.GetPreset(family, preset)
}

func runSolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	r := current.runner()
	r.Workers = cfg.Workers
	if useCache {
		c, err := current.openCache()
		if err != nil {
			return err
		}
		defer c.Close()
		r.Cache = c
	}

	a, err := r.Analyze(ctx, cfg)
	if err != nil {
		return err
	}
	snap, err := a.Snapshot()
	if err != nil {
		return err
	}
	labels := map[string]string{}
	if len(args) == 1 {
		labels["preset"] = args[0]
	}
	id, err := current.store.Save(snap, labels)
	if err != nil {
		return err
	}

	fmt.Print(current.render.Responses(snap.Variant, a.Variant().Targets(), snap.Flags))
	fmt.Printf("saved run %s\n", id)
	return nil
}

func restore(runID string) (*fim.Analyzer, error) {
	snap, err := current.store.LoadSnapshot(runID)
	if err != nil {
		return nil, err
	}
	return fim.Restore(*snap, fim.Options{
		Workers: workers,
		Logger:  current.logger,
		Metrics: current.metrics,
	})
}

func runCurvature(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	runID := args[0]
	a, err := restore(runID)
	if err != nil {
		return err
	}

	m, err := hessian.ParseMode(mode)
	if err != nil {
		return err
	}
	opts := hessian.Options{
		Mode:          m,
		Bits:          bits,
		Eps:           hessEps,
		RTol:          rtol,
		MaxIterations: maxIter,
		Workers:       workers,
	}
	if big {
		opts.Precision = hessian.PrecisionBig
	}

	var (
		h        *mat.Dense
		flag     hessian.Flag
		residual float64
	)
	compute := func(ctx context.Context, onProgress func(done, total int)) error {
		opts.OnProgress = onProgress
		hm, f, res, err := a.Curvature(ctx, opts)
		if err != nil {
			return err
		}
		h, flag, residual = hm, f, res
		return nil
	}

	switch {
	case useTUI:
		err = tui.Run(ctx, "fisher information ("+m.String()+")", viz.GetTheme(themeName), compute, tea.WithOutput(os.Stderr))
	case verbose:
		err = compute(ctx, tui.NewLineReporter(os.Stderr, m.String(), 10).OnProgress)
	default:
		err = compute(ctx, nil)
	}
	if err != nil {
		return err
	}

	info := storage.HessianMetadata{
		Mode:      m.String(),
		Precision: "float64",
		Eps:       opts.Eps,
		Converged: flag == hessian.Converged,
		Residual:  residual,
	}
	if big {
		info.Precision = "big"
	}
	if err := current.store.SaveHessian(runID, h, info); err != nil {
		return err
	}

	s := current.render.Styles()
	status := s.OK.Render(flag.String())
	if flag != hessian.Converged {
		status = s.Warn.Render(flag.String())
	}
	fmt.Printf("%s %s residual %.3e\n", s.Label.Render("curvature:"), status, residual)
	if showMatrix {
		fmt.Print(current.render.Matrix("fisher information", h))
	}
	return nil
}

func runEig(cmd *cobra.Command, args []string) error {
	runID := args[0]
	meta, err := current.store.Load(runID)
	if err != nil {
		return err
	}
	h, err := current.store.LoadHessian(runID)
	if err != nil {
		return fmt.Errorf("%w (run `fimlab curvature %s` first)", err, runID)
	}
	a, err := restore(runID)
	if err != nil {
		return err
	}

	spec, err := a.Eigen(h)
	if err != nil {
		return err
	}
	fmt.Print(current.render.Spectrum(spec.Values, spec.Report))

	if rates {
		dJ, _, err := a.LinearResponses(cmd.Context())
		if err != nil {
			return err
		}
		r, err := analysis.MajorityLogRates(a.Model(), dJ, h, 1e-4)
		if err != nil {
			return err
		}
		fmt.Print(current.render.Rates(r))
	}

	if jsonOut != "" {
		report := storage.NewReport(*meta, spec.Values, spec.Vectors, spec.Report.Warnings)
		if err := storage.ExportJSON(jsonOut, report); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", jsonOut)
	}
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	c, err := current.openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	r := current.runner()
	r.Cache = c
	results, err := automation.RunScenario(cmd.Context(), scenario, r)
	for _, res := range results {
		line := fmt.Sprintf("%-20s %s flagged=%d", res.Name, res.RunID, res.Flagged)
		if res.Hessian {
			line += fmt.Sprintf(" converged=%t residual=%.3e", res.Converged, res.Residual)
			if len(res.Eigenvalues) > 0 {
				line += fmt.Sprintf(" leading=%.4e", res.Eigenvalues[0])
			}
		}
		fmt.Println(line)
	}
	return err
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg := presetConfig(args[0])
	if cfg == nil {
		return fmt.Errorf("unknown preset: %s", args[0])
	}
	if mode != "" {
		cfg.Hessian.Mode = mode
	}

	results, err := automation.RunSweep(cmd.Context(), &automation.ParameterSweep{
		Base:     cfg,
		ScaleMin: scaleMin,
		ScaleMax: scaleMax,
		NumSteps: steps,
	}, current.runner())
	if err != nil {
		return err
	}

	leading := make([]float64, len(results))
	for i, res := range results {
		fmt.Printf("scale %-8.4g leading %.4e flagged %d converged %t\n", res.Scale, res.Leading, res.Flagged, res.Converged)
		leading[i] = res.Leading
	}
	fmt.Print(current.render.Spectrum(leading, analysis.Report{}))
	return nil
}
