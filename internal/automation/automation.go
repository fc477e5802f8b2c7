package automation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/san-kum/fimlab/internal/cache"
	"github.com/san-kum/fimlab/internal/config"
	"github.com/san-kum/fimlab/internal/fim"
	"github.com/san-kum/fimlab/internal/hessian"
	"github.com/san-kum/fimlab/internal/maxent"
	"github.com/san-kum/fimlab/internal/metrics"
	"github.com/san-kum/fimlab/internal/storage"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var ErrBadStep = errors.New("automation: invalid step")

// Scenario is a scripted sequence of analyses.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep names either a preset ("family/name") or an inline model.
// Hessian is optional; without it only the responses are computed.
type ScenarioStep struct {
	Name    string                `yaml:"name"`
	Preset  string                `yaml:"preset,omitempty"`
	Model   *maxent.Spec          `yaml:"model,omitempty"`
	Variant string                `yaml:"variant,omitempty"`
	Eps     float64               `yaml:"eps,omitempty"`
	Hessian *config.HessianConfig `yaml:"hessian,omitempty"`
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("automation: %s: %w", path, err)
	}
	return &scenario, nil
}

// Config resolves the step into a full run configuration.
func (s ScenarioStep) Config() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case s.Preset != "" && s.Model != nil:
		return nil, fmt.Errorf("%w: %q sets both preset and model", ErrBadStep, s.Name)
	case s.Preset != "":
		family, name, ok := strings.Cut(s.Preset, "/")
		if !ok {
			return nil, fmt.Errorf("%w: preset %q is not family/name", ErrBadStep, s.Preset)
		}
		if cfg = config.GetPreset(family, name); cfg == nil {
			return nil, fmt.Errorf("%w: unknown preset %q", ErrBadStep, s.Preset)
		}
	case s.Model != nil:
		cfg = config.DefaultConfig()
		cfg.Model = *s.Model
	default:
		return nil, fmt.Errorf("%w: %q has neither preset nor model", ErrBadStep, s.Name)
	}

	if s.Variant != "" {
		cfg.Variant = s.Variant
	}
	if s.Eps > 0 {
		cfg.Eps = s.Eps
	}
	if s.Hessian != nil {
		cfg.Hessian = *s.Hessian
	}
	return cfg, nil
}

// Runner carries the shared resources of a batch. Cache and Metrics may be
// nil.
type Runner struct {
	Store   *storage.Store
	Cache   *cache.Cache
	Logger  *zap.Logger
	Metrics *metrics.Recorder
	Workers int
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// Analyze builds the analyzer for cfg, through the cache when there is one.
func (r *Runner) Analyze(ctx context.Context, cfg *config.Config) (*fim.Analyzer, error) {
	m, err := cfg.BuildModel()
	if err != nil {
		return nil, err
	}
	opts := cfg.AnalyzerOptions()
	opts.Logger = r.logger()
	opts.Metrics = r.Metrics
	if r.Workers > 0 {
		opts.Workers = r.Workers
	}

	if r.Cache == nil {
		return fim.New(ctx, m, cfg.Variant, opts)
	}
	a, hit, err := r.Cache.Analyzer(ctx, m, cfg.Variant, opts)
	if err != nil {
		return nil, err
	}
	r.logger().Debug("responses", zap.Bool("cache_hit", hit))
	return a, nil
}

type StepResult struct {
	Name    string
	RunID   string
	Flagged int
	// Curvature fields are zero when the step had no hessian section.
	Hessian     bool
	Converged   bool
	Residual    float64
	Eigenvalues []float64
}

// RunScenario executes every step, saving each run to the store. It stops at
// the first failing step and returns the results so far.
func RunScenario(ctx context.Context, scenario *Scenario, r *Runner) ([]StepResult, error) {
	results := make([]StepResult, 0, len(scenario.Steps))
	log := r.logger().With(zap.String("scenario", scenario.Name))

	for i, step := range scenario.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step%d", i+1)
		}
		log.Info("running step", zap.Int("step", i+1), zap.Int("of", len(scenario.Steps)), zap.String("name", name))

		res, err := r.runStep(ctx, name, step)
		if err != nil {
			return results, fmt.Errorf("step %d (%s): %w", i+1, name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) runStep(ctx context.Context, name string, step ScenarioStep) (StepResult, error) {
	res := StepResult{Name: name}
	cfg, err := step.Config()
	if err != nil {
		return res, err
	}
	a, err := r.Analyze(ctx, cfg)
	if err != nil {
		return res, err
	}

	snap, err := a.Snapshot()
	if err != nil {
		return res, err
	}
	for _, f := range snap.Flags {
		if f != fim.FlagOK {
			res.Flagged++
		}
	}
	if res.RunID, err = r.Store.Save(snap, map[string]string{"scenario_step": name}); err != nil {
		return res, err
	}
	if step.Hessian == nil {
		return res, nil
	}

	hopts, err := cfg.HessianOptions()
	if err != nil {
		return res, err
	}
	h, flag, residual, err := a.Curvature(ctx, hopts)
	if err != nil {
		return res, err
	}
	spec, err := a.Eigen(h)
	if err != nil {
		return res, err
	}

	res.Hessian = true
	res.Converged = flag == hessian.Converged
	res.Residual = residual
	res.Eigenvalues = spec.Values
	info := storage.HessianMetadata{
		Mode:      hopts.Mode.String(),
		Precision: precisionName(hopts.Precision),
		Eps:       hopts.Eps,
		Converged: res.Converged,
		Residual:  residual,
	}
	return res, r.Store.SaveHessian(res.RunID, h, info)
}

func precisionName(p hessian.Precision) string {
	if p == hessian.PrecisionBig {
		return "big"
	}
	return "float64"
}

// ParameterSweep scales every coupling of a base configuration across a
// range and records the leading curvature at each scale.
type ParameterSweep struct {
	Base     *config.Config
	ScaleMin float64
	ScaleMax float64
	NumSteps int
}

type SweepResult struct {
	Scale     float64
	Flagged   int
	Leading   float64
	Converged bool
}

func RunSweep(ctx context.Context, sweep *ParameterSweep, r *Runner) ([]SweepResult, error) {
	if sweep.NumSteps < 2 {
		return nil, fmt.Errorf("%w: sweep needs at least 2 steps", ErrBadStep)
	}
	hopts, err := sweep.Base.HessianOptions()
	if err != nil {
		return nil, err
	}

	results := make([]SweepResult, 0, sweep.NumSteps)
	scaleStep := (sweep.ScaleMax - sweep.ScaleMin) / float64(sweep.NumSteps-1)
	for i := 0; i < sweep.NumSteps; i++ {
		scale := sweep.ScaleMin + float64(i)*scaleStep

		cfg := *sweep.Base
		cfg.Model.J = make([]float64, len(sweep.Base.Model.J))
		for j, v := range sweep.Base.Model.J {
			cfg.Model.J[j] = scale * v
		}

		a, err := r.Analyze(ctx, &cfg)
		if err != nil {
			return results, fmt.Errorf("scale %g: %w", scale, err)
		}
		_, flags, err := a.LinearResponses(ctx)
		if err != nil {
			return results, err
		}
		h, flag, _, err := a.Curvature(ctx, hopts)
		if err != nil {
			return results, fmt.Errorf("scale %g: %w", scale, err)
		}
		spec, err := a.Eigen(h)
		if err != nil {
			return results, fmt.Errorf("scale %g: %w", scale, err)
		}

		res := SweepResult{Scale: scale, Converged: flag == hessian.Converged}
		for _, f := range flags {
			if f != fim.FlagOK {
				res.Flagged++
			}
		}
		if len(spec.Values) > 0 {
			res.Leading = spec.Values[0]
		}
		results = append(results, res)
		r.logger().Info("sweep", zap.Int("step", i+1), zap.Int("of", sweep.NumSteps), zap.Float64("scale", scale), zap.Float64("leading", res.Leading))
	}
	return results, nil
}

// MonteCarloConfig jitters the fields of a base configuration to measure how
// often the responses become ill-conditioned around it.
type MonteCarloConfig struct {
	Base         *config.Config
	Perturbation float64
	NumTrials    int
	Seed         int64
}

type MonteCarloResult struct {
	TrialID int
	Fields  []float64
	Flagged int
	Rows    int
}

func RunMonteCarlo(ctx context.Context, mc *MonteCarloConfig, r *Runner) ([]MonteCarloResult, error) {
	base, err := mc.Base.BuildModel()
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(mc.Seed))
	results := make([]MonteCarloResult, 0, mc.NumTrials)

	for trial := 0; trial < mc.NumTrials; trial++ {
		cfg := *mc.Base
		cfg.Model.H = make([]float64, len(mc.Base.Model.H))
		for i, v := range mc.Base.Model.H {
			if maxent.Fixed(base.Kind(), base.N(), i) {
				continue
			}
			cfg.Model.H[i] = v + (rng.Float64()-0.5)*2*mc.Perturbation
		}

		a, err := r.Analyze(ctx, &cfg)
		if err != nil {
			return results, fmt.Errorf("trial %d: %w", trial, err)
		}
		_, flags, err := a.LinearResponses(ctx)
		if err != nil {
			return results, err
		}

		res := MonteCarloResult{TrialID: trial, Fields: cfg.Model.H, Rows: len(flags)}
		for _, f := range flags {
			if f != fim.FlagOK {
				res.Flagged++
			}
		}
		results = append(results, res)

		if (trial+1)%10 == 0 {
			r.logger().Info("monte carlo", zap.Int("done", trial+1), zap.Int("of", mc.NumTrials))
		}
	}
	return results, nil
}

// MonteCarloStats counts trials with and without flagged rows.
func MonteCarloStats(results []MonteCarloResult) (clean int, flagged int) {
	for _, r := range results {
		if r.Flagged == 0 {
			clean++
		} else {
			flagged++
		}
	}
	return
}
