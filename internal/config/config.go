package config

import (
	"fmt"
	"os"

	"github.com/san-kum/fimlab/internal/fim"
	"github.com/san-kum/fimlab/internal/hessian"
	"github.com/san-kum/fimlab/internal/maxent"
	"gopkg.in/yaml.v3"
)

const (
	DefaultVariant = "coupling"
	DefaultEps     = 1e-7
	DefaultDataDir = "runs"
)

// Config describes one analysis run.
type Config struct {
	Model   maxent.Spec       `yaml:"model"`
	Variant string            `yaml:"variant"`
	Eps     float64           `yaml:"eps"`
	Workers int               `yaml:"workers"`
	Solver  fim.SolverOptions `yaml:"solver"`
	Hessian HessianConfig     `yaml:"hessian"`
	DataDir string            `yaml:"data_dir"`
	// CacheDir enables the response cache when set.
	CacheDir string `yaml:"cache_dir,omitempty"`
}

type HessianConfig struct {
	Mode          string  `yaml:"mode"`
	Big           bool    `yaml:"big"`
	Bits          uint    `yaml:"bits"`
	Eps           float64 `yaml:"eps"`
	RTol          float64 `yaml:"rtol"`
	MaxIterations int     `yaml:"max_iterations"`
}

func DefaultConfig() *Config {
	h := hessian.DefaultOptions()
	return &Config{
		Model: maxent.Spec{
			Kind: "ising",
			H:    []float64{0, 0, 0},
			J:    []float64{0, 0, 0},
		},
		Variant: DefaultVariant,
		Eps:     DefaultEps,
		Solver:  fim.DefaultSolverOptions(),
		Hessian: HessianConfig{
			Mode:          h.Mode.String(),
			Bits:          h.Bits,
			Eps:           h.Eps,
			RTol:          h.RTol,
			MaxIterations: h.MaxIterations,
		},
		DataDir: DefaultDataDir,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// BuildModel constructs the configured model.
func (c *Config) BuildModel() (maxent.Model, error) {
	return maxent.Build(c.Model)
}

func (c *Config) AnalyzerOptions() fim.Options {
	return fim.Options{
		Eps:     c.Eps,
		Workers: c.Workers,
		Solver:  c.Solver,
	}
}

// HessianOptions converts the hessian section. Zero fields fall back to the
// estimator defaults.
func (c *Config) HessianOptions() (hessian.Options, error) {
	mode, err := hessian.ParseMode(c.Hessian.Mode)
	if err != nil {
		return hessian.Options{}, err
	}
	opts := hessian.Options{
		Mode:          mode,
		Bits:          c.Hessian.Bits,
		Eps:           c.Hessian.Eps,
		RTol:          c.Hessian.RTol,
		MaxIterations: c.Hessian.MaxIterations,
		Workers:       c.Workers,
	}
	if c.Hessian.Big {
		opts.Precision = hessian.PrecisionBig
	}
	return opts, nil
}
