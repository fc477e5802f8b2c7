package config

import (
	"sort"

	"github.com/san-kum/fimlab/internal/maxent"
)

func ising(h, J []float64) maxent.Spec {
	return maxent.Spec{Kind: "ising", H: h, J: J}
}

func uniform(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Presets holds ready-made runs keyed by model family, then name.
var Presets = map[string]map[string]*Config{
	"ising": {
		"independent5": {
			Model:   ising([]float64{0.1, -0.2, 0.3, 0.05, -0.15}, uniform(10, 0)),
			Variant: "magnetization",
		},
		"ferro5": {
			Model:   ising(uniform(5, 0), uniform(10, 0.4)),
			Variant: "coupling",
		},
		"frustrated4": {
			Model:   ising([]float64{0.1, 0, -0.1, 0}, []float64{0.5, -0.5, 0.5, 0.5, -0.5, 0.5}),
			Variant: "combined",
		},
	},
	"potts": {
		"potts3": {
			Model: maxent.Spec{
				Kind: "potts",
				K:    3,
				H:    []float64{0, 0, 0, 0.2, -0.1, 0.3, -0.2, 0.1, 0.15},
				J:    []float64{0.3, -0.2, 0.25},
			},
			Variant: "potts_coupling",
		},
	},
	"sampled": {
		"large": {
			Model: maxent.Spec{
				Kind:   "ising",
				H:      uniform(12, 0.05),
				J:      uniform(66, 0.08),
				Sample: &maxent.SampleConfig{Samples: 20000, BurnIn: 2000, Thin: 5, Seed: 1},
			},
			Variant: "coupling",
			Hessian: HessianConfig{Mode: "covariance"},
		},
	},
}

// GetPreset returns a copy of the named preset filled in with defaults, or
// nil.
func GetPreset(family, preset string) *Config {
	familyPresets, ok := Presets[family]
	if !ok {
		return nil
	}
	p, ok := familyPresets[preset]
	if !ok {
		return nil
	}

	cfg := DefaultConfig()
	cfg.Model = p.Model
	cfg.Model.H = append([]float64(nil), p.Model.H...)
	cfg.Model.J = append([]float64(nil), p.Model.J...)
	if p.Model.Sample != nil {
		s := *p.Model.Sample
		cfg.Model.Sample = &s
	}
	cfg.Variant = p.Variant
	if p.Hessian.Mode != "" {
		cfg.Hessian.Mode = p.Hessian.Mode
	}
	return cfg
}

func ListPresets(family string) []string {
	familyPresets, ok := Presets[family]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(familyPresets))
	for name := range familyPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Families() []string {
	out := make([]string, 0, len(Presets))
	for f := range Presets {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
