// Package metrics exports solver and curvature diagnostics as Prometheus
// collectors. A nil *Recorder is valid and records nothing.
package metrics

import (
	"math"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Recorder struct {
	solves     *prometheus.CounterVec
	condition  prometheus.Histogram
	relErr     prometheus.Histogram
	searches   prometheus.Counter
	iterations *prometheus.CounterVec
	hessFlags  *prometheus.CounterVec
	stepSize   *prometheus.GaugeVec
	residual   *prometheus.GaugeVec
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() to
// keep runs isolated.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		solves: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fimlab_linear_solves_total",
			Help: "Linearized perturbation solves by variant and error flag",
		}, []string{"variant", "flag"}),
		condition: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fimlab_constraint_condition_log10",
			Help:    "log10 of the 2-norm condition number of constraint matrices",
			Buckets: prometheus.LinearBuckets(0, 2, 10),
		}),
		relErr: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fimlab_linear_relerr_log10",
			Help:    "Largest log10 relative change of a solution under step halving",
			Buckets: prometheus.LinearBuckets(-15, 1.5, 12),
		}),
		searches: f.NewCounter(prometheus.CounterOpts{
			Name: "fimlab_step_search_evaluations_total",
			Help: "Solves spent in adaptive step size search",
		}),
		iterations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fimlab_curvature_iterations_total",
			Help: "Checked Hessian evaluations by mode",
		}, []string{"mode"}),
		hessFlags: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fimlab_curvature_results_total",
			Help: "Curvature results by mode and convergence flag",
		}, []string{"mode", "flag"}),
		stepSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fimlab_curvature_step",
			Help: "Finite difference step of the last accepted Hessian",
		}, []string{"mode"}),
		residual: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fimlab_curvature_residual",
			Help: "Frobenius norm of the step halving error of the last Hessian",
		}, []string{"mode"}),
	}
}

// ObserveSolve records one linear response solve.
func (r *Recorder) ObserveSolve(variant string, flag int, cond, maxRelErr float64) {
	if r == nil {
		return
	}
	r.solves.WithLabelValues(variant, strconv.Itoa(flag)).Inc()
	if cond > 0 && !math.IsInf(cond, 0) && !math.IsNaN(cond) {
		r.condition.Observe(math.Log10(cond))
	}
	if !math.IsInf(maxRelErr, 0) && !math.IsNaN(maxRelErr) {
		r.relErr.Observe(maxRelErr)
	}
}

// ObserveSearch counts solves made while searching for a step size.
func (r *Recorder) ObserveSearch(evaluations int) {
	if r == nil {
		return
	}
	r.searches.Add(float64(evaluations))
}

// ObserveIteration counts one checked Hessian evaluation.
func (r *Recorder) ObserveIteration(mode string) {
	if r == nil {
		return
	}
	r.iterations.WithLabelValues(mode).Inc()
}

// ObserveCurvature records the outcome of an adaptive curvature run.
func (r *Recorder) ObserveCurvature(mode string, flag int, eps, residual float64) {
	if r == nil {
		return
	}
	r.hessFlags.WithLabelValues(mode, strconv.Itoa(flag)).Inc()
	r.stepSize.WithLabelValues(mode).Set(eps)
	r.residual.WithLabelValues(mode).Set(residual)
}

// WriteFile dumps every metric gathered by g in the text exposition format.
func WriteFile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
