package hessian

import (
	"math"
	"math/big"

	"github.com/san-kum/fimlab/internal/bigmath"
	"github.com/san-kum/fimlab/internal/maxent"
	"gonum.org/v1/gonum/floats"
)

// A scheme evaluates raw entries of the upper triangle. Entries of distinct
// (i,j) must be safe to evaluate concurrently.
type scheme interface {
	diag(i int, eps float64) float64
	off(i, j int, eps float64) float64
	// subtract reports whether off-diagonal entries still contain half of
	// each diagonal term.
	subtract() bool
	// factor scales the step halving difference into an error estimate.
	factor() float64
}

func newScheme(m maxent.Model, rows [][]float64, opts Options) (scheme, error) {
	if opts.Precision == PrecisionBig && opts.Mode != ModeMajority {
		return nil, ErrUnsupported
	}
	switch opts.Mode {
	case ModeFull:
		return newFullScheme(m, rows, opts.PThreshold), nil
	case ModeMajority:
		s := newMajorityScheme(m, rows)
		if opts.Precision == PrecisionBig {
			return newBigMajorityScheme(s, opts.Bits), nil
		}
		return s, nil
	case ModeMajorityCovariance:
		return newCovarianceScheme(m, rows), nil
	}
	return nil, ErrUnsupported
}

// roundedStep returns the step actually taken along dir once the largest
// component of hJ+dir*eps has been rounded to float64. NaN when dir is zero.
func roundedStep(hJ, dir []float64, eps float64) float64 {
	m := floats.MaxIdx(absAll(dir))
	return ((hJ[m] + dir[m]*eps) - hJ[m]) / dir[m]
}

func absAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Abs(x)
	}
	return out
}

func scaled(v []float64, c float64) []float64 {
	out := make([]float64, len(v))
	floats.ScaleTo(out, c, v)
	return out
}

func summed(a, b []float64) []float64 {
	out := make([]float64, len(a))
	floats.AddTo(out, a, b)
	return out
}

// fullScheme differences the divergence between configuration
// distributions one-sidedly.
type fullScheme struct {
	model maxent.Model
	hJ    []float64
	rows  [][]float64
	p     []float64
	log2p []float64
}

func newFullScheme(m maxent.Model, rows [][]float64, threshold float64) *fullScheme {
	hJ := m.Params()
	p := m.Probabilities(hJ)
	log2p := make([]float64, len(p))
	for s, v := range p {
		if v < threshold {
			p[s] = 0
			log2p[s] = math.Inf(-1)
			continue
		}
		log2p[s] = math.Log2(v)
	}
	return &fullScheme{model: m, hJ: hJ, rows: rows, p: p, log2p: log2p}
}

func (f *fullScheme) divergence(step []float64) float64 {
	q := f.model.Probabilities(summed(f.hJ, step))
	sum := 0.0
	for s, ps := range f.p {
		if ps == 0 {
			continue
		}
		sum += ps * (f.log2p[s] - math.Log2(q[s]))
	}
	return sum
}

func (f *fullScheme) diag(i int, eps float64) float64 {
	return 2 * f.divergence(scaled(f.rows[i], eps)) / (eps * eps)
}

func (f *fullScheme) off(i, j int, eps float64) float64 {
	return f.divergence(scaled(summed(f.rows[i], f.rows[j]), eps)) / (eps * eps)
}

func (f *fullScheme) subtract() bool  { return true }
func (f *fullScheme) factor() float64 { return 1 }

// majorityScheme differences the divergence between coarse class
// distributions with a symmetric step.
type majorityScheme struct {
	model   maxent.Model
	hJ      []float64
	rows    [][]float64
	lw      []float64
	classes []int
	nclass  int
	logpk   []float64
	pk      []float64
}

func newMajorityScheme(m maxent.Model, rows [][]float64) *majorityScheme {
	hJ := m.Params()
	lw := m.LogWeights(hJ)
	classes, nclass := m.Ensemble().Coarse()
	logZ := floats.LogSumExp(lw)
	logpk := classLogSumExp(lw, classes, nclass)
	pk := make([]float64, nclass)
	for c := range logpk {
		logpk[c] -= logZ
		pk[c] = math.Exp(logpk[c])
	}
	return &majorityScheme{
		model:   m,
		hJ:      hJ,
		rows:    rows,
		lw:      lw,
		classes: classes,
		nclass:  nclass,
		logpk:   logpk,
		pk:      pk,
	}
}

// divergence is D(p_k || p_k') after moving the energies by sign*corr.
func (s *majorityScheme) divergence(corr []float64, sign float64) float64 {
	lw := make([]float64, len(s.lw))
	for i, v := range s.lw {
		lw[i] = v - sign*corr[i]
	}
	logZ := floats.LogSumExp(lw)
	mod := classLogSumExp(lw, s.classes, s.nclass)
	d := 0.0
	for c, pc := range s.pk {
		if pc == 0 {
			continue
		}
		d += pc * (s.logpk[c] - (mod[c] - logZ))
	}
	return d
}

func (s *majorityScheme) symmetric(dir []float64, eps float64, halve bool, div func([]float64, float64) float64) (float64, float64) {
	e := roundedStep(s.hJ, dir, eps)
	if halve {
		e /= 2
	}
	if math.IsNaN(e) {
		return 0, e
	}
	corr := s.model.Energies(scaled(dir, e))
	return div(corr, 1) + div(corr, -1), e
}

func (s *majorityScheme) diag(i int, eps float64) float64 {
	d, e := s.symmetric(s.rows[i], eps, false, s.divergence)
	if math.IsNaN(e) {
		return 0
	}
	return 2 * d / math.Ln2 / (2 * e * e)
}

func (s *majorityScheme) off(i, j int, eps float64) float64 {
	d, e := s.symmetric(summed(s.rows[i], s.rows[j]), eps, true, s.divergence)
	if math.IsNaN(e) {
		return 0
	}
	return d / math.Ln2 / (2 * e * e)
}

func (s *majorityScheme) subtract() bool  { return true }
func (s *majorityScheme) factor() float64 { return 4.0 / 3 }

// bigMajorityScheme is majorityScheme with the log-sum-exp reductions and
// the divergence sum carried out in extended precision.
type bigMajorityScheme struct {
	*majorityScheme
	prec  uint
	lw    []*big.Float
	logpk []*big.Float
}

func newBigMajorityScheme(s *majorityScheme, prec uint) *bigMajorityScheme {
	lw := make([]*big.Float, len(s.lw))
	for i, v := range s.lw {
		lw[i] = bigmath.FromFloat(v, prec)
	}
	logZ := bigmath.LogSumExp(lw)
	logpk := bigClassLogSumExp(lw, s.classes, s.nclass, prec)
	for _, v := range logpk {
		v.Sub(v, logZ)
	}
	return &bigMajorityScheme{majorityScheme: s, prec: prec, lw: lw, logpk: logpk}
}

func (s *bigMajorityScheme) divergence(corr []float64, sign float64) float64 {
	lw := make([]*big.Float, len(s.lw))
	shift := bigmath.New(s.prec)
	for i, v := range s.lw {
		shift.SetFloat64(sign * corr[i])
		lw[i] = bigmath.New(s.prec).Sub(v, shift)
	}
	logZ := bigmath.LogSumExp(lw)
	mod := bigClassLogSumExp(lw, s.classes, s.nclass, s.prec)

	d := bigmath.New(s.prec)
	term := bigmath.New(s.prec)
	for c, pc := range s.pk {
		if pc == 0 {
			continue
		}
		term.Sub(mod[c], logZ)
		term.Sub(s.logpk[c], term)
		term.Mul(term, bigmath.FromFloat(pc, s.prec))
		d.Add(d, term)
	}
	out, _ := d.Float64()
	return out
}

func (s *bigMajorityScheme) diag(i int, eps float64) float64 {
	d, e := s.symmetric(s.rows[i], eps, false, s.divergence)
	if math.IsNaN(e) {
		return 0
	}
	return 2 * d / math.Ln2 / (2 * e * e)
}

func (s *bigMajorityScheme) off(i, j int, eps float64) float64 {
	d, e := s.symmetric(summed(s.rows[i], s.rows[j]), eps, true, s.divergence)
	if math.IsNaN(e) {
		return 0
	}
	return d / math.Ln2 / (2 * e * e)
}

// covarianceScheme evaluates the coarse Fisher information directly as
// the covariance of class averaged energy changes under the class weights.
type covarianceScheme struct {
	model   maxent.Model
	hJ      []float64
	rows    [][]float64
	p       []float64
	classes []int
	pk      []float64
}

func newCovarianceScheme(m maxent.Model, rows [][]float64) *covarianceScheme {
	hJ := m.Params()
	p := m.Probabilities(hJ)
	classes, nclass := m.Ensemble().Coarse()
	pk := make([]float64, nclass)
	for s, ps := range p {
		pk[classes[s]] += ps
	}
	return &covarianceScheme{model: m, hJ: hJ, rows: rows, p: p, classes: classes, pk: pk}
}

// deviations returns mean - classMean_k of the energy change along dir.
func (s *covarianceScheme) deviations(dir []float64, e float64) []float64 {
	corr := s.model.Energies(scaled(dir, e))
	dev := make([]float64, len(s.pk))
	mean := 0.0
	for st, ps := range s.p {
		dev[s.classes[st]] += ps * corr[st]
		mean += ps * corr[st]
	}
	for c, pc := range s.pk {
		if pc == 0 {
			dev[c] = 0
			continue
		}
		dev[c] = mean - dev[c]/pc
	}
	return dev
}

func (s *covarianceScheme) diag(i int, eps float64) float64 {
	e := roundedStep(s.hJ, s.rows[i], eps)
	if math.IsNaN(e) {
		return 0
	}
	dev := s.deviations(s.rows[i], e)
	sum := 0.0
	for c, pc := range s.pk {
		sum += pc * dev[c] * dev[c]
	}
	return sum / math.Ln2 / (e * e)
}

func (s *covarianceScheme) off(i, j int, eps float64) float64 {
	ei := roundedStep(s.hJ, s.rows[i], eps) / 2
	ej := roundedStep(s.hJ, s.rows[j], eps) / 2
	if math.IsNaN(ei) || math.IsNaN(ej) {
		return 0
	}
	di := s.deviations(s.rows[i], ei)
	dj := s.deviations(s.rows[j], ej)
	sum := 0.0
	for c, pc := range s.pk {
		sum += pc * di[c] * dj[c]
	}
	return sum / math.Ln2 / (ei * ej)
}

func (s *covarianceScheme) subtract() bool  { return false }
func (s *covarianceScheme) factor() float64 { return 1 }

func classLogSumExp(lw []float64, classes []int, nclass int) []float64 {
	mx := make([]float64, nclass)
	for c := range mx {
		mx[c] = math.Inf(-1)
	}
	for s, v := range lw {
		if v > mx[classes[s]] {
			mx[classes[s]] = v
		}
	}
	sum := make([]float64, nclass)
	for s, v := range lw {
		c := classes[s]
		if math.IsInf(mx[c], -1) {
			continue
		}
		sum[c] += math.Exp(v - mx[c])
	}
	out := make([]float64, nclass)
	for c := range out {
		if math.IsInf(mx[c], -1) {
			out[c] = mx[c]
			continue
		}
		out[c] = mx[c] + math.Log(sum[c])
	}
	return out
}

func bigClassLogSumExp(lw []*big.Float, classes []int, nclass int, prec uint) []*big.Float {
	groups := make([][]*big.Float, nclass)
	for s, v := range lw {
		groups[classes[s]] = append(groups[classes[s]], v)
	}
	out := make([]*big.Float, nclass)
	for c, g := range groups {
		if len(g) == 0 {
			out[c] = bigmath.New(prec).SetInf(true)
			continue
		}
		out[c] = bigmath.LogSumExp(g)
	}
	return out
}
