package perturb

import (
	"math"
	"testing"

	"github.com/san-kum/fimlab/internal/maxent"
	"github.com/san-kum/fimlab/internal/moments"
)

const tol = 1e-12

func TestFieldHandComputed(t *testing.T) {
	obs := []float64{0.2, -0.1, 0.4, 0.1, 0.05, -0.2}

	tests := []struct {
		name string
		dir  Direction
		want []float64
	}{
		{"up", Up, []float64{0.28, -0.1, 0.4, 0.08, 0.085, -0.2}},
		{"down", Down, []float64{0.08, -0.1, 0.4, 0.1, 0.005, -0.2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Field(obs, 3, 0, 0.1, tt.dir)
			assertClose(t, tt.want, got)
		})
	}

	if obs[0] != 0.2 {
		t.Error("input vector was modified")
	}
}

func TestMeanHandComputed(t *testing.T) {
	obs := []float64{0.2, -0.1, 0.4, 0.1, 0.05, -0.2}
	got := Mean(obs, 3, 1, 0.01, Up)
	want := []float64{0.2, -0.09, 0.4, 0.1 + 0.01*0.2, 0.05, -0.2 + 0.01*0.4}
	assertClose(t, want, got)

	got = Mean(obs, 3, 1, 0.01, Down)
	want = []float64{0.2, -0.11, 0.4, 0.1 - 0.01*0.2, 0.05, -0.2 - 0.01*0.4}
	assertClose(t, want, got)
}

func TestIsingRulesMatchExactMixtures(t *testing.T) {
	m, err := maxent.NewIsing([]float64{0.3, -0.2, 0.1, 0.4}, []float64{0.2, -0.1, 0.05, 0.3, 0, -0.25})
	if err != nil {
		t.Fatal(err)
	}
	n, eps := 4, 0.03
	obs := m.Observables(m.Params())

	tests := []struct {
		name    string
		got     []float64
		replace func(row []int8)
	}{
		{"field up", Field(obs, n, 2, eps, Up), func(row []int8) { row[2] = 1 }},
		{"field down", Field(obs, n, 2, eps, Down), func(row []int8) { row[2] = -1 }},
		{"mimic up", Mimic(obs, n, 1, 3, eps, Up), func(row []int8) { row[1] = row[3] }},
		{"mimic down", Mimic(obs, n, 1, 3, eps, Down), func(row []int8) { row[1] = -row[3] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := mixture(m, eps, tt.replace)
			assertClose(t, want, tt.got)
		})
	}
}

func TestPottsRulesMatchExactMixtures(t *testing.T) {
	h := []float64{0, 0, 0, 0.2, -0.3, 0.1, -0.1, 0.4, 0}
	m, err := maxent.NewPotts(3, h, []float64{0.5, -0.2, 0.3})
	if err != nil {
		t.Fatal(err)
	}
	n, k, eps := 3, 3, 0.05
	obs := m.Observables(m.Params())
	p := m.Probabilities(m.Params())
	cache := moments.NewPotts(m.Ensemble())
	pair := func(a, i, b, j int) float64 { return cache.ExpectPair(a, i, b, j, p) }

	for g := 0; g < k; g++ {
		got := PottsState(obs, n, k, 1, g, eps, pair)
		want := mixture(m, eps, func(row []int8) { row[1] = int8(g) })
		assertClose(t, want, got)
	}

	got := PottsMimic(obs, n, k, 0, 2, eps)
	want := mixture(m, eps, func(row []int8) { row[0] = row[2] })
	assertClose(t, want, got)
}

func TestManyMatchesSequentialSingles(t *testing.T) {
	obs := []float64{0.2, -0.1, 0.4, 0.1, 0.05, -0.2}
	many := FieldMany(obs, 3, []int{0, 2}, []float64{0.1, 0.2}, Down)
	seq := Field(Field(obs, 3, 0, 0.1, Down), 3, 2, 0.2, Down)
	assertClose(t, seq, many)
}

func TestLengthMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	FieldMany([]float64{0, 0, 0}, 2, []int{0, 1}, []float64{0.1}, Up)
}

// mixture returns the moments of (1-eps)*p + eps*(p pushed through replace).
func mixture(m maxent.Model, eps float64, replace func(row []int8)) []float64 {
	ens := m.Ensemble()
	p := m.Probabilities(m.Params())
	size := m.ParamCount()
	out := make([]float64, size)
	f := make([]float64, size)
	row := make([]int8, ens.N)
	for s := 0; s < ens.Len(); s++ {
		maxent.Features(ens.Kind, ens.K, ens.Row(s), f)
		for i := range out {
			out[i] += (1 - eps) * p[s] * f[i]
		}
		copy(row, ens.Row(s))
		replace(row)
		maxent.Features(ens.Kind, ens.K, row, f)
		for i := range out {
			out[i] += eps * p[s] * f[i]
		}
	}
	return out
}

func assertClose(t *testing.T, want, got []float64) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("length %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(want[i]-got[i]) > tol {
			t.Errorf("entry %d: got %.15f, want %.15f", i, got[i], want[i])
		}
	}
}
