// Package perturb maps a moment vector to the moments after a small
// stochastic perturbation of one spin.
//
// Ising vectors hold <s_i> followed by <s_i s_j> in pair rank order. Potts
// vectors hold P(s_i = g) at g*n+i followed by P(s_i = s_j). All functions
// return a fresh vector and leave their input untouched. Results are not
// clipped to the valid moment range.
package perturb

import (
	"fmt"

	"github.com/san-kum/fimlab/internal/combin"
)

// Direction is the sign convention attached to a perturbation.
type Direction int

const (
	Down Direction = -1
	Up   Direction = 1
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// Sign is +1 for Up and -1 for Down.
func (d Direction) Sign() float64 {
	if d == Up {
		return 1
	}
	return -1
}

// Field replaces spin i with a spin pinned to +1 (Up) or -1 (Down) with
// probability eps.
func Field(obs []float64, n, i int, eps float64, dir Direction) []float64 {
	return FieldMany(obs, n, []int{i}, []float64{eps}, dir)
}

// FieldMany applies Field for each (idx[m], eps[m]) in order.
func FieldMany(obs []float64, n int, idx []int, eps []float64, dir Direction) []float64 {
	checkLengths(len(idx), len(eps))
	out := clone(obs)
	si, sisj := out[:n], out[n:]
	s := dir.Sign()
	for m, i := range idx {
		e := eps[m]
		si[i] -= e * (si[i] - s)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			ij := combin.Pair(i, j, n)
			sisj[ij] -= e * (sisj[ij] - s*si[j])
		}
	}
	return out
}

// Mean shifts <s_i> by a fixed eps and the correlations of spin i by
// eps*<s_j>.
func Mean(obs []float64, n, i int, eps float64, dir Direction) []float64 {
	return MeanMany(obs, n, []int{i}, []float64{eps}, dir)
}

// MeanMany applies Mean for each (idx[m], eps[m]) in order.
func MeanMany(obs []float64, n int, idx []int, eps []float64, dir Direction) []float64 {
	checkLengths(len(idx), len(eps))
	out := clone(obs)
	si, sisj := out[:n], out[n:]
	s := dir.Sign()
	for m, i := range idx {
		e := eps[m]
		si[i] += s * e
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			ij := combin.Pair(i, j, n)
			sisj[ij] += s * e * si[j]
		}
	}
	return out
}

// Mimic replaces spin i with a copy of spin a (Up) or of -s_a (Down) with
// probability eps.
func Mimic(obs []float64, n, i, a int, eps float64, dir Direction) []float64 {
	return MimicMany(obs, n, []int{i}, []int{a}, []float64{eps}, dir)
}

// MimicMany applies Mimic for each (idx[m], partner[m], eps[m]) in order.
// Each step reads the correlations it copies from the vector as it stood
// before that step.
func MimicMany(obs []float64, n int, idx, partner []int, eps []float64, dir Direction) []float64 {
	checkLengths(len(idx), len(eps))
	checkLengths(len(idx), len(partner))
	out := clone(obs)
	si, sisj := out[:n], out[n:]
	s := dir.Sign()
	for m, i := range idx {
		a, e := partner[m], eps[m]
		if a == i {
			panic(fmt.Sprintf("perturb: spin %d cannot mimic itself", i))
		}
		orig := clone(sisj)
		si[i] -= e * (si[i] - s*si[a])
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			ij := combin.Pair(i, j, n)
			if j == a {
				sisj[ij] -= e * (sisj[ij] - s)
				continue
			}
			sisj[ij] -= e * (sisj[ij] - s*orig[combin.Pair(j, a, n)])
		}
	}
	return out
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}

func checkLengths(a, b int) {
	if a != b {
		panic(fmt.Sprintf("perturb: %d indices for %d step sizes", a, b))
	}
}
