package perturb

import (
	"fmt"

	"github.com/san-kum/fimlab/internal/combin"
)

// PairFunc returns P(s_i = a, s_j = b) under the unperturbed model.
type PairFunc func(a, i, b, j int) float64

// PottsState moves spin i into state g with probability eps. Agreement
// probabilities are rebuilt from the joint state distribution of each pair.
// The direction is always Up.
func PottsState(obs []float64, n, k, i, g int, eps float64, pair PairFunc) []float64 {
	return PottsStateMany(obs, n, k, []int{i}, g, []float64{eps}, pair)
}

// PottsStateMany applies PottsState for each (idx[m], eps[m]) in order.
func PottsStateMany(obs []float64, n, k int, idx []int, g int, eps []float64, pair PairFunc) []float64 {
	checkLengths(len(idx), len(eps))
	if g < 0 || g >= k {
		panic(fmt.Sprintf("perturb: state %d out of range [0,%d)", g, k))
	}
	out := clone(obs)
	si, sisj := out[:k*n], out[k*n:]
	for m, i := range idx {
		e := eps[m]
		moved := 0.0
		for a := 0; a < k; a++ {
			if a != g {
				moved += si[a*n+i]
				si[a*n+i] *= 1 - e
			}
		}
		si[g*n+i] += e * moved

		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			agree := pair(g, i, g, j)
			for a := 0; a < k; a++ {
				if a == g {
					continue
				}
				agree += e*pair(a, i, g, j) + (1-e)*pair(a, i, a, j)
			}
			sisj[combin.Pair(i, j, n)] = agree
		}
	}
	return out
}

// PottsMimic replaces spin i with a copy of spin a with probability eps.
// The direction is always Up.
func PottsMimic(obs []float64, n, k, i, a int, eps float64) []float64 {
	return PottsMimicMany(obs, n, k, []int{i}, []int{a}, []float64{eps})
}

// PottsMimicMany applies PottsMimic for each (idx[m], partner[m], eps[m]).
func PottsMimicMany(obs []float64, n, k int, idx, partner []int, eps []float64) []float64 {
	checkLengths(len(idx), len(eps))
	checkLengths(len(idx), len(partner))
	out := clone(obs)
	si, sisj := out[:k*n], out[k*n:]
	for m, i := range idx {
		a, e := partner[m], eps[m]
		if a == i {
			panic(fmt.Sprintf("perturb: spin %d cannot mimic itself", i))
		}
		orig := clone(sisj)
		for g := 0; g < k; g++ {
			si[g*n+i] = (1-e)*si[g*n+i] + e*si[g*n+a]
		}
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			ij := combin.Pair(i, j, n)
			if j == a {
				sisj[ij] = (1-e)*sisj[ij] + e
				continue
			}
			sisj[ij] = (1-e)*sisj[ij] + e*orig[combin.Pair(a, j, n)]
		}
	}
	return out
}
