package moments

import (
	"fmt"

	"github.com/san-kum/fimlab/internal/maxent"
)

// Potts caches indicator masks over a k-state ensemble:
//
//	pair     (a,i,b,j): s_i == a and s_j == b, i < j
//	triplet  (g,m,i,j): s_m == g and s_i == s_j, i < j
//	quartet  (i,j,k,l): s_i == s_j and s_k == s_l
type Potts struct {
	n, k     int
	pairs    map[[4]int][]bool
	triplets map[[4]int][]bool
	quartets map[[4]int][]bool
}

// NewPotts builds all masks for the ensemble.
func NewPotts(ens *maxent.Ensemble) *Potts {
	if ens.Kind != maxent.KindPotts {
		panic("moments: potts cache over " + ens.Kind.String() + " ensemble")
	}
	n, k := ens.N, ens.K
	c := &Potts{
		n:        n,
		k:        k,
		pairs:    make(map[[4]int][]bool),
		triplets: make(map[[4]int][]bool),
		quartets: make(map[[4]int][]bool),
	}

	mask := func(pred func(row []int8) bool) []bool {
		out := make([]bool, ens.Len())
		for s := range out {
			out[s] = pred(ens.Row(s))
		}
		return out
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for a := 0; a < k; a++ {
				for b := 0; b < k; b++ {
					c.pairs[[4]int{a, i, b, j}] = mask(func(row []int8) bool {
						return int(row[i]) == a && int(row[j]) == b
					})
				}
			}
		}
	}
	for g := 0; g < k; g++ {
		for m := 0; m < n; m++ {
			for i := 0; i < n; i++ {
				for j := i + 1; j < n; j++ {
					c.triplets[[4]int{g, m, i, j}] = mask(func(row []int8) bool {
						return int(row[m]) == g && row[i] == row[j]
					})
				}
			}
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k2 := 0; k2 < n; k2++ {
				for l := k2 + 1; l < n; l++ {
					key := pottsQuartetKey(i, j, k2, l)
					if _, ok := c.quartets[key]; ok {
						continue
					}
					c.quartets[key] = mask(func(row []int8) bool {
						return row[i] == row[j] && row[k2] == row[l]
					})
				}
			}
		}
	}
	return c
}

// ExpectPair is P(s_i == a, s_j == b) under p. The spin order may be
// either way round; states travel with their spins.
func (c *Potts) ExpectPair(a, i, b, j int, p []float64) float64 {
	if i > j {
		a, i, b, j = b, j, a, i
	}
	col, ok := c.pairs[[4]int{a, i, b, j}]
	if !ok {
		panic(fmt.Sprintf("moments: pair (%d,%d,%d,%d) not cached", a, i, b, j))
	}
	return sum(col, p)
}

// ExpectTriplet is P(s_m == g, s_i == s_j) under p.
func (c *Potts) ExpectTriplet(g, m, i, j int, p []float64) float64 {
	if i > j {
		i, j = j, i
	}
	col, ok := c.triplets[[4]int{g, m, i, j}]
	if !ok {
		panic(fmt.Sprintf("moments: triplet (%d,%d,%d,%d) not cached", g, m, i, j))
	}
	return sum(col, p)
}

// ExpectQuartet is P(s_i == s_j, s_k == s_l) under p.
func (c *Potts) ExpectQuartet(i, j, k, l int, p []float64) float64 {
	col, ok := c.quartets[pottsQuartetKey(i, j, k, l)]
	if !ok {
		panic(fmt.Sprintf("moments: quartet (%d,%d,%d,%d) not cached", i, j, k, l))
	}
	return sum(col, p)
}

func pottsQuartetKey(i, j, k, l int) [4]int {
	if i > j {
		i, j = j, i
	}
	if k > l {
		k, l = l, k
	}
	if k < i || (k == i && l < j) {
		i, j, k, l = k, l, i, j
	}
	return [4]int{i, j, k, l}
}

func sum(mask []bool, p []float64) float64 {
	if len(mask) != len(p) {
		panic(fmt.Sprintf("moments: %d weights for %d configurations", len(p), len(mask)))
	}
	total := 0.0
	for s, on := range mask {
		if on {
			total += p[s]
		}
	}
	return total
}
