// Package moments caches products of spin columns over an ensemble so
// that the third and fourth order expectations needed by the linear
// response solver are a dot product away.
package moments

import (
	"fmt"
	"slices"

	"github.com/san-kum/fimlab/internal/maxent"
)

// Binary caches triplet and quartet products of ±1 spins. Keys are sorted
// index tuples, so (i,j,k) and (k,i,j) share a column and repeated indices
// collapse (s_i*s_i = 1).
type Binary struct {
	n        int
	triplets map[[3]int][]int8
	quartets map[[4]int][]int8
}

// NewBinary builds every triplet (spin, pair) and quartet (pair, pair)
// product the constraint matrix reads.
func NewBinary(ens *maxent.Ensemble) *Binary {
	if ens.Kind != maxent.KindIsing {
		panic("moments: binary cache over " + ens.Kind.String() + " ensemble")
	}
	n := ens.N
	c := &Binary{
		n:        n,
		triplets: make(map[[3]int][]int8),
		quartets: make(map[[4]int][]int8),
	}

	for i := 0; i < n; i++ {
		for k := 0; k < n; k++ {
			for l := k + 1; l < n; l++ {
				key := tripletKey(i, k, l)
				if _, ok := c.triplets[key]; !ok {
					c.triplets[key] = product(ens, key[:])
				}
			}
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := 0; k < n; k++ {
				for l := k + 1; l < n; l++ {
					key := quartetKey(i, j, k, l)
					if _, ok := c.quartets[key]; !ok {
						c.quartets[key] = product(ens, key[:])
					}
				}
			}
		}
	}
	return c
}

// Triplet returns the column s_i*s_j*s_k.
func (c *Binary) Triplet(i, j, k int) []int8 {
	col, ok := c.triplets[tripletKey(i, j, k)]
	if !ok {
		panic(fmt.Sprintf("moments: triplet (%d,%d,%d) not cached", i, j, k))
	}
	return col
}

// Quartet returns the column s_i*s_j*s_k*s_l.
func (c *Binary) Quartet(i, j, k, l int) []int8 {
	col, ok := c.quartets[quartetKey(i, j, k, l)]
	if !ok {
		panic(fmt.Sprintf("moments: quartet (%d,%d,%d,%d) not cached", i, j, k, l))
	}
	return col
}

// ExpectTriplet is <s_i s_j s_k> under p.
func (c *Binary) ExpectTriplet(i, j, k int, p []float64) float64 {
	return dot(c.Triplet(i, j, k), p)
}

// ExpectQuartet is <s_i s_j s_k s_l> under p.
func (c *Binary) ExpectQuartet(i, j, k, l int, p []float64) float64 {
	return dot(c.Quartet(i, j, k, l), p)
}

// Size reports the number of cached columns.
func (c *Binary) Size() (triplets, quartets int) {
	return len(c.triplets), len(c.quartets)
}

func tripletKey(i, j, k int) [3]int {
	key := [3]int{i, j, k}
	slices.Sort(key[:])
	return key
}

func quartetKey(i, j, k, l int) [4]int {
	key := [4]int{i, j, k, l}
	slices.Sort(key[:])
	return key
}

func product(ens *maxent.Ensemble, idx []int) []int8 {
	col := make([]int8, ens.Len())
	for s := range col {
		row := ens.Row(s)
		v := int8(1)
		for _, i := range idx {
			v *= row[i]
		}
		col[s] = v
	}
	return col
}

func dot(col []int8, p []float64) float64 {
	if len(col) != len(p) {
		panic(fmt.Sprintf("moments: %d weights for %d configurations", len(p), len(col)))
	}
	sum := 0.0
	for s, v := range col {
		sum += float64(v) * p[s]
	}
	return sum
}
