// Package combin ranks strictly increasing index tuples.
//
// Pair parameters of a pairwise model are stored in upper-triangle order:
// (0,1), (0,2), ..., (0,n-1), (1,2), ... . [Rank] generalizes that order to
// tuples of any length, and [Unrank] inverts it.
package combin

import (
	"fmt"

	gcombin "gonum.org/v1/gonum/stat/combin"
)

// Binomial returns n choose k, or 0 when k is out of range.
func Binomial(n, k int) int {
	if k < 0 || k > n || n < 0 {
		return 0
	}
	return gcombin.Binomial(n, k)
}

// Rank returns the lexicographic position of idx among all strictly
// increasing tuples of len(idx) elements drawn from [0, n).
//
// Rank panics when idx has fewer than two elements, is not strictly
// increasing, or leaves [0, n).
func Rank(idx []int, n int) int {
	k := len(idx)
	if k < 2 {
		panic(fmt.Sprintf("combin: rank of %d-tuple", k))
	}
	for m, v := range idx {
		if v < 0 || v >= n {
			panic(fmt.Sprintf("combin: index %d out of range [0,%d)", v, n))
		}
		if m > 0 && idx[m-1] >= v {
			panic(fmt.Sprintf("combin: tuple %v not strictly increasing", idx))
		}
	}

	// count the tuples that come after idx and subtract from the last rank
	after := 0
	for m, v := range idx {
		after += Binomial(n-1-v, k-m)
	}
	return Binomial(n, k) - 1 - after
}

// Unrank returns the k-tuple at position r, the inverse of Rank.
func Unrank(r, k, n int) []int {
	total := Binomial(n, k)
	if k < 1 || r < 0 || r >= total {
		panic(fmt.Sprintf("combin: rank %d out of range for C(%d,%d)", r, n, k))
	}
	idx := make([]int, 0, k)
	v := 0
	for m := 0; m < k; m++ {
		for {
			count := Binomial(n-v-1, k-m-1)
			if r < count {
				break
			}
			r -= count
			v++
		}
		idx = append(idx, v)
		v++
	}
	return idx
}

// Pair returns the rank of the unordered pair {i, j}. The order of i and j
// does not matter; i == j panics.
func Pair(i, j, n int) int {
	if i == j {
		panic(fmt.Sprintf("combin: degenerate pair (%d,%d)", i, j))
	}
	if i > j {
		i, j = j, i
	}
	return Rank([]int{i, j}, n)
}

// PairCount is the number of unordered pairs over n spins.
func PairCount(n int) int {
	return n * (n - 1) / 2
}

// Pairs lists every pair (i<j) in rank order.
func Pairs(n int) [][2]int {
	out := make([][2]int, 0, PairCount(n))
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out = append(out, [2]int{i, j})
		}
	}
	return out
}
