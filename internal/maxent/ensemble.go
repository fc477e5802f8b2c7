package maxent

import (
	"fmt"
	"slices"
	"strings"

	"github.com/san-kum/fimlab/internal/combin"
)

// Kind selects the spin alphabet and energy function of a model.
type Kind int

const (
	// KindIsing spins take values -1 and +1.
	KindIsing Kind = iota
	// KindPotts spins take values 0..K-1 and couple through agreement.
	KindPotts
)

func (k Kind) String() string {
	switch k {
	case KindIsing:
		return "ising"
	case KindPotts:
		return "potts"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "ising", "binary", "":
		return KindIsing, nil
	case "potts":
		return KindPotts, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// MaxStates bounds exact enumeration.
const MaxStates = 1 << 20

// Ensemble is a set of spin configurations stored row-major, N columns per
// row. It is read-only after construction and safe to share.
type Ensemble struct {
	Kind   Kind
	N      int
	K      int
	States []int8

	classes []int
	nclass  int
}

// Enumerate lists all K^N configurations of the given kind.
func Enumerate(kind Kind, n, k int) (*Ensemble, error) {
	if kind == KindIsing {
		k = 2
	}
	total := 1
	for i := 0; i < n; i++ {
		total *= k
		if total > MaxStates {
			return nil, fmt.Errorf("%w: %d^%d states", ErrTooLarge, k, n)
		}
	}

	states := make([]int8, total*n)
	for s := 0; s < total; s++ {
		code := s
		row := states[s*n : (s+1)*n]
		for i := n - 1; i >= 0; i-- {
			digit := int8(code % k)
			code /= k
			if kind == KindIsing {
				row[i] = 2*digit - 1
			} else {
				row[i] = digit
			}
		}
	}
	return NewEnsemble(kind, n, k, states), nil
}

// NewEnsemble wraps explicit configurations.
func NewEnsemble(kind Kind, n, k int, states []int8) *Ensemble {
	if kind == KindIsing {
		k = 2
	}
	if len(states)%n != 0 {
		panic(fmt.Sprintf("maxent: %d spin values do not split into rows of %d", len(states), n))
	}
	e := &Ensemble{Kind: kind, N: n, K: k, States: states}
	e.classes, e.nclass = coarseClasses(e)
	return e
}

// Len is the number of configurations.
func (e *Ensemble) Len() int { return len(e.States) / e.N }

// Row returns configuration s. The slice aliases the ensemble.
func (e *Ensemble) Row(s int) []int8 { return e.States[s*e.N : (s+1)*e.N] }

// Coarse returns the majority class of every configuration and the number of
// classes. Ising classes are |sum of spins|; Potts classes are the vote
// counts per state sorted in decreasing order. Classes are numbered in
// ascending order of their key.
func (e *Ensemble) Coarse() ([]int, int) { return e.classes, e.nclass }

// ParamCount returns the length of the (fields, couplings) vector.
func ParamCount(kind Kind, n, k int) int {
	return FieldCount(kind, n, k) + combin.PairCount(n)
}

// FieldCount returns the number of field parameters.
func FieldCount(kind Kind, n, k int) int {
	if kind == KindPotts {
		return k * n
	}
	return n
}

// Fixed reports whether parameter i is held at zero by the Potts gauge.
func Fixed(kind Kind, n, i int) bool {
	return kind == KindPotts && i < n
}

// Features writes the observables of configuration row into dst: spins
// then pair products for Ising, state indicators then pair agreement for
// Potts.
func Features(kind Kind, k int, row []int8, dst []float64) {
	n := len(row)
	for i := range dst {
		dst[i] = 0
	}
	off := FieldCount(kind, n, k)
	if kind == KindPotts {
		for i, s := range row {
			dst[int(s)*n+i] = 1
		}
	} else {
		for i, s := range row {
			dst[i] = float64(s)
		}
	}
	ix := off
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if kind == KindPotts {
				if row[i] == row[j] {
					dst[ix] = 1
				}
			} else {
				dst[ix] = float64(row[i] * row[j])
			}
			ix++
		}
	}
}

func coarseClasses(e *Ensemble) ([]int, int) {
	keys := make([]string, e.Len())
	counts := make([]int, e.K)
	for s := range keys {
		row := e.Row(s)
		if e.Kind == KindIsing {
			sum := 0
			for _, v := range row {
				sum += int(v)
			}
			if sum < 0 {
				sum = -sum
			}
			keys[s] = fmt.Sprintf("%06d", sum)
			continue
		}
		for i := range counts {
			counts[i] = 0
		}
		for _, v := range row {
			counts[v]++
		}
		slices.SortFunc(counts, func(a, b int) int { return b - a })
		var sb strings.Builder
		for _, c := range counts {
			fmt.Fprintf(&sb, "%06d", c)
		}
		keys[s] = sb.String()
	}

	uniq := slices.Clone(keys)
	slices.Sort(uniq)
	uniq = slices.Compact(uniq)
	index := make(map[string]int, len(uniq))
	for i, key := range uniq {
		index[key] = i
	}
	classes := make([]int, len(keys))
	for s, key := range keys {
		classes[s] = index[key]
	}
	return classes, len(uniq)
}
