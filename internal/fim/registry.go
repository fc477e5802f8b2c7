package fim

import (
	"fmt"
	"sort"

	"github.com/san-kum/fimlab/internal/maxent"
)

// Constructor builds a variant over a model.
type Constructor func(maxent.Model, VariantOptions) (Variant, error)

type Registry struct {
	variants map[string]Constructor
	kinds    map[string]maxent.Kind
}

func NewRegistry() *Registry {
	r := &Registry{
		variants: make(map[string]Constructor),
		kinds:    make(map[string]maxent.Kind),
	}

	r.add("magnetization", maxent.KindIsing, func(m maxent.Model, o VariantOptions) (Variant, error) {
		return NewMagnetization(m, o)
	})
	r.add("magnetization_constant", maxent.KindIsing, func(m maxent.Model, o VariantOptions) (Variant, error) {
		return NewMagnetizationConstant(m, o)
	})
	r.add("coupling", maxent.KindIsing, func(m maxent.Model, o VariantOptions) (Variant, error) {
		return NewCoupling(m, o)
	})
	r.add("combined", maxent.KindIsing, func(m maxent.Model, o VariantOptions) (Variant, error) {
		return NewCombined(m, o)
	})
	r.add("potts_state", maxent.KindPotts, func(m maxent.Model, o VariantOptions) (Variant, error) {
		return NewPottsState(m, o)
	})
	r.add("potts_coupling", maxent.KindPotts, func(m maxent.Model, o VariantOptions) (Variant, error) {
		return NewPottsCoupling(m, o)
	})

	return r
}

func (r *Registry) add(name string, kind maxent.Kind, fn Constructor) {
	r.variants[name] = fn
	r.kinds[name] = kind
}

// Get builds the named variant over m.
func (r *Registry) Get(name string, m maxent.Model, opts VariantOptions) (Variant, error) {
	fn, ok := r.variants[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariant, name)
	}
	return fn(m, opts)
}

// List returns the registered names for a model kind, sorted.
func (r *Registry) List(kind maxent.Kind) []string {
	var names []string
	for name, k := range r.kinds {
		if k == kind {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// NewVariant builds a registered variant by name.
func NewVariant(name string, m maxent.Model, opts VariantOptions) (Variant, error) {
	return defaultRegistry.Get(name, m, opts)
}

// Variants lists the registered variant names for a model kind.
func Variants(kind maxent.Kind) []string {
	return defaultRegistry.List(kind)
}
