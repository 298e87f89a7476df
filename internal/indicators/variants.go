package indicators

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// VariantRegistry manages immutable variant definitions and the sharing
// of calculation instances across variants with identical
// (base_type, parameters).
type VariantRegistry struct {
	mu         sync.RWMutex
	baseTypes  *BaseTypeRegistry
	variants   map[string]Variant
	shareCount map[string]int // shareKey -> number of variants using it
}

// NewVariantRegistry builds a variant registry bound to the given base
// type registry.
func NewVariantRegistry(baseTypes *BaseTypeRegistry) *VariantRegistry {
	return &VariantRegistry{
		baseTypes:  baseTypes,
		variants:   make(map[string]Variant),
		shareCount: make(map[string]int),
	}
}

// CreateVariant validates parameters against the base type's schema and
// registers a new variant, returning its id.
func (r *VariantRegistry) CreateVariant(baseType string, vtype VariantType, params map[string]float64, createdBy string) (Variant, error) {
	bt, err := r.baseTypes.Get(baseType)
	if err != nil {
		return Variant{}, err
	}
	resolved, err := bt.ValidateParams(params)
	if err != nil {
		return Variant{}, err
	}

	v := Variant{
		ID:         uuid.NewString(),
		BaseType:   baseType,
		Type:       vtype,
		Parameters: resolved,
		CreatedBy:  createdBy,
		CreatedAt:  time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.variants[v.ID] = v
	r.shareCount[v.shareKey()]++
	return v, nil
}

// GetVariant returns a variant by id.
func (r *VariantRegistry) GetVariant(id string) (Variant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.variants[id]
	if !ok {
		return Variant{}, ErrUnknownVariant
	}
	return v, nil
}

// ListVariants returns every registered variant.
func (r *VariantRegistry) ListVariants() []Variant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Variant, 0, len(r.variants))
	for _, v := range r.variants {
		out = append(out, v)
	}
	return out
}

// UpdateVariantParameters replaces a variant's parameters, revalidating
// against its base type schema. This creates a new logical share key;
// callers relying on calc-instance sharing should treat the result as a
// fresh registration.
func (r *VariantRegistry) UpdateVariantParameters(id string, params map[string]float64) (Variant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.variants[id]
	if !ok {
		return Variant{}, ErrUnknownVariant
	}
	bt, err := r.baseTypes.Get(v.BaseType)
	if err != nil {
		return Variant{}, err
	}
	resolved, err := bt.ValidateParams(params)
	if err != nil {
		return Variant{}, err
	}

	oldKey := v.shareKey()
	v.Parameters = resolved
	newKey := v.shareKey()
	r.variants[id] = v

	if oldKey != newKey {
		r.shareCount[oldKey]--
		if r.shareCount[oldKey] <= 0 {
			delete(r.shareCount, oldKey)
		}
		r.shareCount[newKey]++
	}
	return v, nil
}

// DeleteVariant removes a variant definition only. Runtime
// StreamingIndicators already bound to it through the Engine are not
// removed and keep computing.
func (r *VariantRegistry) DeleteVariant(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.variants[id]
	if !ok {
		return ErrUnknownVariant
	}
	delete(r.variants, id)
	key := v.shareKey()
	r.shareCount[key]--
	if r.shareCount[key] <= 0 {
		delete(r.shareCount, key)
	}
	return nil
}

// CopyVariant clones a variant's (base_type, parameters, type) under a
// new id, attributed to createdBy.
func (r *VariantRegistry) CopyVariant(id, createdBy string) (Variant, error) {
	src, err := r.GetVariant(id)
	if err != nil {
		return Variant{}, err
	}
	return r.CreateVariant(src.BaseType, src.Type, src.Parameters, createdBy)
}

// SharesCalculation reports whether another variant exists with the same
// (base_type, parameters) as v.
func (r *VariantRegistry) SharesCalculation(v Variant) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.shareCount[v.shareKey()] > 1
}
