package cache

import (
	"fmt"
	"strings"
)

// TypenameField is the GraphQL meta field naming an object's type.
const TypenameField = "__typename"

// Ref identifies one normalized entity.
type Ref struct {
	Typename string
	ID       string
}

// String renders the ref as "Typename:ID".
func (r Ref) String() string {
	return r.Typename + ":" + r.ID
}

// IsZero reports whether r is unset.
func (r Ref) IsZero() bool {
	return r.Typename == "" && r.ID == ""
}

// ParseRef parses the String form. IDs may themselves contain colons.
func ParseRef(s string) (Ref, error) {
	typename, id, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || typename == "" || id == "" {
		return Ref{}, fmt.Errorf("invalid ref %q", s)
	}
	return Ref{Typename: typename, ID: id}, nil
}

// MergeStrategy is the closed set of ways a field combines an incoming value
// with the cached one. It is chosen per field when policies are declared.
type MergeStrategy int

const (
	// StrategyUnspecified selects the default for the field's position:
	// Replace for entity fields, AppendDeduped for paginated root lists.
	StrategyUnspecified MergeStrategy = iota
	// Replace discards the cached value.
	Replace
	// AppendDeduped appends incoming list items not already present by
	// identity. For paginated lists the first page still replaces.
	AppendDeduped
	// FieldwiseLatestWins merges nested objects key by key, incoming keys
	// overriding cached ones.
	FieldwiseLatestWins
)

func (s MergeStrategy) String() string {
	switch s {
	case Replace:
		return "replace"
	case AppendDeduped:
		return "append_deduped"
	case FieldwiseLatestWins:
		return "fieldwise_latest_wins"
	default:
		return "unspecified"
	}
}

// FieldPolicy configures one field.
type FieldPolicy struct {
	Strategy MergeStrategy
	// KeyArgs names the arguments identifying a root list. When empty every
	// argument except the pagination arguments is used.
	KeyArgs []string
}

// TypePolicy configures one entity type.
type TypePolicy struct {
	// KeyFields form the stable key, in order. Defaults to ["id"].
	KeyFields []string
	Fields    map[string]FieldPolicy
}

// Policies is the schema-level configuration handed to New.
type Policies struct {
	Types map[string]TypePolicy
	Root  map[string]FieldPolicy
}

func (p Policies) keyFields(typename string) []string {
	if tp, ok := p.Types[typename]; ok && len(tp.KeyFields) > 0 {
		return tp.KeyFields
	}
	return []string{"id"}
}

func (p Policies) fieldStrategy(typename, field string) MergeStrategy {
	if tp, ok := p.Types[typename]; ok {
		if fp, ok := tp.Fields[field]; ok && fp.Strategy != StrategyUnspecified {
			return fp.Strategy
		}
	}
	return Replace
}

func (p Policies) rootPolicy(field string) FieldPolicy {
	fp := p.Root[field]
	if fp.Strategy == StrategyUnspecified {
		fp.Strategy = AppendDeduped
	}
	return fp
}

// Identify returns the ref for obj when it carries a typename and every key
// field.
func (p Policies) Identify(obj map[string]any) (Ref, bool) {
	if obj == nil {
		return Ref{}, false
	}
	typename, _ := obj[TypenameField].(string)
	typename = strings.TrimSpace(typename)
	if typename == "" {
		return Ref{}, false
	}
	keyFields := p.keyFields(typename)
	parts := make([]string, 0, len(keyFields))
	for _, field := range keyFields {
		v, ok := obj[field]
		if !ok || v == nil {
			return Ref{}, false
		}
		part := strings.TrimSpace(fmt.Sprint(v))
		if part == "" {
			return Ref{}, false
		}
		parts = append(parts, part)
	}
	return Ref{Typename: typename, ID: strings.Join(parts, ":")}, true
}
