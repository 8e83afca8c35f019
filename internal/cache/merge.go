package cache

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Page is a cached Query Result Envelope. Items hold Refs for entities and
// plain values otherwise.
type Page struct {
	Items   []any
	Cursor  string
	HasMore bool
}

// PageArgs are the pagination arguments of one list fetch.
type PageArgs struct {
	Offset int
	Limit  int
	Cursor string
}

// FirstPage reports whether the fetch starts from the top of the list.
func (a PageArgs) FirstPage() bool {
	return a.Offset <= 0 && strings.TrimSpace(a.Cursor) == ""
}

// paginationArgs never participate in a list's identity.
var paginationArgs = map[string]struct{}{
	"offset": {},
	"limit":  {},
	"cursor": {},
	"after":  {},
	"first":  {},
}

// PageArgsFrom extracts pagination arguments from operation variables.
func PageArgsFrom(vars map[string]any) PageArgs {
	var args PageArgs
	args.Offset = intArg(vars["offset"])
	args.Limit = intArg(vars["limit"])
	if args.Limit == 0 {
		args.Limit = intArg(vars["first"])
	}
	for _, name := range []string{"cursor", "after"} {
		if s, ok := vars[name].(string); ok && strings.TrimSpace(s) != "" {
			args.Cursor = s
			break
		}
	}
	return args
}

func intArg(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := strconv.Atoi(n.String())
		return i
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(n))
		return i
	default:
		return 0
	}
}

// MergePage combines an incoming page with the cached one. It is pure: the
// same inputs always produce the same output and neither input is modified.
//
// Without an existing entry the incoming page seeds the list. Replace always
// takes the incoming page, as does FieldwiseLatestWins, which has no list
// meaning. AppendDeduped replaces on the first page and
// otherwise appends items whose identity is not already present, keeping
// first-seen positions.
func MergePage(existing *Page, incoming Page, args PageArgs, strategy MergeStrategy) Page {
	if existing == nil || strategy == Replace || strategy == FieldwiseLatestWins || args.FirstPage() {
		return clonePage(incoming)
	}
	merged := Page{
		Items:   appendDeduped(existing.Items, incoming.Items),
		Cursor:  incoming.Cursor,
		HasMore: incoming.HasMore,
	}
	return merged
}

func appendDeduped(existing, incoming []any) []any {
	out := make([]any, 0, len(existing)+len(incoming))
	seen := make(map[any]struct{}, len(existing)+len(incoming))
	add := func(item any) {
		if key, ok := identityKey(item); ok {
			if _, dup := seen[key]; dup {
				return
			}
			seen[key] = struct{}{}
		}
		out = append(out, cloneValue(item))
	}
	for _, item := range existing {
		add(item)
	}
	for _, item := range incoming {
		add(item)
	}
	return out
}

// identityKey returns a comparable key for items that have an identity.
// Embedded objects have none and are never de-duplicated.
func identityKey(item any) (any, bool) {
	switch v := item.(type) {
	case Ref:
		return v, true
	case string, bool, float64, int, int64:
		return v, true
	default:
		return nil, false
	}
}

// mergeField applies a field strategy to one entity field.
func mergeField(strategy MergeStrategy, existing any, hasExisting bool, incoming any) any {
	if !hasExisting {
		return cloneValue(incoming)
	}
	switch strategy {
	case FieldwiseLatestWins:
		prev, okPrev := existing.(map[string]any)
		next, okNext := incoming.(map[string]any)
		if !okPrev || !okNext {
			return cloneValue(incoming)
		}
		merged := cloneMap(prev)
		for k, v := range next {
			merged[k] = cloneValue(v)
		}
		return merged
	case AppendDeduped:
		prev, okPrev := existing.([]any)
		next, okNext := incoming.([]any)
		if !okPrev || !okNext {
			return cloneValue(incoming)
		}
		return appendDeduped(prev, next)
	default:
		return cloneValue(incoming)
	}
}

func clonePage(p Page) Page {
	items := make([]any, len(p.Items))
	for i, item := range p.Items {
		items[i] = cloneValue(item)
	}
	return Page{Items: items, Cursor: p.Cursor, HasMore: p.HasMore}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case Page:
		return clonePage(t)
	default:
		return t
	}
}
