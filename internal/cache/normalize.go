package cache

import (
	"encoding/json"
	"sort"
	"strings"
)

// StoreKey names the cache slot of a root field called with vars. List
// identity ignores pagination arguments, so pages of the same logical list
// share one slot.
func (p Policies) StoreKey(field string, vars map[string]any) string {
	field = strings.TrimSpace(field)
	args := p.keyArgs(field, vars)
	if len(args) == 0 {
		return field
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return field
	}
	return field + "(" + string(encoded) + ")"
}

func (p Policies) keyArgs(field string, vars map[string]any) map[string]any {
	fp := p.Root[field]
	out := make(map[string]any)
	if len(fp.KeyArgs) > 0 {
		for _, name := range fp.KeyArgs {
			if v, ok := vars[name]; ok && v != nil {
				out[name] = v
			}
		}
		return out
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, skip := paginationArgs[name]; skip {
			continue
		}
		if vars[name] == nil {
			continue
		}
		out[name] = vars[name]
	}
	return out
}

// Normalize turns a response data payload into a patch: identifiable
// objects become entity writes referenced by Ref, envelope-shaped root
// fields become list writes and everything else becomes a root write.
func (p Policies) Normalize(vars map[string]any, data map[string]any) Patch {
	var patch Patch
	fields := make([]string, 0, len(data))
	for field := range data {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		value := data[field]
		key := p.StoreKey(field, vars)
		if page, ok := p.envelope(value, &patch); ok {
			patch.MergeList(key, page, PageArgsFrom(vars), p.rootPolicy(field).Strategy)
			continue
		}
		patch.SetRoot(key, p.normalizeValue(value, &patch))
	}
	return patch
}

// NormalizeEntity writes obj (and anything nested in it) into patch and
// returns its ref.
func (p Policies) NormalizeEntity(obj map[string]any, patch *Patch) (Ref, bool) {
	v := p.normalizeValue(obj, patch)
	ref, ok := v.(Ref)
	return ref, ok
}

func (p Policies) envelope(value any, patch *Patch) (Page, bool) {
	obj, ok := value.(map[string]any)
	if !ok {
		return Page{}, false
	}
	rawItems, ok := obj["items"].([]any)
	if !ok {
		return Page{}, false
	}
	if _, isEntity := p.Identify(obj); isEntity {
		return Page{}, false
	}
	items := make([]any, 0, len(rawItems))
	for _, item := range rawItems {
		items = append(items, p.normalizeValue(item, patch))
	}
	cursor, _ := obj["cursor"].(string)
	hasMore, _ := obj["has_more"].(bool)
	return Page{Items: items, Cursor: cursor, HasMore: hasMore}, true
}

func (p Policies) normalizeValue(value any, patch *Patch) any {
	switch v := value.(type) {
	case map[string]any:
		fields := make(map[string]any, len(v))
		for k, fv := range v {
			fields[k] = p.normalizeValue(fv, patch)
		}
		ref, ok := p.Identify(v)
		if !ok {
			return fields
		}
		patch.WriteEntity(ref, fields)
		return ref
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = p.normalizeValue(item, patch)
		}
		return out
	default:
		return v
	}
}
