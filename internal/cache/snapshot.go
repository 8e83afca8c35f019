package cache

import (
	"fmt"
)

// PageField marks an encoded paginated list in extracted data.
const PageField = "__page"

// Snapshot is the visible state of a set of refs and root keys at one
// moment. Absent entries are omitted.
type Snapshot struct {
	Entities map[Ref]map[string]any
	Roots    map[string]any
}

// Capture records the current view of refs and roots, pending layers
// included. Values are deep copies in normalized form.
func (c *Cache) Capture(refs []Ref, roots []string) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.captureLocked(c.top(), refs, roots)
}

func (c *Cache) captureLocked(v view, refs []Ref, roots []string) Snapshot {
	snap := Snapshot{
		Entities: make(map[Ref]map[string]any, len(refs)),
		Roots:    make(map[string]any, len(roots)),
	}
	for _, ref := range refs {
		if fields, ok := v.entity(ref); ok {
			snap.Entities[ref] = cloneMap(fields)
		}
	}
	for _, key := range roots {
		if value, ok := v.root(key); ok {
			snap.Roots[key] = cloneValue(value)
		}
	}
	return snap
}

// Extract serializes the base store into plain JSON-compatible values.
// Pending layers are not included.
func (c *Cache) Extract() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entities := make(map[string]any, len(c.entities))
	for ref, e := range c.entities {
		entities[ref.String()] = encodeValue(e.fields)
	}
	roots := make(map[string]any, len(c.roots))
	for key, entry := range c.roots {
		roots[key] = encodeValue(entry.value)
	}
	return map[string]any{"entities": entities, "roots": roots}
}

// Restore replaces the base store with previously extracted data. Restored
// fields carry no stamp, so any later write supersedes them.
func (c *Cache) Restore(data map[string]any) error {
	entities := make(map[Ref]*entity)
	roots := make(map[string]*rootEntry)
	rawEntities, _ := data["entities"].(map[string]any)
	for key, raw := range rawEntities {
		ref, err := ParseRef(key)
		if err != nil {
			return fmt.Errorf("restore entity: %w", err)
		}
		fields, ok := decodeValue(raw).(map[string]any)
		if !ok {
			return fmt.Errorf("restore entity %s: fields are not an object", key)
		}
		entities[ref] = newEntity(fields)
	}
	rawRoots, _ := data["roots"].(map[string]any)
	for key, raw := range rawRoots {
		roots[key] = &rootEntry{value: decodeValue(raw)}
	}
	c.mu.Lock()
	c.entities = entities
	c.roots = roots
	c.tombstones = make(map[Ref]Stamp)
	c.mu.Unlock()
	change := Change{}
	for ref := range entities {
		change.Refs = append(change.Refs, ref)
	}
	for key := range roots {
		change.Roots = append(change.Roots, key)
	}
	c.notify(change)
	return nil
}

func encodeValue(v any) any {
	switch t := v.(type) {
	case Ref:
		return map[string]any{RefField: t.String()}
	case Page:
		items := make([]any, len(t.Items))
		for i, item := range t.Items {
			items[i] = encodeValue(item)
		}
		return map[string]any{
			PageField:  true,
			"items":    items,
			"cursor":   t.Cursor,
			"has_more": t.HasMore,
		}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, fv := range t {
			out[k] = encodeValue(fv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = encodeValue(item)
		}
		return out
	default:
		return t
	}
}

func decodeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if s, ok := t[RefField].(string); ok && len(t) == 1 {
			if ref, err := ParseRef(s); err == nil {
				return ref
			}
		}
		if isPage, _ := t[PageField].(bool); isPage {
			rawItems, _ := t["items"].([]any)
			items := make([]any, len(rawItems))
			for i, item := range rawItems {
				items[i] = decodeValue(item)
			}
			cursor, _ := t["cursor"].(string)
			hasMore, _ := t["has_more"].(bool)
			return Page{Items: items, Cursor: cursor, HasMore: hasMore}
		}
		out := make(map[string]any, len(t))
		for k, fv := range t {
			out[k] = decodeValue(fv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = decodeValue(item)
		}
		return out
	default:
		return t
	}
}
