package cache

import (
	"slices"
	"sync"
)

// Stamp orders operations by initiation. A field is never overwritten by a
// write carrying an older stamp than the one that last set it.
type Stamp uint64

// Change describes what one write touched. Watchers receive it after the
// write is visible to readers.
type Change struct {
	Refs  []Ref
	Roots []string
}

type entity struct {
	fields map[string]any
	stamps map[string]Stamp
	// intents records the stamp of the confirmed mutation that last wrote a
	// field. Layers initiated before it no longer cover the field.
	intents map[string]Stamp
}

type rootEntry struct {
	value  any
	stamp  Stamp
	intent Stamp
}

// layer holds the final values an optimistic patch predicts, computed against
// the view beneath it when it was pushed.
type layer struct {
	id       string
	stamp    Stamp
	entities map[Ref]map[string]any
	roots    map[string]any
	evicted  map[Ref]struct{}
}

// Cache is the normalized store. The zero value is not usable; call New.
type Cache struct {
	policies Policies

	mu         sync.RWMutex
	clock      Stamp
	entities   map[Ref]*entity
	tombstones map[Ref]Stamp
	roots      map[string]*rootEntry
	layers     []*layer
	retained   map[Ref]int

	watchMu   sync.Mutex
	watchers  map[uint64]func(Change)
	nextWatch uint64
}

// New builds an empty cache using policies.
func New(policies Policies) *Cache {
	return &Cache{
		policies:   policies,
		entities:   make(map[Ref]*entity),
		tombstones: make(map[Ref]Stamp),
		roots:      make(map[string]*rootEntry),
		retained:   make(map[Ref]int),
		watchers:   make(map[uint64]func(Change)),
	}
}

// Policies returns the policies the cache was built with.
func (c *Cache) Policies() Policies {
	return c.policies
}

// Begin issues the stamp for an operation being initiated now.
func (c *Cache) Begin() Stamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick()
}

func (c *Cache) tick() Stamp {
	c.clock++
	return c.clock
}

// Write applies patch to the base store atomically. A zero stamp means the
// write was initiated now.
func (c *Cache) Write(stamp Stamp, patch Patch) {
	if patch.IsEmpty() {
		return
	}
	c.mu.Lock()
	if stamp == 0 {
		stamp = c.tick()
	}
	change := c.applyBase(stamp, patch, false)
	c.mu.Unlock()
	c.notify(change)
}

// WriteResult normalizes a response payload and writes it.
func (c *Cache) WriteResult(stamp Stamp, vars, data map[string]any) {
	c.Write(stamp, c.policies.Normalize(vars, data))
}

// applyBase writes patch to the base store. intent marks the write as the
// confirmation of a user action.
func (c *Cache) applyBase(stamp Stamp, patch Patch, intent bool) Change {
	for _, w := range patch.Entities {
		c.writeEntity(stamp, w, intent)
	}
	for _, w := range patch.Roots {
		entry, ok := c.roots[w.Key]
		if ok && entry.stamp > stamp {
			continue
		}
		next := &rootEntry{value: cloneValue(w.Value), stamp: stamp}
		if ok {
			next.intent = entry.intent
		}
		if intent {
			next.intent = stamp
		}
		c.roots[w.Key] = next
	}
	for _, w := range patch.Lists {
		c.writeList(stamp, w, intent)
	}
	for _, ref := range patch.Evict {
		c.evictBase(stamp, ref)
	}
	return Change{Refs: patch.Refs(), Roots: c.touchedRoots(patch)}
}

func (c *Cache) writeEntity(stamp Stamp, w EntityWrite, intent bool) {
	if tomb, ok := c.tombstones[w.Ref]; ok {
		if tomb > stamp {
			return
		}
		delete(c.tombstones, w.Ref)
	}
	e, ok := c.entities[w.Ref]
	if !ok {
		e = newEntity(nil)
		c.entities[w.Ref] = e
	}
	for field, value := range w.Fields {
		if e.stamps[field] > stamp {
			continue
		}
		prev, has := e.fields[field]
		e.fields[field] = mergeField(c.policies.fieldStrategy(w.Ref.Typename, field), prev, has, value)
		e.stamps[field] = stamp
		if intent {
			e.intents[field] = stamp
		}
	}
}

func newEntity(fields map[string]any) *entity {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &entity{fields: fields, stamps: make(map[string]Stamp), intents: make(map[string]Stamp)}
}

// writeList replaces the list only when the write is at least as recent as
// the data it would discard. Appends always merge.
func (c *Cache) writeList(stamp Stamp, w ListWrite, intent bool) {
	entry, ok := c.roots[w.Key]
	var existing *Page
	if ok {
		if p, isPage := entry.value.(Page); isPage {
			existing = &p
		}
	}
	replacing := existing == nil || w.Strategy == Replace || w.Strategy == FieldwiseLatestWins || w.Args.FirstPage()
	if replacing && ok && entry.stamp > stamp {
		return
	}
	merged := MergePage(existing, w.Page, w.Args, w.Strategy)
	next := &rootEntry{value: merged, stamp: stamp}
	if ok {
		next.stamp = max(stamp, entry.stamp)
		next.intent = entry.intent
	}
	if intent {
		next.intent = max(next.intent, stamp)
	}
	c.roots[w.Key] = next
}

func (c *Cache) evictBase(stamp Stamp, ref Ref) {
	delete(c.entities, ref)
	if prev, ok := c.tombstones[ref]; !ok || prev < stamp {
		c.tombstones[ref] = stamp
	}
	for _, entry := range c.roots {
		if v, changed := stripRef(entry.value, ref); changed {
			entry.value = v
		}
	}
	for _, e := range c.entities {
		for field, value := range e.fields {
			if v, changed := stripRef(value, ref); changed {
				e.fields[field] = v
			}
		}
	}
}

func (c *Cache) touchedRoots(patch Patch) []string {
	keys := patch.RootKeys()
	if len(patch.Evict) == 0 {
		return keys
	}
	for key := range c.roots {
		if !slices.Contains(keys, key) {
			keys = append(keys, key)
		}
	}
	return keys
}

// stripRef removes ref from lists inside v.
func stripRef(v any, ref Ref) (any, bool) {
	switch t := v.(type) {
	case Page:
		items, changed := stripRefItems(t.Items, ref)
		if !changed {
			return v, false
		}
		return Page{Items: items, Cursor: t.Cursor, HasMore: t.HasMore}, true
	case []any:
		return stripRefItems(t, ref)
	case map[string]any:
		changed := false
		out := t
		for k, fv := range t {
			if nv, ok := stripRef(fv, ref); ok {
				if !changed {
					out = cloneMap(t)
					changed = true
				}
				out[k] = nv
			}
		}
		return out, changed
	default:
		return v, false
	}
}

func stripRefItems(items []any, ref Ref) ([]any, bool) {
	changed := false
	out := make([]any, 0, len(items))
	for _, item := range items {
		if r, ok := item.(Ref); ok && r == ref {
			changed = true
			continue
		}
		if nv, ok := stripRef(item, ref); ok {
			changed = true
			item = nv
		}
		out = append(out, item)
	}
	if !changed {
		return items, false
	}
	return out, true
}

// Evict removes ref from the base store and from every cached list. A
// tombstone keeps older in-flight responses from recreating it.
func (c *Cache) Evict(ref Ref) {
	c.Write(0, Patch{Evict: []Ref{ref}})
}

// Size reports the number of entities in the base store.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entities)
}

// Watch registers fn for every change. The returned func unregisters it.
func (c *Cache) Watch(fn func(Change)) func() {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	c.nextWatch++
	id := c.nextWatch
	c.watchers[id] = fn
	return func() {
		c.watchMu.Lock()
		defer c.watchMu.Unlock()
		delete(c.watchers, id)
	}
}

func (c *Cache) notify(change Change) {
	if len(change.Refs) == 0 && len(change.Roots) == 0 {
		return
	}
	c.watchMu.Lock()
	fns := make([]func(Change), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.watchMu.Unlock()
	for _, fn := range fns {
		fn(change)
	}
}

// entityBelow resolves ref through the first n layers. A layer covers a
// field only when it was initiated no earlier than the confirmed intent that
// last wrote the field.
func (c *Cache) entityBelow(ref Ref, n int) (map[string]any, bool) {
	var (
		fields  map[string]any
		intents map[string]Stamp
	)
	exists := false
	if e, ok := c.entities[ref]; ok {
		fields = e.fields
		intents = e.intents
		exists = true
	}
	for _, l := range c.layers[:n] {
		if _, gone := l.evicted[ref]; gone {
			fields = nil
			exists = false
		}
		overlay, ok := l.entities[ref]
		if !ok {
			continue
		}
		merged := make(map[string]any, len(fields)+len(overlay))
		for k, v := range fields {
			merged[k] = v
		}
		for k, v := range overlay {
			if intents[k] > l.stamp {
				continue
			}
			merged[k] = v
		}
		fields = merged
		exists = true
	}
	return fields, exists
}

func (c *Cache) rootBelow(key string, n int) (any, bool) {
	var (
		value  any
		intent Stamp
	)
	exists := false
	if entry, ok := c.roots[key]; ok {
		value = entry.value
		intent = entry.intent
		exists = true
	}
	for _, l := range c.layers[:n] {
		if v, ok := l.roots[key]; ok && l.stamp >= intent {
			value = v
			exists = true
		}
	}
	return value, exists
}
