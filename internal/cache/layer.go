package cache

import "slices"

// AddLayer pushes an optimistic prediction stamped with its initiation stamp
// on top of the current view. The layer records final values, so later base
// writes underneath it stay hidden for the fields and lists it predicts until
// it is committed or removed, unless a newer intent is confirmed first. A
// layer already registered under id is replaced.
func (c *Cache) AddLayer(id string, stamp Stamp, patch Patch) {
	c.mu.Lock()
	if stamp == 0 {
		stamp = c.tick()
	}
	var change Change
	if old := c.dropLayer(id); old != nil {
		change = layerChange(old)
	}
	l := c.buildLayer(id, stamp, patch)
	c.layers = append(c.layers, l)
	change = mergeChanges(change, layerChange(l))
	c.mu.Unlock()
	c.notify(change)
}

// RemoveLayer discards the layer registered under id, restoring the view
// beneath it. It reports whether the layer existed.
func (c *Cache) RemoveLayer(id string) bool {
	c.mu.Lock()
	l := c.dropLayer(id)
	c.mu.Unlock()
	if l == nil {
		return false
	}
	c.notify(layerChange(l))
	return true
}

// Commit removes the layer registered under id and writes the confirmed
// patch to the base store in one step, so readers never see the gap
// between the two.
func (c *Cache) Commit(id string, stamp Stamp, patch Patch) {
	c.mu.Lock()
	if stamp == 0 {
		stamp = c.tick()
	}
	var change Change
	if l := c.dropLayer(id); l != nil {
		change = layerChange(l)
	}
	if !patch.IsEmpty() {
		change = mergeChanges(change, c.applyBase(stamp, patch, true))
	}
	c.mu.Unlock()
	c.notify(change)
}

// Predict builds a patch against the current view, captures the state it
// is about to cover and pushes it as layer id, all in one critical section.
// The snapshot is what a rollback restores.
func (c *Cache) Predict(id string, stamp Stamp, build func(View) Patch) (Patch, Snapshot) {
	c.mu.Lock()
	if stamp == 0 {
		stamp = c.tick()
	}
	var change Change
	if old := c.dropLayer(id); old != nil {
		change = layerChange(old)
	}
	v := c.top()
	patch := build(v)
	snap := c.captureLocked(v, patch.Refs(), c.affectedRoots(patch, len(c.layers)))
	l := c.buildLayer(id, stamp, patch)
	c.layers = append(c.layers, l)
	change = mergeChanges(change, layerChange(l))
	c.mu.Unlock()
	c.notify(change)
	return patch, snap
}

// CommitWith is Commit with the confirmed patch built inside the critical
// section against the base store alone. Derived values such as counters are
// therefore computed from confirmed data, never from a prediction.
func (c *Cache) CommitWith(id string, stamp Stamp, build func(View) Patch) Patch {
	c.mu.Lock()
	if stamp == 0 {
		stamp = c.tick()
	}
	var change Change
	if l := c.dropLayer(id); l != nil {
		change = layerChange(l)
	}
	patch := build(view{c: c, n: 0, stamp: stamp})
	if !patch.IsEmpty() {
		change = mergeChanges(change, c.applyBase(stamp, patch, true))
	}
	c.mu.Unlock()
	c.notify(change)
	return patch
}

// affectedRoots lists the root keys a patch rewrites, including lists an
// eviction would strip.
func (c *Cache) affectedRoots(patch Patch, n int) []string {
	keys := patch.RootKeys()
	if len(patch.Evict) == 0 {
		return keys
	}
	for _, key := range c.rootKeysBelow(n) {
		if !slices.Contains(keys, key) {
			keys = append(keys, key)
		}
	}
	return keys
}

// HasLayer reports whether a layer is registered under id.
func (c *Cache) HasLayer(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.ContainsFunc(c.layers, func(l *layer) bool { return l.id == id })
}

// LayerCount reports the number of pending optimistic layers.
func (c *Cache) LayerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.layers)
}

func (c *Cache) dropLayer(id string) *layer {
	idx := slices.IndexFunc(c.layers, func(l *layer) bool { return l.id == id })
	if idx < 0 {
		return nil
	}
	l := c.layers[idx]
	c.layers = slices.Delete(c.layers, idx, idx+1)
	return l
}

func (c *Cache) buildLayer(id string, stamp Stamp, patch Patch) *layer {
	n := len(c.layers)
	l := &layer{
		id:       id,
		stamp:    stamp,
		entities: make(map[Ref]map[string]any),
		roots:    make(map[string]any),
		evicted:  make(map[Ref]struct{}),
	}
	for _, w := range patch.Entities {
		current, _ := c.entityBelow(w.Ref, n)
		overlay, ok := l.entities[w.Ref]
		if !ok {
			overlay = make(map[string]any, len(w.Fields))
			l.entities[w.Ref] = overlay
		}
		for field, value := range w.Fields {
			prev, has := overlay[field]
			if !has {
				prev, has = current[field]
			}
			overlay[field] = mergeField(c.policies.fieldStrategy(w.Ref.Typename, field), prev, has, value)
		}
	}
	for _, w := range patch.Roots {
		l.roots[w.Key] = cloneValue(w.Value)
	}
	for _, w := range patch.Lists {
		value, ok := l.roots[w.Key]
		if !ok {
			value, _ = c.rootBelow(w.Key, n)
		}
		var existing *Page
		if p, isPage := value.(Page); isPage {
			existing = &p
		}
		l.roots[w.Key] = MergePage(existing, w.Page, w.Args, w.Strategy)
	}
	for _, ref := range patch.Evict {
		l.evicted[ref] = struct{}{}
		delete(l.entities, ref)
		for _, key := range c.rootKeysBelow(n) {
			value, ok := l.roots[key]
			if !ok {
				value, _ = c.rootBelow(key, n)
			}
			if v, changed := stripRef(value, ref); changed {
				l.roots[key] = v
			}
		}
	}
	return l
}

func (c *Cache) rootKeysBelow(n int) []string {
	keys := make([]string, 0, len(c.roots))
	for key := range c.roots {
		keys = append(keys, key)
	}
	for _, l := range c.layers[:n] {
		for key := range l.roots {
			if _, ok := c.roots[key]; !ok && !slices.Contains(keys, key) {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

func layerChange(l *layer) Change {
	var change Change
	for ref := range l.entities {
		change.Refs = append(change.Refs, ref)
	}
	for ref := range l.evicted {
		change.Refs = append(change.Refs, ref)
	}
	for key := range l.roots {
		change.Roots = append(change.Roots, key)
	}
	return change
}

func mergeChanges(a, b Change) Change {
	out := Change{Refs: slices.Clone(a.Refs), Roots: slices.Clone(a.Roots)}
	for _, ref := range b.Refs {
		if !slices.Contains(out.Refs, ref) {
			out.Refs = append(out.Refs, ref)
		}
	}
	for _, key := range b.Roots {
		if !slices.Contains(out.Roots, key) {
			out.Roots = append(out.Roots, key)
		}
	}
	return out
}
