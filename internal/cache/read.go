package cache

// RefField is the key a denormalized reference is rendered under when it
// closes a cycle.
const RefField = "__ref"

// View reads the cache without taking its lock. Views are only handed to
// callbacks that already run inside a cache critical section; they must not
// be retained or call back into the Cache.
type View interface {
	Read(ref Ref) (map[string]any, bool)
	ReadRoot(field string, vars map[string]any) (any, bool)
	ReadRefs(field string, vars map[string]any) []Ref
	Policies() Policies
	// Superseded reports whether field of ref was written by an operation
	// initiated after the one this view builds a confirmation for. It is
	// always false outside CommitWith.
	Superseded(ref Ref, field string) bool
}

// view resolves reads through the first n layers. stamp is set while a
// confirmation is being built.
type view struct {
	c     *Cache
	n     int
	stamp Stamp
}

func (c *Cache) top() view { return view{c: c, n: len(c.layers)} }

func (v view) entity(ref Ref) (map[string]any, bool) { return v.c.entityBelow(ref, v.n) }

func (v view) root(key string) (any, bool) { return v.c.rootBelow(key, v.n) }

func (v view) Policies() Policies { return v.c.policies }

func (v view) Superseded(ref Ref, field string) bool {
	if v.stamp == 0 {
		return false
	}
	e, ok := v.c.entities[ref]
	if !ok {
		return false
	}
	return e.stamps[field] > v.stamp
}

func (v view) Read(ref Ref) (map[string]any, bool) {
	fields, ok := v.entity(ref)
	if !ok {
		return nil, false
	}
	return v.denormalizeEntity(ref, fields, map[Ref]bool{}), true
}

func (v view) ReadRoot(field string, vars map[string]any) (any, bool) {
	value, ok := v.root(v.c.policies.StoreKey(field, vars))
	if !ok {
		return nil, false
	}
	return v.denormalize(value, map[Ref]bool{}), true
}

func (v view) ReadRefs(field string, vars map[string]any) []Ref {
	value, _ := v.root(v.c.policies.StoreKey(field, vars))
	page, ok := value.(Page)
	if !ok {
		return nil
	}
	var refs []Ref
	for _, item := range page.Items {
		if ref, ok := item.(Ref); ok {
			if _, exists := v.entity(ref); exists {
				refs = append(refs, ref)
			}
		}
	}
	return refs
}

// Read returns the entity as seen through pending layers, with nested
// references resolved.
func (c *Cache) Read(ref Ref) (map[string]any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.top().Read(ref)
}

// ReadRoot returns the denormalized value of a root field called with vars.
// Paginated lists come back in envelope shape.
func (c *Cache) ReadRoot(field string, vars map[string]any) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.top().ReadRoot(field, vars)
}

// ReadRefs returns the refs of a root list in list order, skipping entities
// that no longer exist.
func (c *Cache) ReadRefs(field string, vars map[string]any) []Ref {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.top().ReadRefs(field, vars)
}

// ReadPage returns a paginated root list with entities resolved. Items whose
// entity is gone are dropped.
func (c *Cache) ReadPage(field string, vars map[string]any) (Page, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v := c.top()
	value, ok := v.root(c.policies.StoreKey(field, vars))
	if !ok {
		return Page{}, false
	}
	page, ok := value.(Page)
	if !ok {
		return Page{}, false
	}
	return Page{
		Items:   v.denormalizeItems(page.Items, map[Ref]bool{}),
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	}, true
}

// Covers reports whether the cache can answer fields for the page vars
// asks for. First pages are covered when present. Offset pages are covered
// only when every cached list already holds offset+limit items or has no
// more items. Cursor pages are never covered.
func (c *Cache) Covers(fields []string, vars map[string]any) bool {
	args := PageArgsFrom(vars)
	if args.FirstPage() {
		return true
	}
	if args.Cursor != "" {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v := c.top()
	for _, field := range fields {
		value, ok := v.root(c.policies.StoreKey(field, vars))
		if !ok {
			return false
		}
		page, ok := value.(Page)
		if !ok {
			continue
		}
		if page.HasMore && (args.Limit <= 0 || len(page.Items) < args.Offset+args.Limit) {
			return false
		}
	}
	return true
}

// ReadQuery assembles a response payload for fields from the cache. It
// reports false when any field is missing, meaning the query must go to the
// network.
func (c *Cache) ReadQuery(fields []string, vars map[string]any) (map[string]any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v := c.top()
	out := make(map[string]any, len(fields))
	for _, field := range fields {
		value, ok := v.root(c.policies.StoreKey(field, vars))
		if !ok {
			return nil, false
		}
		out[field] = v.denormalize(value, map[Ref]bool{})
	}
	return out, true
}

func (v view) denormalize(value any, visiting map[Ref]bool) any {
	switch t := value.(type) {
	case Ref:
		fields, ok := v.entity(t)
		if !ok {
			return nil
		}
		if visiting[t] {
			return map[string]any{RefField: t.String()}
		}
		return v.denormalizeEntity(t, fields, visiting)
	case Page:
		return map[string]any{
			"items":    v.denormalizeItems(t.Items, visiting),
			"cursor":   t.Cursor,
			"has_more": t.HasMore,
		}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, fv := range t {
			out[k] = v.denormalize(fv, visiting)
		}
		return out
	case []any:
		return v.denormalizeItems(t, visiting)
	default:
		return t
	}
}

func (v view) denormalizeEntity(ref Ref, fields map[string]any, visiting map[Ref]bool) map[string]any {
	visiting[ref] = true
	defer delete(visiting, ref)
	out := make(map[string]any, len(fields))
	for k, fv := range fields {
		out[k] = v.denormalize(fv, visiting)
	}
	return out
}

func (v view) denormalizeItems(items []any, visiting map[Ref]bool) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		if ref, ok := item.(Ref); ok {
			if _, exists := v.entity(ref); !exists {
				continue
			}
		}
		out = append(out, v.denormalize(item, visiting))
	}
	return out
}
