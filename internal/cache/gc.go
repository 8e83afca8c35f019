package cache

// Retain keeps ref alive across collections until a matching Release.
func (c *Cache) Retain(ref Ref) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retained[ref]++
}

// Release drops one Retain of ref.
func (c *Cache) Release(ref Ref) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retained[ref] <= 1 {
		delete(c.retained, ref)
		return
	}
	c.retained[ref]--
}

// GC removes base entities unreachable from any root field, pending layer
// or retained ref, and returns the number removed. Collection does not leave
// tombstones: a later response may bring the entity back.
func (c *Cache) GC() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	reachable := make(map[Ref]bool, len(c.entities))
	var mark func(v any)
	mark = func(v any) {
		switch t := v.(type) {
		case Ref:
			if reachable[t] {
				return
			}
			reachable[t] = true
			if e, ok := c.entities[t]; ok {
				for _, fv := range e.fields {
					mark(fv)
				}
			}
			for _, l := range c.layers {
				for _, fv := range l.entities[t] {
					mark(fv)
				}
			}
		case Page:
			for _, item := range t.Items {
				mark(item)
			}
		case map[string]any:
			for _, fv := range t {
				mark(fv)
			}
		case []any:
			for _, item := range t {
				mark(item)
			}
		}
	}
	for _, entry := range c.roots {
		mark(entry.value)
	}
	for _, l := range c.layers {
		for _, v := range l.roots {
			mark(v)
		}
		for ref := range l.entities {
			mark(ref)
		}
	}
	for ref := range c.retained {
		mark(ref)
	}
	removed := 0
	for ref := range c.entities {
		if !reachable[ref] {
			delete(c.entities, ref)
			removed++
		}
	}
	return removed
}
