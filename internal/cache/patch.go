package cache

// EntityWrite is a field-level merge into one entity.
type EntityWrite struct {
	Ref    Ref
	Fields map[string]any
}

// RootWrite sets one non-list root field, keyed by its store key.
type RootWrite struct {
	Key   string
	Value any
}

// ListWrite merges one page into a root list.
type ListWrite struct {
	Key      string
	Page     Page
	Args     PageArgs
	Strategy MergeStrategy
}

// Patch is one atomic update to the cache. Evictions run after writes.
type Patch struct {
	Entities []EntityWrite
	Roots    []RootWrite
	Lists    []ListWrite
	Evict    []Ref
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return len(p.Entities) == 0 && len(p.Roots) == 0 && len(p.Lists) == 0 && len(p.Evict) == 0
}

// WriteEntity appends a field-level write for ref, folding repeated writes to
// the same ref into one entry.
func (p *Patch) WriteEntity(ref Ref, fields map[string]any) {
	for i := range p.Entities {
		if p.Entities[i].Ref == ref {
			for k, v := range fields {
				p.Entities[i].Fields[k] = v
			}
			return
		}
	}
	p.Entities = append(p.Entities, EntityWrite{Ref: ref, Fields: cloneMap(fields)})
}

// SetRoot appends a root write.
func (p *Patch) SetRoot(key string, value any) {
	p.Roots = append(p.Roots, RootWrite{Key: key, Value: value})
}

// MergeList appends a list write.
func (p *Patch) MergeList(key string, page Page, args PageArgs, strategy MergeStrategy) {
	p.Lists = append(p.Lists, ListWrite{Key: key, Page: page, Args: args, Strategy: strategy})
}

// EvictRef schedules ref for removal.
func (p *Patch) EvictRef(ref Ref) {
	p.Evict = append(p.Evict, ref)
}

// Append folds other into p.
func (p *Patch) Append(other Patch) {
	for _, w := range other.Entities {
		p.WriteEntity(w.Ref, w.Fields)
	}
	p.Roots = append(p.Roots, other.Roots...)
	p.Lists = append(p.Lists, other.Lists...)
	p.Evict = append(p.Evict, other.Evict...)
}

// Refs lists every entity the patch touches.
func (p Patch) Refs() []Ref {
	seen := make(map[Ref]struct{})
	var out []Ref
	add := func(r Ref) {
		if _, ok := seen[r]; ok {
			return
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	for _, w := range p.Entities {
		add(w.Ref)
	}
	for _, r := range p.Evict {
		add(r)
	}
	return out
}

// RootKeys lists every root key the patch touches.
func (p Patch) RootKeys() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(k string) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	for _, w := range p.Roots {
		add(w.Key)
	}
	for _, w := range p.Lists {
		add(w.Key)
	}
	return out
}
