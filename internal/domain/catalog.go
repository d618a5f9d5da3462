package domain

import (
	"sort"
	"time"
)

// Catalog is the full registry snapshot as persisted by a store.
type Catalog struct {
	Version   int64
	UpdatedAt time.Time
	Sources   []Source
}

// Index returns the position of the source with the given id, or -1.
func (c *Catalog) Index(id string) int {
	for i := range c.Sources {
		if c.Sources[i].ID == id {
			return i
		}
	}
	return -1
}

// Get returns a copy of the source with the given id.
func (c *Catalog) Get(id string) (Source, bool) {
	if i := c.Index(id); i >= 0 {
		return c.Sources[i], true
	}
	return Source{}, false
}

// FindURL looks up a source by normalised URL regardless of its active flag.
func (c *Catalog) FindURL(raw string) (Source, bool) {
	want := NormalizeURL(raw)
	for _, src := range c.Sources {
		if NormalizeURL(src.URL) == want {
			return src, true
		}
	}
	return Source{}, false
}

// Upsert replaces the source with the same id or inserts it after the last source of its
// category, so the catalog stays grouped. It reports whether a new entry was inserted.
func (c *Catalog) Upsert(src Source) bool {
	if i := c.Index(src.ID); i >= 0 {
		c.Sources[i] = src
		return false
	}

	pos := len(c.Sources)
	for i := len(c.Sources) - 1; i >= 0; i-- {
		if c.Sources[i].Category == src.Category {
			pos = i + 1
			break
		}
	}

	c.Sources = append(c.Sources, Source{})
	copy(c.Sources[pos+1:], c.Sources[pos:])
	c.Sources[pos] = src
	return true
}

// Filter returns sources of the category (all categories when empty), optionally active only.
func (c *Catalog) Filter(category Category, activeOnly bool) []Source {
	var out []Source
	for _, src := range c.Sources {
		if category != "" && src.Category != category {
			continue
		}
		if activeOnly && !src.Active {
			continue
		}
		out = append(out, src)
	}
	return out
}

// Grouped returns the sources bucketed by category in canonical category order.
func (c *Catalog) Grouped() []CategoryGroup {
	index := map[Category]int{}
	var groups []CategoryGroup
	for _, src := range c.Sources {
		i, ok := index[src.Category]
		if !ok {
			i = len(groups)
			index[src.Category] = i
			groups = append(groups, CategoryGroup{Category: src.Category})
		}
		groups[i].Sources = append(groups[i].Sources, src)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		ri, rj := groups[i].Category.Rank(), groups[j].Category.Rank()
		if ri != rj {
			return ri < rj
		}
		return groups[i].Category < groups[j].Category
	})
	return groups
}

// CategoryGroup is one category section of the persisted catalog.
type CategoryGroup struct {
	Category Category
	Sources  []Source
}

// Clone returns a deep enough copy for read-modify-write cycles.
func (c Catalog) Clone() Catalog {
	out := Catalog{Version: c.Version, UpdatedAt: c.UpdatedAt, Sources: make([]Source, len(c.Sources))}
	for i, src := range c.Sources {
		if src.Metadata != nil {
			meta := make(map[string]string, len(src.Metadata))
			for k, v := range src.Metadata {
				meta[k] = v
			}
			src.Metadata = meta
		}
		if src.Notes != nil {
			src.Notes = append([]string(nil), src.Notes...)
		}
		if src.DeactivatedAt != nil {
			at := *src.DeactivatedAt
			src.DeactivatedAt = &at
		}
		out.Sources[i] = src
	}
	return out
}

// SkippedSource explains why a candidate was not inserted.
type SkippedSource struct {
	ID     string
	URL    string
	Reason string
}

// AddResult is the outcome of a batch insert.
type AddResult struct {
	Added   []string
	Skipped []SkippedSource
}
