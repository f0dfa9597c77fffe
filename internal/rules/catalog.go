// File: internal/rules/catalog.go
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xkilldash9x/cohortgraph/api/schemas"
	"github.com/xkilldash9x/cohortgraph/internal/config"
)

// Catalog is the fixed set of concept nodes. It is configuration, never grown at runtime.
type Catalog struct {
	concepts []schemas.Concept
	byName   map[string]schemas.ConceptID
}

// NewCatalog validates the configured concepts. Ids must cover 0..n-1 exactly once and
// names must be unique and non-empty.
func NewCatalog(entries []config.ConceptConfig) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("concept catalog is empty")
	}

	sorted := make([]config.ConceptConfig, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	c := &Catalog{
		concepts: make([]schemas.Concept, 0, len(sorted)),
		byName:   make(map[string]schemas.ConceptID, len(sorted)),
	}
	for i, e := range sorted {
		if e.ID != i {
			return nil, fmt.Errorf("concept ids must be dense starting at 0: expected id %d, found %d (%q)", i, e.ID, e.Name)
		}
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("concept %d has an empty name", e.ID)
		}
		if _, dup := c.byName[name]; dup {
			return nil, fmt.Errorf("duplicate concept name %q", name)
		}
		c.byName[name] = schemas.ConceptID(e.ID)
		c.concepts = append(c.concepts, schemas.Concept{ID: schemas.ConceptID(e.ID), Name: name})
	}
	return c, nil
}

// Len is the number of concept nodes.
func (c *Catalog) Len() int { return len(c.concepts) }

// Concepts returns the catalog ordered by id.
func (c *Catalog) Concepts() []schemas.Concept {
	out := make([]schemas.Concept, len(c.concepts))
	copy(out, c.concepts)
	return out
}

// Lookup resolves a concept name.
func (c *Catalog) Lookup(name string) (schemas.ConceptID, bool) {
	id, ok := c.byName[name]
	return id, ok
}

// Name returns the name of concept id, or "" when out of range.
func (c *Catalog) Name(id schemas.ConceptID) string {
	if int(id) < 0 || int(id) >= len(c.concepts) {
		return ""
	}
	return c.concepts[id].Name
}
