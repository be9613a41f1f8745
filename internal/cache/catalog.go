package cache

import (
	"context"
	"fmt"
	"slices"
	"time"

	"cronograma/internal/core"
	"cronograma/internal/sources"

	"golang.org/x/sync/singleflight"
)

const catalogKey = "categories"

type catalogEntry struct {
	list []core.Category
	byID map[int64]core.Category
}

// Catalog serves the category catalog from memory, reloading it from the
// reader once the TTL has passed. Concurrent reloads share one read.
type Catalog struct {
	reader sources.CategoryReader
	lru    *LRU[string, catalogEntry]
	group  singleflight.Group
}

var _ sources.CategoryReader = (*Catalog)(nil)

func NewCatalog(reader sources.CategoryReader, ttl time.Duration) *Catalog {
	return &Catalog{reader: reader, lru: NewLRU[string, catalogEntry](1, ttl)}
}

func (c *Catalog) load(ctx context.Context) (catalogEntry, error) {
	if e, ok := c.lru.Get(catalogKey); ok {
		return e, nil
	}
	v, err, _ := c.group.Do(catalogKey, func() (any, error) {
		list, err := c.reader.ListCategories(ctx)
		if err != nil {
			return catalogEntry{}, err
		}
		e := catalogEntry{list: list, byID: make(map[int64]core.Category, len(list))}
		for _, cat := range list {
			e.byID[cat.ID] = cat
		}
		c.lru.Put(catalogKey, e)
		return e, nil
	})
	if err != nil {
		return catalogEntry{}, fmt.Errorf("load categories: %w", err)
	}
	return v.(catalogEntry), nil
}

func (c *Catalog) ListCategories(ctx context.Context) ([]core.Category, error) {
	e, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(e.list), nil
}

// Lookup returns the category with the given id and whether it exists.
func (c *Catalog) Lookup(ctx context.Context, id int64) (core.Category, bool, error) {
	e, err := c.load(ctx)
	if err != nil {
		return core.Category{}, false, err
	}
	cat, ok := e.byID[id]
	return cat, ok, nil
}

// Label fills the code and label of lines that lack them. Unknown
// categories are left as they are.
func (c *Catalog) Label(ctx context.Context, lines []core.Line) error {
	e, err := c.load(ctx)
	if err != nil {
		return err
	}
	for i := range lines {
		cat, ok := e.byID[lines[i].CategoryID]
		if !ok {
			continue
		}
		if lines[i].CategoryCode == "" {
			lines[i].CategoryCode = cat.Code
		}
		if lines[i].CategoryLabel == "" {
			lines[i].CategoryLabel = cat.Name
		}
	}
	return nil
}

// Invalidate forces the next call to reload the catalog.
func (c *Catalog) Invalidate() { c.lru.Remove(catalogKey) }

func (c *Catalog) CleanExpired() int { return c.lru.CleanExpired() }
