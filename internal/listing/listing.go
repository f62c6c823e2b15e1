// Package listing implements the shared admin-screen state machine: load a
// collection, search and filter it, paginate, export the filtered view as
// CSV, delete entries and reload. Every admin screen instantiates one
// Controller with its own entity configuration instead of re-implementing
// the flow.
package listing

import (
	"context"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// PageSizes are the only accepted items-per-page values.
var PageSizes = []int{10, 25, 50, 100}

// FilterAll is the filter value meaning "no restriction".
const FilterAll = "all"

// Column maps one CSV column header to a field accessor.
type Column[T any] struct {
	Header string
	Value  func(T) string
}

// Config parameterizes a Controller for one entity.
type Config[T any] struct {
	// Entity names the collection; used as the CSV filename prefix.
	Entity string
	// Search lists the string fields scanned for the search term.
	Search []func(T) string
	// Filters maps filter keys to predicates. A predicate receives the
	// selected value, never "all" or "".
	Filters map[string]func(item T, value string) bool
	// Columns is the fixed CSV column list for exports.
	Columns []Column[T]
	// Less, when set, re-sorts items locally after load. Only the blog
	// listing does this (by date); every other screen keeps API order.
	Less func(a, b T) bool
	// Load fetches the full collection.
	Load func(ctx context.Context) ([]T, error)
	// Delete removes one entry by its preferred identifier.
	Delete func(ctx context.Context, ref string) error
}

// Controller holds the list state for one screen instance. Instances are
// not safe for concurrent use; each request/screen owns its own.
type Controller[T any] struct {
	cfg          Config[T]
	items        []T
	searchTerm   string
	filters      map[string]string
	currentPage  int
	itemsPerPage int
	loading      bool
	err          string
}

// New creates a controller in its initial state: empty, page 1, 10 per page.
func New[T any](cfg Config[T]) *Controller[T] {
	return &Controller[T]{
		cfg:          cfg,
		filters:      make(map[string]string),
		currentPage:  1,
		itemsPerPage: PageSizes[0],
	}
}

// Entity returns the configured entity name.
func (c *Controller[T]) Entity() string { return c.cfg.Entity }

// Load fetches the collection. On failure the error message is retained for
// display and the previous items are kept; on success items are replaced,
// local sort applied when configured, and the page reset to 1.
func (c *Controller[T]) Load(ctx context.Context) error {
	c.loading = true
	c.err = ""

	items, err := c.cfg.Load(ctx)
	c.loading = false
	if err != nil {
		c.err = err.Error()
		return err
	}

	if c.cfg.Less != nil {
		sort.SliceStable(items, func(i, j int) bool { return c.cfg.Less(items[i], items[j]) })
	}
	c.items = items
	c.currentPage = 1
	return nil
}

// Err returns the last load/delete error message, "" when healthy.
func (c *Controller[T]) Err() string { return c.err }

// Loading reports whether a load is in flight.
func (c *Controller[T]) Loading() bool { return c.loading }

// SetSearchTerm updates the search term and resets to page 1.
func (c *Controller[T]) SetSearchTerm(term string) {
	c.searchTerm = strings.TrimSpace(term)
	c.currentPage = 1
}

// ToggleFilter sets or clears one filter and resets to page 1. The values
// "" and "all" clear the filter.
func (c *Controller[T]) ToggleFilter(key, value string) {
	if value == "" || strings.EqualFold(value, FilterAll) {
		delete(c.filters, key)
	} else {
		c.filters[key] = value
	}
	c.currentPage = 1
}

// SetItemsPerPage switches the page size; values outside PageSizes are
// ignored. Resets to page 1 by policy so the current page can never fall
// out of range.
func (c *Controller[T]) SetItemsPerPage(n int) {
	for _, allowed := range PageSizes {
		if n == allowed {
			c.itemsPerPage = n
			c.currentPage = 1
			return
		}
	}
}

// SetPage navigates to a page, clamped into [1, TotalPages].
func (c *Controller[T]) SetPage(page int) {
	c.currentPage = clamp(page, 1, c.TotalPages())
}

// CurrentPage returns the clamped current page (always >= 1).
func (c *Controller[T]) CurrentPage() int {
	return clamp(c.currentPage, 1, c.TotalPages())
}

// ItemsPerPage returns the active page size.
func (c *Controller[T]) ItemsPerPage() int { return c.itemsPerPage }

// TotalCount returns the unfiltered item count.
func (c *Controller[T]) TotalCount() int { return len(c.items) }

// Filtered returns the items matching the current search term and filters,
// preserving order. An item matches iff the term is empty or any configured
// search field contains it case-insensitively, and every active filter
// predicate accepts it.
func (c *Controller[T]) Filtered() []T {
	if c.searchTerm == "" && len(c.filters) == 0 {
		return c.items
	}

	folder := cases.Fold()
	foldedTerm := folder.String(c.searchTerm)

	matched := make([]T, 0, len(c.items))
	for _, item := range c.items {
		if c.matches(item, folder, foldedTerm) {
			matched = append(matched, item)
		}
	}
	return matched
}

func (c *Controller[T]) matches(item T, folder cases.Caser, foldedTerm string) bool {
	if foldedTerm != "" {
		found := false
		for _, field := range c.cfg.Search {
			if strings.Contains(folder.String(field(item)), foldedTerm) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for key, value := range c.filters {
		predicate, ok := c.cfg.Filters[key]
		if !ok {
			continue // unknown filter keys are inert
		}
		if !predicate(item, value) {
			return false
		}
	}
	return true
}

// TotalPages returns max(1, ceil(filteredCount/itemsPerPage)).
func (c *Controller[T]) TotalPages() int {
	count := len(c.Filtered())
	if count == 0 {
		return 1
	}
	return int(math.Ceil(float64(count) / float64(c.itemsPerPage)))
}

// PageItems slices the filtered list for the current page:
// (page-1)*size .. page*size.
func (c *Controller[T]) PageItems() []T {
	filtered := c.Filtered()
	page := c.CurrentPage()

	start := (page - 1) * c.itemsPerPage
	if start >= len(filtered) {
		return nil
	}
	end := start + c.itemsPerPage
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end]
}

// Delete removes one entry and reloads the collection on success. The
// caller passes the preferred identifier (documentId over numeric id). On
// failure the server's message is surfaced and the list left untouched.
func (c *Controller[T]) Delete(ctx context.Context, ref string) error {
	if err := c.cfg.Delete(ctx, ref); err != nil {
		c.err = err.Error()
		return err
	}
	return c.Load(ctx)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
