package occasync

import (
	"context"
	"sort"
)

// Sort directions for Cursor.Sort
const (
	Ascending  = 1
	Descending = -1
)

// Update describes a partial modification applied by UpdateOne.
// Set fields shallow-merge into the record; Inc fields accumulate
// numerically, treating missing fields as 0.
type Update struct {
	Set Record
	Inc map[string]float64
}

// UpdateResult reports what UpdateOne did. The store never errors on
// "no match"; callers check MatchedCount.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
}

// Collection is the uniform accessor over one named, ordered set of
// records, regardless of backing mode. Absent records are signalled with
// nil results and zero counts, never with errors.
type Collection interface {
	// Find builds a lazy cursor over records matching the filter, in
	// insertion order until sorted.
	Find(filter Filter) *Cursor

	// FindOne returns the first match in insertion order, or nil.
	FindOne(ctx context.Context, filter Filter) (Record, error)

	// InsertOne appends the record and returns its "id" field ("" when
	// absent). The record is normalized through a JSON round-trip.
	InsertOne(ctx context.Context, rec Record) (string, error)

	// UpdateOne applies the update to the first match in place.
	UpdateOne(ctx context.Context, filter Filter, update Update) (UpdateResult, error)

	// DeleteOne removes the first match and reports 0 or 1.
	DeleteOne(ctx context.Context, filter Filter) (int64, error)

	// CountDocuments returns the number of matches.
	CountDocuments(ctx context.Context, filter Filter) (int64, error)
}

// Cursor is a fluent, lazily-executed find. Sort is stable; records that
// compare as incomparable keep their relative order. Limit truncates after
// sorting.
type Cursor struct {
	run       func(ctx context.Context) ([]Record, error)
	sortField string
	sortDir   int
	limit     int
}

func newCursor(run func(ctx context.Context) ([]Record, error)) *Cursor {
	return &Cursor{run: run, limit: -1}
}

// Sort orders results by one field: Ascending or Descending
func (c *Cursor) Sort(field string, direction int) *Cursor {
	c.sortField = field
	c.sortDir = direction
	return c
}

// Limit truncates results to the first n
func (c *Cursor) Limit(n int) *Cursor {
	c.limit = n
	return c
}

// All executes the query and materializes the results
func (c *Cursor) All(ctx context.Context) ([]Record, error) {
	results, err := c.run(ctx)
	if err != nil {
		return nil, err
	}

	if c.sortField != "" {
		field, dir := c.sortField, c.sortDir
		sort.SliceStable(results, func(i, j int) bool {
			cmp, ok := compareValues(results[i][field], results[j][field])
			if !ok {
				return false
			}
			if dir == Descending {
				return cmp > 0
			}
			return cmp < 0
		})
	}

	if c.limit >= 0 && len(results) > c.limit {
		results = results[:c.limit]
	}

	return results, nil
}
