package occasync

import (
	"context"
	"time"
)

// memoryCollection serves one collection out of the Database's in-memory
// dataset. All operations take the shared RWMutex; mutations flush a
// snapshot after releasing it.
type memoryCollection struct {
	db   *Database
	name string
}

func (c *memoryCollection) observe(op string, start time.Time) {
	c.db.metrics.Increment(MetricStoreOps, "operation", op, "collection", c.name, "mode", string(ModeMemory))
	c.db.metrics.Timing(MetricStoreDuration, time.Since(start), "operation", op, "collection", c.name, "mode", string(ModeMemory))
}

func (c *memoryCollection) Find(filter Filter) *Cursor {
	return newCursor(func(ctx context.Context) ([]Record, error) {
		defer c.observe("find", time.Now())

		c.db.mu.RLock()
		defer c.db.mu.RUnlock()

		var results []Record
		for _, rec := range c.db.data[c.name] {
			if filter.Matches(rec) {
				results = append(results, rec.Clone())
			}
		}

		c.db.metrics.Histogram(MetricQueryResults, float64(len(results)), "collection", c.name)
		return results, nil
	})
}

func (c *memoryCollection) FindOne(ctx context.Context, filter Filter) (Record, error) {
	defer c.observe("findOne", time.Now())

	c.db.mu.RLock()
	defer c.db.mu.RUnlock()

	for _, rec := range c.db.data[c.name] {
		if filter.Matches(rec) {
			return rec.Clone(), nil
		}
	}
	return nil, nil
}

func (c *memoryCollection) InsertOne(ctx context.Context, rec Record) (string, error) {
	defer c.observe("insertOne", time.Now())

	normalized, err := rec.Normalize()
	if err != nil {
		c.db.metrics.Increment(MetricStoreErrors, "operation", "insertOne", "collection", c.name, "mode", string(ModeMemory))
		return "", WithContext(ErrValidation, map[string]interface{}{
			"collection": c.name,
			"reason":     err.Error(),
		})
	}

	c.db.mu.Lock()
	c.db.data[c.name] = append(c.db.data[c.name], normalized)
	c.db.mu.Unlock()

	c.db.flushSnapshot(ctx)
	return normalized.ID(), nil
}

func (c *memoryCollection) UpdateOne(ctx context.Context, filter Filter, update Update) (UpdateResult, error) {
	defer c.observe("updateOne", time.Now())

	c.db.mu.Lock()
	var result UpdateResult
	for i, rec := range c.db.data[c.name] {
		if !filter.Matches(rec) {
			continue
		}

		updated, err := applyUpdate(rec, update)
		if err != nil {
			c.db.mu.Unlock()
			c.db.metrics.Increment(MetricStoreErrors, "operation", "updateOne", "collection", c.name, "mode", string(ModeMemory))
			return UpdateResult{}, err
		}
		c.db.data[c.name][i] = updated
		result = UpdateResult{MatchedCount: 1, ModifiedCount: 1}
		break
	}
	c.db.mu.Unlock()

	if result.MatchedCount > 0 {
		c.db.flushSnapshot(ctx)
	}
	return result, nil
}

func (c *memoryCollection) DeleteOne(ctx context.Context, filter Filter) (int64, error) {
	defer c.observe("deleteOne", time.Now())

	c.db.mu.Lock()
	var deleted int64
	records := c.db.data[c.name]
	for i, rec := range records {
		if filter.Matches(rec) {
			c.db.data[c.name] = append(records[:i], records[i+1:]...)
			deleted = 1
			break
		}
	}
	c.db.mu.Unlock()

	if deleted > 0 {
		c.db.flushSnapshot(ctx)
	}
	return deleted, nil
}

func (c *memoryCollection) CountDocuments(ctx context.Context, filter Filter) (int64, error) {
	defer c.observe("countDocuments", time.Now())

	c.db.mu.RLock()
	defer c.db.mu.RUnlock()

	var count int64
	for _, rec := range c.db.data[c.name] {
		if filter.Matches(rec) {
			count++
		}
	}
	return count, nil
}

// applyUpdate returns a new record with Set fields merged in shallowly and
// Inc fields accumulated. Missing Inc targets start from 0; a non-numeric
// existing value is a validation error.
func applyUpdate(rec Record, update Update) (Record, error) {
	out := rec.Clone()

	for field, value := range update.Set {
		out[field] = value
	}

	for field, delta := range update.Inc {
		current, ok := asFloat(out[field])
		if !ok {
			if out[field] != nil {
				return nil, WithContext(ErrValidation, map[string]interface{}{
					"field":  field,
					"reason": "cannot increment non-numeric field",
				})
			}
			current = 0
		}
		out[field] = current + delta
	}

	// Set values may carry arbitrary caller types; normalize so stored
	// records stay in canonical JSON form
	if len(update.Set) > 0 {
		return out.Normalize()
	}
	return out, nil
}
