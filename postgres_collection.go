package occasync

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// postgresCollection serves one collection out of the documents table.
// Filter evaluation happens in process with the same matcher the memory
// store uses, so both modes answer every query identically. Rows are
// fetched in seq order, which is insertion order.
type postgresCollection struct {
	db   *Database
	name string
}

type documentRow struct {
	seq int64
	rec Record
}

func (c *postgresCollection) observe(op string, start time.Time) {
	c.db.metrics.Increment(MetricStoreOps, "operation", op, "collection", c.name, "mode", string(ModePostgres))
	c.db.metrics.Timing(MetricStoreDuration, time.Since(start), "operation", op, "collection", c.name, "mode", string(ModePostgres))
}

func (c *postgresCollection) fail(op string, err error) error {
	c.db.metrics.Increment(MetricStoreErrors, "operation", op, "collection", c.name, "mode", string(ModePostgres))
	c.db.logger.Error("store operation failed", "operation", op, "collection", c.name, "error", err)
	return WithContext(ErrBackendUnavailable, map[string]interface{}{
		"operation":  op,
		"collection": c.name,
		"cause":      err.Error(),
	})
}

func (c *postgresCollection) fetch(ctx context.Context) ([]documentRow, error) {
	rows, err := c.db.pool.Query(ctx,
		`SELECT seq, doc FROM documents WHERE collection = $1 ORDER BY seq`, c.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []documentRow
	for rows.Next() {
		var seq int64
		var doc []byte
		if err := rows.Scan(&seq, &doc); err != nil {
			return nil, err
		}

		var rec Record
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, err
		}
		out = append(out, documentRow{seq: seq, rec: rec})
	}
	return out, rows.Err()
}

// firstMatch returns the earliest-inserted row matching the filter
func (c *postgresCollection) firstMatch(ctx context.Context, filter Filter) (*documentRow, error) {
	all, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if filter.Matches(all[i].rec) {
			return &all[i], nil
		}
	}
	return nil, nil
}

func (c *postgresCollection) Find(filter Filter) *Cursor {
	return newCursor(func(ctx context.Context) ([]Record, error) {
		defer c.observe("find", time.Now())

		all, err := c.fetch(ctx)
		if err != nil {
			return nil, c.fail("find", err)
		}

		var results []Record
		for _, row := range all {
			if filter.Matches(row.rec) {
				results = append(results, row.rec)
			}
		}

		c.db.metrics.Histogram(MetricQueryResults, float64(len(results)), "collection", c.name)
		return results, nil
	})
}

func (c *postgresCollection) FindOne(ctx context.Context, filter Filter) (Record, error) {
	defer c.observe("findOne", time.Now())

	row, err := c.firstMatch(ctx, filter)
	if err != nil {
		return nil, c.fail("findOne", err)
	}
	if row == nil {
		return nil, nil
	}
	return row.rec, nil
}

func (c *postgresCollection) InsertOne(ctx context.Context, rec Record) (string, error) {
	defer c.observe("insertOne", time.Now())

	normalized, err := rec.Normalize()
	if err != nil {
		return "", WithContext(ErrValidation, map[string]interface{}{
			"collection": c.name,
			"reason":     err.Error(),
		})
	}

	doc, err := json.Marshal(normalized)
	if err != nil {
		return "", WithContext(ErrValidation, map[string]interface{}{
			"collection": c.name,
			"reason":     err.Error(),
		})
	}

	_, err = c.db.pool.Exec(ctx,
		`INSERT INTO documents (collection, doc) VALUES ($1, $2)`, c.name, doc)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", WithContext(ErrConflict, map[string]interface{}{
				"collection": c.name,
				"constraint": pgErr.ConstraintName,
			})
		}
		return "", c.fail("insertOne", err)
	}

	return normalized.ID(), nil
}

func (c *postgresCollection) UpdateOne(ctx context.Context, filter Filter, update Update) (UpdateResult, error) {
	defer c.observe("updateOne", time.Now())

	row, err := c.firstMatch(ctx, filter)
	if err != nil {
		return UpdateResult{}, c.fail("updateOne", err)
	}
	if row == nil {
		return UpdateResult{}, nil
	}

	updated, err := applyUpdate(row.rec, update)
	if err != nil {
		return UpdateResult{}, err
	}

	doc, err := json.Marshal(updated)
	if err != nil {
		return UpdateResult{}, WithContext(ErrValidation, map[string]interface{}{
			"collection": c.name,
			"reason":     err.Error(),
		})
	}

	tag, err := c.db.pool.Exec(ctx,
		`UPDATE documents SET doc = $1 WHERE seq = $2`, doc, row.seq)
	if err != nil {
		return UpdateResult{}, c.fail("updateOne", err)
	}

	return UpdateResult{MatchedCount: 1, ModifiedCount: tag.RowsAffected()}, nil
}

func (c *postgresCollection) DeleteOne(ctx context.Context, filter Filter) (int64, error) {
	defer c.observe("deleteOne", time.Now())

	row, err := c.firstMatch(ctx, filter)
	if err != nil {
		return 0, c.fail("deleteOne", err)
	}
	if row == nil {
		return 0, nil
	}

	tag, err := c.db.pool.Exec(ctx,
		`DELETE FROM documents WHERE seq = $1`, row.seq)
	if err != nil {
		return 0, c.fail("deleteOne", err)
	}
	return tag.RowsAffected(), nil
}

func (c *postgresCollection) CountDocuments(ctx context.Context, filter Filter) (int64, error) {
	defer c.observe("countDocuments", time.Now())

	all, err := c.fetch(ctx)
	if err != nil {
		return 0, c.fail("countDocuments", err)
	}

	var count int64
	for _, row := range all {
		if filter.Matches(row.rec) {
			count++
		}
	}
	return count, nil
}
