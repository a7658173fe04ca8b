package occasync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Snapshotter persists the fallback store's full contents to a snapshot
// backend after every mutation. The snapshot is the whole dataset as one
// JSON object keyed by collection name, so a restart restores exactly what
// the previous process had.
type Snapshotter struct {
	backend SnapshotBackend
	key     string
	logger  Logger
	metrics Metrics
}

func newSnapshotter(backend SnapshotBackend, key string, logger Logger, metrics Metrics) *Snapshotter {
	return &Snapshotter{
		backend: backend,
		key:     key,
		logger:  logger,
		metrics: metrics,
	}
}

// Load reads the snapshot and returns the stored collections. A missing
// snapshot is a fresh start, not an error.
func (s *Snapshotter) Load(ctx context.Context) (map[string][]Record, error) {
	data, err := s.backend.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			return make(map[string][]Record), nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	collections := make(map[string][]Record)
	if err := json.Unmarshal(data, &collections); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	s.logger.Info("snapshot loaded", "key", s.key, "collections", len(collections))
	return collections, nil
}

// Flush writes the full dataset to the backend. Failures are logged and
// counted but never propagated: a broken snapshot target must not take
// down reads and writes against the live in-memory data.
func (s *Snapshotter) Flush(ctx context.Context, collections map[string][]Record) {
	data, err := json.Marshal(collections)
	if err != nil {
		s.metrics.Increment(MetricSnapshotErrors)
		s.logger.Error("snapshot marshal failed", "error", err)
		return
	}

	if err := s.backend.Put(ctx, s.key, data); err != nil {
		s.metrics.Increment(MetricSnapshotErrors)
		s.logger.Error("snapshot write failed", "key", s.key, "error", err)
		return
	}

	s.metrics.Increment(MetricSnapshotFlush)
	s.metrics.Gauge(MetricSnapshotBytes, float64(len(data)))
}
