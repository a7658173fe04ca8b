package occasync

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Mode identifies which backing store a Database ended up on
type Mode string

const (
	// ModePostgres means records live in a real database
	ModePostgres Mode = "postgres"

	// ModeMemory means records live in process memory, persisted through
	// a snapshot backend
	ModeMemory Mode = "memory"
)

// Database is the single entry point to the data layer. Connect decides
// once, at startup, whether it runs against Postgres or the in-memory
// fallback; the mode never changes for the lifetime of the process.
type Database struct {
	mode    Mode
	name    string
	logger  Logger
	metrics Metrics

	// postgres mode
	pool *pgxpool.Pool

	// memory mode
	mu     sync.RWMutex
	data   map[string][]Record
	snap   *Snapshotter
	snapMu sync.Mutex
}

type options struct {
	logger      Logger
	metrics     Metrics
	snapBackend SnapshotBackend
	snapKey     string
}

// Option configures a Database at Connect time
type Option func(*options)

// WithLogger sets the logger (default: NoOpLogger)
func WithLogger(logger Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the metrics collector (default: NoOpMetrics)
func WithMetrics(metrics Metrics) Option {
	return func(o *options) { o.metrics = metrics }
}

// WithSnapshotBackend overrides where the fallback store persists its
// snapshot (default: a filesystem backend at cfg.SnapshotPath)
func WithSnapshotBackend(backend SnapshotBackend, key string) Option {
	return func(o *options) {
		o.snapBackend = backend
		o.snapKey = key
	}
}

// Connect establishes the data layer. With a DATABASE_URL it tries
// Postgres first; any failure to connect, ping, or create the schema
// falls back to the in-memory store instead of refusing to start. The
// process stays available either way.
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Database, error) {
	o := &options{
		logger:  &NoOpLogger{},
		metrics: &NoOpMetrics{},
	}
	for _, opt := range opts {
		opt(o)
	}

	db := &Database{
		name:    cfg.DatabaseName,
		logger:  o.logger,
		metrics: o.metrics,
	}

	if cfg.DatabaseURL != "" {
		pool, err := connectPostgres(ctx, cfg.DatabaseURL, o.logger)
		if err == nil {
			db.mode = ModePostgres
			db.pool = pool
			o.logger.Info("connected to postgres", "database", cfg.DatabaseName)
			return db, nil
		}
		o.logger.Warn("postgres unavailable, using in-memory fallback", "error", err)
	} else {
		o.logger.Info("no database url configured, using in-memory fallback")
	}

	backend := o.snapBackend
	key := o.snapKey
	if backend == nil {
		path := cfg.SnapshotPath
		if path == "" {
			path = DefaultSnapshotPath
		}
		backend = NewFilesystemSnapshotBackend(filepath.Dir(path))
		key = filepath.Base(path)
	}

	db.mode = ModeMemory
	db.snap = newSnapshotter(backend, key, o.logger, o.metrics)

	data, err := db.snap.Load(ctx)
	if err != nil {
		// A corrupt or unreadable snapshot should not brick the store
		o.logger.Error("snapshot load failed, starting empty", "error", err)
		data = make(map[string][]Record)
	}
	db.data = data

	return db, nil
}

func connectPostgres(ctx context.Context, url string, logger Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if err := ensureSchema(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// ensureSchema creates the documents table and its indexes. The table is
// required; index creation failures are logged and tolerated so an under-
// privileged role can still run.
func ensureSchema(ctx context.Context, pool *pgxpool.Pool, logger Logger) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			seq        BIGSERIAL PRIMARY KEY,
			collection TEXT NOT NULL,
			doc        JSONB NOT NULL
		)`)
	if err != nil {
		return err
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS documents_collection_idx
			ON documents (collection)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS documents_collection_id_idx
			ON documents (collection, (doc->>'id'))
			WHERE doc ? 'id'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_email_idx
			ON documents ((doc->>'email'))
			WHERE collection = 'users'`,
	}
	for _, stmt := range indexes {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			logger.Warn("index creation failed", "error", err)
		}
	}

	return nil
}

// Mode reports which backing store this Database runs on
func (db *Database) Mode() Mode {
	return db.mode
}

// Collection returns the uniform accessor for one named collection. The
// returned value is cheap; callers grab it per request.
func (db *Database) Collection(name string) Collection {
	if db.mode == ModePostgres {
		return &postgresCollection{db: db, name: name}
	}
	return &memoryCollection{db: db, name: name}
}

// Close releases the underlying pool or flushes a final snapshot
func (db *Database) Close(ctx context.Context) {
	if db.mode == ModePostgres {
		db.pool.Close()
		return
	}
	db.flushSnapshot(ctx)
}

// flushSnapshot clones the dataset under the read lock and writes it out
// without holding it, so slow snapshot backends never block the store.
// snapMu serializes writers so flushes cannot interleave out of order.
func (db *Database) flushSnapshot(ctx context.Context) {
	if db.snap == nil {
		return
	}

	db.mu.RLock()
	clone := make(map[string][]Record, len(db.data))
	for name, records := range db.data {
		recs := make([]Record, len(records))
		for i, rec := range records {
			recs[i] = rec.Clone()
		}
		clone[name] = recs
	}
	db.mu.RUnlock()

	db.snapMu.Lock()
	defer db.snapMu.Unlock()
	db.snap.Flush(ctx, clone)
}
