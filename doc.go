// Package occasync is the data-access core of the OccaSync B2B marketplace.
//
// It provides a document store over two interchangeable backing modes, a real
// PostgreSQL database (JSONB documents via pgx) and a file-persisted in-memory
// fallback, behind a single Database handle, plus the authentication and
// rate-limiting primitives every API route depends on.
//
// Quick start:
//
//	cfg := occasync.LoadConfig()
//	db, err := occasync.Connect(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close(ctx)
//
//	listings := db.Collection("listings")
//	results, err := listings.Find(occasync.Filter{
//	    "status": "active",
//	    "price":  occasync.Filter{"$gte": 50.0, "$lte": 150.0},
//	}).Sort("createdAt", occasync.Descending).Limit(50).All(ctx)
//
// When DATABASE_URL is unset or unreachable, the store runs in memory and
// rewrites a JSON snapshot of all collections after every mutation, so data
// survives process restarts without any external service. The fallback mode
// has no unique indexes and no cross-request atomicity; callers enforce
// uniqueness with a find-then-insert pre-check and accept the inherent race.
package occasync
