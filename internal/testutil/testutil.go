package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"sidebyside-backend/internal/components/chrono"
	"sidebyside-backend/internal/components/telemetry"
	"sidebyside-backend/internal/store"
	configlibsql "sidebyside-backend/lib/configutil/libsql"
)

type StoreParams struct {
	// if unspecified, the clock is fixed at DefaultNow
	Now time.Time
	// if unspecified, it will use `:memory:`
	DbPath string
}

var DefaultNow = time.Date(2025, time.July, 1, 9, 30, 0, 0, time.UTC)

type StoreResult struct {
	DB        *sql.DB
	Store     *store.Store
	Clock     chrono.FixedImpl
	Telemetry *telemetry.Recorder
}

// SetupStore opens a store with its schema applied, closed when the test
// ends.
func SetupStore(t testing.TB, params StoreParams) StoreResult {
	t.Helper()

	dbpath := ":memory:"
	if params.DbPath != "" {
		dbpath = params.DbPath
	}
	database, err := configlibsql.Struct{File: dbpath}.OpenDB()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })

	now := params.Now
	if now.IsZero() {
		now = DefaultNow
	}
	clock := chrono.NewFixedImpl(now)
	rec := telemetry.NewRecorder()

	st, err := store.New(context.Background(), database, clock, rec)
	if err != nil {
		t.Fatal(err)
	}
	return StoreResult{
		DB:        database,
		Store:     st,
		Clock:     clock,
		Telemetry: rec,
	}
}
