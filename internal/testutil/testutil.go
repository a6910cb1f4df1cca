package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"net"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/target/mmk-docpipe/internal/migrate"
)

// TestDBConfig locates the integration test database. The default port
// matches the docker-compose test profile; CI sets TEST_DB_PORT=5432.
type TestDBConfig struct {
	Host      string `env:"TEST_DB_HOST"      envDefault:"localhost"`
	Port      string `env:"TEST_DB_PORT"      envDefault:"55432"`
	User      string `env:"TEST_DB_USER"      envDefault:"docpipe"`
	Password  string `env:"TEST_DB_PASSWORD"  envDefault:"docpipe"`
	DBName    string `env:"TEST_DB_NAME"      envDefault:"docpipe"`
	SSLMode   string `env:"DB_SSL_MODE"       envDefault:"disable"`
	Ephemeral bool   `env:"TEST_DB_EPHEMERAL"`
	// Require turns a missing database into a failure instead of a skip.
	Require bool `env:"TEST_REQUIRE_DB"`
}

// DefaultTestDBConfig reads TestDBConfig from the environment.
func DefaultTestDBConfig() TestDBConfig {
	cfg, err := env.ParseAs[TestDBConfig]()
	if err != nil {
		// Only malformed booleans fail; fall back to a shared, optional database.
		return TestDBConfig{Host: "localhost", Port: "55432", User: "docpipe", Password: "docpipe", DBName: "docpipe", SSLMode: "disable"}
	}
	return cfg
}

// DSN returns the connection URL, optionally pinned to a schema.
func (c TestDBConfig) DSN(searchPath string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	q := url.Values{"sslmode": {c.SSLMode}}
	if searchPath != "" {
		q.Set("search_path", searchPath)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func openAndPing(dsn string, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// SkipIfNoTestDB skips t when the test database cannot be reached, or fails
// it when TEST_REQUIRE_DB is set.
func SkipIfNoTestDB(t testing.TB) {
	t.Helper()
	cfg := DefaultTestDBConfig()
	db, err := openAndPing(cfg.DSN(""), 2*time.Second)
	if err != nil {
		if cfg.Require {
			t.Fatal("test database not available:", err)
		}
		t.Skip("test database not available:", err)
	}
	_ = db.Close()
}

func migrateOrFatal(t testing.TB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := migrate.Run(ctx, db); err != nil {
		t.Fatal("run migrations:", err)
	}
}

// SetupTestDB connects to the shared test database, migrates it and empties
// every table. The connection is closed when t finishes.
func SetupTestDB(t testing.TB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)

	db, err := openAndPing(DefaultTestDBConfig().DSN(""), 5*time.Second)
	if err != nil {
		t.Fatal("connect to test database:", err)
	}
	migrateOrFatal(t, db)
	CleanupTestDB(t, db)
	t.Cleanup(func() {
		CleanupTestDB(t, db)
		_ = db.Close()
	})
	return db
}

// CleanupTestDB deletes all rows written by tests. audit_events rejects
// DELETE by trigger, so it is truncated.
func CleanupTestDB(t testing.TB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "TRUNCATE jobs, audit_events, documents"); err != nil {
		t.Fatalf("clean test tables: %v", err)
	}
}

// SetupEphemeralSchemaDB migrates a fresh schema owned by t and drops it on cleanup.
func SetupEphemeralSchemaDB(t testing.TB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)
	cfg := DefaultTestDBConfig()

	admin, err := openAndPing(cfg.DSN(""), 5*time.Second)
	if err != nil {
		t.Fatal("connect admin database:", err)
	}
	schema := schemaName()
	if _, err := admin.ExecContext(context.Background(), "CREATE SCHEMA "+schema); err != nil {
		_ = admin.Close()
		t.Fatalf("create schema %s: %v", schema, err)
	}

	db, err := openAndPing(cfg.DSN(schema+",public"), 10*time.Second)
	t.Cleanup(func() {
		if db != nil {
			_ = db.Close()
		}
		if _, err := admin.ExecContext(context.Background(), "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		_ = admin.Close()
	})
	if err != nil {
		t.Fatalf("connect schema %s: %v", schema, err)
	}
	db.SetMaxOpenConns(10)
	t.Logf("using ephemeral schema %s", schema)
	migrateOrFatal(t, db)
	return db
}

func schemaName() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return "t_" + hex.EncodeToString(b)
}

// WithAutoDB runs fn against an ephemeral schema when TEST_DB_EPHEMERAL is
// set, otherwise against the shared test database.
func WithAutoDB(t testing.TB, fn func(*sql.DB)) {
	t.Helper()
	if DefaultTestDBConfig().Ephemeral {
		fn(SetupEphemeralSchemaDB(t))
		return
	}
	fn(SetupTestDB(t))
}

// TestTime returns the fixed clock origin used across tests.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// ConcurrentTestRunner runs functions in parallel and reports their errors.
type ConcurrentTestRunner struct {
	t testing.TB
}

// NewConcurrentTestRunner creates a ConcurrentTestRunner.
func NewConcurrentTestRunner(t testing.TB) *ConcurrentTestRunner {
	return &ConcurrentTestRunner{t: t}
}

// RunConcurrent starts every fn at once and returns their errors by index.
func (r *ConcurrentTestRunner) RunConcurrent(fns ...func() error) []error {
	r.t.Helper()
	errs := make([]error, len(fns))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, fn := range fns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs[i] = fn()
		}()
	}
	close(start)
	wg.Wait()
	return errs
}

// AssertNoErrors fails the test on the first non-nil error.
func (r *ConcurrentTestRunner) AssertNoErrors(errs []error) {
	r.t.Helper()
	for i, err := range errs {
		if err != nil {
			r.t.Fatalf("concurrent operation %d failed: %v", i, err)
		}
	}
}
