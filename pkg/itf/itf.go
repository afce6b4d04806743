// Package itf carries shared fixtures for integration tests that need a real
// postgres instance. Tests using it skip when the database is unreachable so
// the unit suite stays runnable everywhere.
package itf

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/meridianlife/agency-sdk/pkg/configuration"
)

// PostgreSQL database name maximum length is 63 characters.
const maxDBNameLength = 63

// SkipUnlessPostgres skips the test when postgres is not reachable, except on
// CI where a missing database is a hard failure.
func SkipUnlessPostgres(tb testing.TB) {
	tb.Helper()
	c := configuration.Use()
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(c.Database.Host, c.Database.Port), time.Second)
	if err == nil {
		_ = conn.Close()
		return
	}
	if os.Getenv("CI") != "" {
		tb.Fatalf("postgres is not reachable (DB_HOST/DB_PORT): %v", err)
	}
	tb.Skip("postgres is not reachable; skipping integration test")
}

func NewPool(dbOpts string) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	config, err := pgxpool.ParseConfig(dbOpts)
	if err != nil {
		panic(err)
	}
	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = time.Minute * 5
	config.MaxConnIdleTime = time.Second * 30

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		panic(fmt.Errorf("failed to create database pool: %w", err))
	}
	return pool
}

func sanitizeDBName(name string) string {
	sanitized := strings.ToLower(name)
	for _, ch := range []string{"/", " ", "-", ".", "(", ")", "[", "]"} {
		sanitized = strings.ReplaceAll(sanitized, ch, "_")
	}
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "test_db"
	}
	if len(sanitized) > maxDBNameLength {
		sanitized = sanitized[:maxDBNameLength]
	}
	return sanitized
}

func CreateDB(name string) {
	sanitizedName := sanitizeDBName(name)

	c := configuration.Use()
	adminConnStr := fmt.Sprintf(
		"host=%s port=%s user=%s dbname=postgres password=%s sslmode=disable",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password,
	)
	db, err := sql.Open("postgres", adminConnStr)
	if err != nil {
		panic(err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("[WARNING] Error closing CreateDB connection: %v", err)
		}
	}()
	if _, err := db.ExecContext(context.Background(), fmt.Sprintf("DROP DATABASE IF EXISTS %s", sanitizedName)); err != nil {
		panic(err)
	}
	if _, err := db.ExecContext(context.Background(), fmt.Sprintf("CREATE DATABASE %s", sanitizedName)); err != nil {
		panic(err)
	}
}

func DbOpts(name string) string {
	c := configuration.Use()
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		c.Database.Host, c.Database.Port, c.Database.User, sanitizeDBName(name), c.Database.Password,
	)
}

// ApplyMigrations executes the Up sections of the goose migration files under
// dir against the pool, in lexical order.
func ApplyMigrations(tb testing.TB, pool *pgxpool.Pool, dir string) {
	tb.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		tb.Fatalf("failed to read migrations dir %s: %v", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			tb.Fatalf("failed to read migration %s: %v", entry.Name(), err)
		}
		up := string(raw)
		if idx := strings.Index(up, "-- +goose Down"); idx >= 0 {
			up = up[:idx]
		}
		up = strings.ReplaceAll(up, "-- +goose Up", "")
		up = strings.ReplaceAll(up, "-- +goose StatementBegin", "")
		up = strings.ReplaceAll(up, "-- +goose StatementEnd", "")
		if _, err := pool.Exec(context.Background(), up); err != nil {
			tb.Fatalf("failed migration %s: %v", entry.Name(), err)
		}
	}
}
