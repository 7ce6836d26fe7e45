package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/updownarb/internal/domain"
)

func TestDSN(t *testing.T) {
	got := DSN(ClientConfig{Host: "db", Database: "arb", User: "u", Password: "p"})
	if got != "postgres://u:p@db:5432/arb?sslmode=disable" {
		t.Fatalf("DSN = %q", got)
	}
	if got := DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}); got != "postgres://x" {
		t.Fatalf("explicit DSN = %q", got)
	}
}

func TestAppendListOpts(t *testing.T) {
	since := time.Unix(100, 0)
	q, args := appendListOpts("SELECT * FROM t WHERE status = $1", []any{"ACTIVE"}, 2, "opened_at",
		domain.ListOpts{Since: &since, Limit: 10, Offset: 20})

	want := "SELECT * FROM t WHERE status = $1 AND opened_at >= $2 ORDER BY opened_at DESC LIMIT $3 OFFSET $4"
	if q != want {
		t.Fatalf("query = %q", q)
	}
	if len(args) != 4 || args[3] != 20 {
		t.Fatalf("args = %v", args)
	}

	q, args = appendListOpts("SELECT 1 WHERE 1=1", nil, 1, "created_at", domain.ListOpts{})
	if !strings.HasSuffix(q, "ORDER BY created_at DESC") || len(args) != 0 {
		t.Fatalf("bare query = %q %v", q, args)
	}
}

func TestMigrationFiles(t *testing.T) {
	names, err := migrationFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) == 0 || names[0] != "001_init.sql" {
		t.Fatalf("migrations = %v", names)
	}
	data, err := migrationsFS.ReadFile("migrations/" + names[0])
	if err != nil {
		t.Fatal(err)
	}
	for _, table := range []string{"hedge_positions", "audit_log"} {
		if !strings.Contains(string(data), table) {
			t.Fatalf("migration missing %s", table)
		}
	}
}
