package migrate_test

import (
	"context"
	"testing"

	"precedent/internal/db"
	"precedent/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	before, err := migrate.CurrentStatus(ctx, conn)
	if err != nil {
		t.Fatalf("status before: %v", err)
	}
	if before.Current != 0 || before.Pending() == 0 {
		t.Fatalf("expected pending migrations on a fresh db, got %+v", before)
	}
	for i := 0; i < 2; i++ {
		if err := migrate.Migrate(ctx, conn); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
	}
	after, err := migrate.CurrentStatus(ctx, conn)
	if err != nil {
		t.Fatalf("status after: %v", err)
	}
	if after.Pending() != 0 || after.Current != before.Latest {
		t.Fatalf("expected fully migrated db, got %+v", after)
	}
	for _, table := range []string{"decision_records", "decision_links", "events", "api_keys"} {
		var n int
		if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n); err != nil {
			t.Fatalf("lookup %s: %v", table, err)
		}
		if n != 1 {
			t.Fatalf("expected table %s to exist", table)
		}
	}
}
