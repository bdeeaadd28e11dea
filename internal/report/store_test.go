package report

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

// newTestStore migrates and connects to DATABASE_URL, skipping the test if
// it is not set or Postgres is unreachable.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping Postgres tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := Open(ctx, dsn)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := Migrate(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(db)
}

func TestRecordAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	target := fmt.Sprintf("target-%d", time.Now().UnixNano())

	for i := 1; i <= 3; i++ {
		if err := s.RecordReport(ctx, "alice", target, i, i == 3); err != nil {
			t.Fatalf("RecordReport #%d: %v", i, err)
		}
	}

	n, err := s.CountRecent(ctx, target, time.Hour)
	if err != nil {
		t.Fatalf("CountRecent: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 reports, got %d", n)
	}

	recent, err := s.Recent(ctx, target, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(recent))
	}
	if !recent[0].Banned || recent[0].Count != 3 {
		t.Errorf("expected newest row to be the banning report, got %+v", recent[0])
	}
}

func TestRecordReport_EmptyTarget(t *testing.T) {
	s := NewStore(nil)
	if err := s.RecordReport(context.Background(), "alice", "", 1, false); err == nil {
		t.Error("expected error for empty target")
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 || len(entries)%2 != 0 {
		t.Errorf("expected paired up/down migrations, got %d files", len(entries))
	}
}
