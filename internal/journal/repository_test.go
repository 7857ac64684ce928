package journal

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/envsensor/internal/infrastructure/database"
	"github.com/nerrad567/envsensor/migrations"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:    filepath.Join(t.TempDir(), "journal.db"),
		WALMode: true,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestSQLiteRepository_CreateAndList(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	states := []string{"connecting", "connected", "interrupted", "connected"}
	for i, s := range states {
		ev := &Event{DeviceID: "b827eb123456", State: s, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if s == "interrupted" {
			ev.Detail = "keep-alive timeout"
		}
		if err := repo.Create(ctx, ev); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if !strings.HasPrefix(ev.ID, "evt-") {
			t.Errorf("ID = %q, want evt- prefix", ev.ID)
		}
	}

	all, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("List() returned %d events, want 4", len(all))
	}
	if all[0].State != "connected" || !all[0].CreatedAt.Equal(base.Add(3*time.Second)) {
		t.Errorf("first event = %+v, want most recent connected", all[0])
	}
	if all[1].Detail != "keep-alive timeout" {
		t.Errorf("detail = %q, want keep-alive timeout", all[1].Detail)
	}
	if all[3].Detail != "" {
		t.Errorf("NULL detail = %q, want empty", all[3].Detail)
	}

	connected, err := repo.List(ctx, Filter{State: "connected"})
	if err != nil {
		t.Fatalf("List(state) error = %v", err)
	}
	if len(connected) != 2 {
		t.Errorf("List(state=connected) = %d events, want 2", len(connected))
	}

	recent, err := repo.List(ctx, Filter{Since: base.Add(2 * time.Second), Limit: 1})
	if err != nil {
		t.Fatalf("List(since) error = %v", err)
	}
	if len(recent) != 1 || recent[0].State != "connected" {
		t.Errorf("List(since, limit 1) = %+v", recent)
	}
}

func TestSQLiteRepository_ListEmpty(t *testing.T) {
	repo := openTestRepo(t)

	events, err := repo.List(context.Background(), Filter{State: "rejected"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Errorf("List() = %v, want empty non-nil slice", events)
	}
}

func TestLatest(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	ev, err := Latest(ctx, repo)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if ev != nil {
		t.Fatalf("Latest() on empty journal = %+v, want nil", ev)
	}

	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	for i, s := range []string{"connected", "interrupted", "rejected"} {
		if err := repo.Create(ctx, &Event{DeviceID: "dev", State: s, CreatedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	ev, err = Latest(ctx, repo)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if ev == nil || ev.State != "rejected" {
		t.Errorf("Latest() = %+v, want the rejected event", ev)
	}
}
