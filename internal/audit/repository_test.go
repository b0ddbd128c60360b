package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-access/migrations"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

func TestCreate_GeneratesIDAndTime(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))

	e := &Entry{Action: ActionDeviceMessage, EntityType: EntityDevice, EntityID: "d1", Source: SourceMQTT,
		Details: map[string]any{"topic": "access/requests/d1"}}
	if err := repo.Create(context.Background(), e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(e.ID) != len("aud-")+8 || e.ID[:4] != "aud-" {
		t.Errorf("ID = %q, want aud-xxxxxxxx", e.ID)
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	res, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || len(res.Entries) != 1 {
		t.Fatalf("List() = %+v", res)
	}
	got := res.Entries[0]
	if got.EntityID != "d1" || got.UserID != "" || got.Details["topic"] != "access/requests/d1" {
		t.Errorf("entry = %+v", got)
	}
}

func TestList_Filters(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	seed := []Entry{
		{Action: ActionAccessGranted, EntityType: EntityDoor, EntityID: "door-1", UserID: "usr-1", Source: SourceMQTT, CreatedAt: base},
		{Action: ActionAccessDenied, EntityType: EntityDoor, EntityID: "door-1", Source: SourceMQTT, CreatedAt: base.Add(time.Minute)},
		{Action: ActionAccessDenied, EntityType: EntityDoor, EntityID: "door-2", Source: SourceMQTT, CreatedAt: base.Add(2 * time.Minute)},
		{Action: ActionAlert, EntityType: EntityDevice, EntityID: "d1", Source: SourceMQTT, CreatedAt: base.Add(3 * time.Minute)},
	}
	for i := range seed {
		if err := repo.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantFirst string
	}{
		{"all newest first", Filter{}, 4, ActionAlert},
		{"by action", Filter{Action: ActionAccessDenied}, 2, ActionAccessDenied},
		{"by entity", Filter{EntityType: EntityDoor, EntityID: "door-1"}, 2, ActionAccessDenied},
		{"since", Filter{Since: base.Add(90 * time.Second)}, 2, ActionAlert},
		{"no match", Filter{Action: ActionLockdown}, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal || len(res.Entries) != tt.wantTotal {
				t.Fatalf("List() total = %d entries = %d, want %d", res.Total, len(res.Entries), tt.wantTotal)
			}
			if tt.wantTotal > 0 && res.Entries[0].Action != tt.wantFirst {
				t.Errorf("first action = %s, want %s", res.Entries[0].Action, tt.wantFirst)
			}
		})
	}
}

func TestList_Pagination(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	for i := range 5 {
		e := &Entry{Action: ActionDeviceStatus, EntityType: EntityDevice, Source: SourceMQTT, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	res, err := repo.List(ctx, Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 5 || len(res.Entries) != 1 || res.Limit != 2 || res.Offset != 4 {
		t.Errorf("List() = total %d entries %d limit %d offset %d", res.Total, len(res.Entries), res.Limit, res.Offset)
	}

	res, err = repo.List(ctx, Filter{Limit: 1000, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Limit != maxLimit || res.Offset != 0 {
		t.Errorf("clamped limit = %d offset = %d", res.Limit, res.Offset)
	}
}
