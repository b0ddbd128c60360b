package access

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-access/migrations"
)

// testDB opens a temporary SQLite database with the full schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "access.db"),
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

type seeded struct {
	users *SQLiteUserRepository
	cards *SQLiteCardRepository
	doors *SQLiteDoorRepository
	perms *SQLitePermissionRepository
	user  *User
	card  *Card
	door  *Door
}

func seed(t *testing.T) *seeded {
	t.Helper()
	ctx := context.Background()
	db := testDB(t)

	s := &seeded{
		users: NewUserRepository(db),
		cards: NewCardRepository(db),
		doors: NewDoorRepository(db),
		perms: NewPermissionRepository(db),
	}

	s.user = &User{Name: "Grace Hopper", Roles: []string{"staff"}}
	if err := s.users.Create(ctx, s.user); err != nil {
		t.Fatalf("creating user: %v", err)
	}

	s.card = &Card{PhysicalID: "ABC123", UserID: s.user.ID, Type: CardEmployee, ValidFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	if err := s.cards.Create(ctx, s.card); err != nil {
		t.Fatalf("creating card: %v", err)
	}

	s.door = &Door{Name: "Lab", SecurityLevel: SecurityMedium, MaxAttempts: 3, LockoutDuration: 60,
		Schedule: &Schedule{Days: []string{"monday"}, StartTime: "08:00", EndTime: "18:00"}}
	if err := s.doors.Create(ctx, s.door); err != nil {
		t.Fatalf("creating door: %v", err)
	}
	return s
}

func TestSQLiteCardRepository(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	got, err := s.cards.GetByPhysicalID(ctx, "ABC123")
	if err != nil {
		t.Fatalf("GetByPhysicalID() error = %v", err)
	}
	if got.ID != s.card.ID || got.UserID != s.user.ID || got.Status != CardActive || got.Type != CardEmployee {
		t.Errorf("GetByPhysicalID() = %+v", got)
	}

	if _, err := s.cards.GetByPhysicalID(ctx, "missing"); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("GetByPhysicalID(missing) error = %v, want ErrCardNotFound", err)
	}

	dup := &Card{PhysicalID: "ABC123", UserID: s.user.ID, Type: CardVisitor, ValidFrom: time.Now()}
	if err := s.cards.Create(ctx, dup); !errors.Is(err, ErrCardExists) {
		t.Errorf("Create(duplicate) error = %v, want ErrCardExists", err)
	}

	used := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	got.RecordUse(used)
	if err := s.cards.Update(ctx, got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	again, err := s.cards.GetByID(ctx, got.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if again.UsageCount != 1 || again.LastUsed == nil || !again.LastUsed.Equal(used) {
		t.Errorf("after Update: count=%d last_used=%v", again.UsageCount, again.LastUsed)
	}

	ghost := &Card{ID: "card-ghost", ValidFrom: time.Now()}
	if err := s.cards.Update(ctx, ghost); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrCardNotFound", err)
	}
}

func TestSQLiteDoorRepository(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	got, err := s.doors.GetByID(ctx, s.door.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != DoorActive || got.SecurityLevel != SecurityMedium || got.DoorType != "standard" {
		t.Errorf("GetByID() = %+v", got)
	}
	if got.Schedule == nil || got.Schedule.StartTime != "08:00" || len(got.Schedule.Days) != 1 {
		t.Errorf("Schedule = %+v", got.Schedule)
	}

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for range 3 {
		got.RecordFailure(now)
	}
	if err := s.doors.Update(ctx, got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	locked, err := s.doors.GetByID(ctx, s.door.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if locked.FailedAttempts != 3 || !locked.IsLockedOut(now) {
		t.Errorf("after Update: attempts=%d locked_until=%v", locked.FailedAttempts, locked.LockedUntil)
	}

	if _, err := s.doors.GetByID(ctx, "missing"); !errors.Is(err, ErrDoorNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrDoorNotFound", err)
	}
}

func TestSQLiteDoorRepository_LockoutRoundTrip(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	door, err := s.doors.GetByID(ctx, s.door.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	now := time.Date(2026, 3, 2, 9, 0, 0, 750_000_123, time.UTC)
	door.Lock(now)
	want := now.Add(60 * time.Second)
	if err := s.doors.Update(ctx, door); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := s.doors.GetByID(ctx, s.door.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.LockedUntil == nil || !got.LockedUntil.Equal(want) {
		t.Fatalf("LockedUntil = %v, want %v", got.LockedUntil, want)
	}
	if !got.IsLockedOut(want.Add(-time.Nanosecond)) {
		t.Error("door should still be locked just before locked_until")
	}
	if got.IsLockedOut(want) {
		t.Error("door should be accessible again at locked_until")
	}
}

func TestFormatTime_SortsAsText(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	earlier := formatTime(base)
	later := formatTime(base.Add(500 * time.Millisecond))
	if earlier >= later {
		t.Errorf("formatTime order: %q >= %q", earlier, later)
	}
}

func TestSQLiteDoorRepository_Transition(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	d, err := s.doors.Transition(ctx, s.door.ID, TransitionEnterMaintenance)
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if d.Status != DoorMaintenance {
		t.Errorf("Status = %s, want maintenance", d.Status)
	}

	if _, err := s.doors.Transition(ctx, s.door.ID, TransitionEnterMaintenance); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Transition() error = %v, want ErrInvalidTransition", err)
	}

	stored, _ := s.doors.GetByID(ctx, s.door.ID) //nolint:errcheck // checked via Status
	if stored.Status != DoorMaintenance {
		t.Errorf("stored Status = %s, want maintenance", stored.Status)
	}
}

func TestSQLiteUserRepository(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	hash, err := HashPIN("9999")
	if err != nil {
		t.Fatalf("HashPIN() error = %v", err)
	}
	withPIN := &User{Name: "Alan Turing", PINHash: hash}
	if err := s.users.Create(ctx, withPIN); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := s.users.GetByID(ctx, withPIN.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.PINHash != hash || !got.IsActive() || len(got.Roles) != 0 {
		t.Errorf("GetByID() = %+v", got)
	}

	first, err := s.users.GetByID(ctx, s.user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if first.PINHash != "" || len(first.Roles) != 1 || first.Roles[0] != "staff" {
		t.Errorf("GetByID() = %+v", first)
	}

	if _, err := s.users.GetByID(ctx, "usr-none"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrUserNotFound", err)
	}
}

func TestSQLitePermissionRepository_CheckAccess(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	monday := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	if p, err := s.perms.CheckAccess(ctx, s.user.ID, s.door.ID, monday); err != nil || p != nil {
		t.Fatalf("CheckAccess() with no permissions = %v, %v", p, err)
	}

	perms := []*Permission{
		{UserID: s.user.ID, DoorID: s.door.ID, Status: PermissionSuspended, ValidFrom: monday.Add(-time.Hour)},
		{UserID: s.user.ID, DoorID: s.door.ID, ValidFrom: monday.Add(-time.Hour),
			Schedule: &Schedule{Days: []string{"tuesday"}}},
		{UserID: s.user.ID, DoorID: s.door.ID, ValidFrom: monday.Add(-time.Hour), CardID: &s.card.ID, PINRequired: true,
			Schedule: &Schedule{Days: []string{"monday"}, StartTime: "08:00", EndTime: "12:00"}},
	}
	for _, p := range perms {
		if err := s.perms.Create(ctx, p); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	p, err := s.perms.CheckAccess(ctx, s.user.ID, s.door.ID, monday)
	if err != nil {
		t.Fatalf("CheckAccess() error = %v", err)
	}
	if p == nil || p.ID != perms[2].ID {
		t.Fatalf("CheckAccess() = %+v, want %s", p, perms[2].ID)
	}
	if !p.PINRequired || p.CardID == nil || *p.CardID != s.card.ID {
		t.Errorf("CheckAccess() = %+v", p)
	}

	if p, _ := s.perms.CheckAccess(ctx, s.user.ID, s.door.ID, monday.Add(3*time.Hour)); p != nil { //nolint:errcheck // nil result is the assertion
		t.Errorf("CheckAccess() at 13:00 = %s, want nil", p.ID)
	}
}

func TestSQLitePermissionRepository_CreateValidation(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	now := time.Now()

	bad := &Permission{UserID: s.user.ID, DoorID: s.door.ID, ValidFrom: now, ValidUntil: ptr(now.Add(-time.Hour))}
	if err := s.perms.Create(ctx, bad); !errors.Is(err, ErrInvalidValidity) {
		t.Errorf("Create(inverted window) error = %v, want ErrInvalidValidity", err)
	}

	badSchedule := &Permission{UserID: s.user.ID, DoorID: s.door.ID, ValidFrom: now, Schedule: &Schedule{StartTime: "nine"}}
	if err := s.perms.Create(ctx, badSchedule); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("Create(bad schedule) error = %v, want ErrInvalidSchedule", err)
	}
}

func TestEngine_WithSQLiteRepositories(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	monday := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	if err := s.perms.Create(ctx, &Permission{UserID: s.user.ID, DoorID: s.door.ID, ValidFrom: monday.Add(-time.Hour)}); err != nil {
		t.Fatalf("creating permission: %v", err)
	}

	now := monday
	e := NewEngine(Repositories{Cards: s.cards, Doors: s.doors, Users: s.users, Permissions: s.perms}, nil,
		EngineConfig{UnlockDuration: 5, PINSecurityLevel: SecurityHigh},
		WithClock(func() time.Time { return now }))

	dec, err := e.Validate(ctx, Request{CardID: "ABC123", DoorID: s.door.ID})
	if err != nil || !dec.Granted() {
		t.Fatalf("Validate() = %+v, %v, want granted", dec, err)
	}

	card, err := s.cards.GetByPhysicalID(ctx, "ABC123")
	if err != nil {
		t.Fatalf("GetByPhysicalID() error = %v", err)
	}
	if card.UsageCount != 1 {
		t.Errorf("UsageCount = %d, want 1", card.UsageCount)
	}

	// Tuesday is outside the door's schedule; the denial is counted.
	now = monday.Add(24 * time.Hour)
	if _, err := e.Validate(ctx, Request{CardID: "ABC123", DoorID: s.door.ID}); !errors.Is(err, ErrInvalidDoor) {
		t.Fatalf("Validate() on tuesday error = %v, want ErrInvalidDoor", err)
	}
	door, err := s.doors.GetByID(ctx, s.door.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if door.FailedAttempts != 1 {
		t.Errorf("FailedAttempts = %d, want 1", door.FailedAttempts)
	}
}
