package access

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// SQLite implementations of the engine's collaborators. Timestamps are
// stored as RFC3339 TEXT in UTC.

const cardColumns = `id, physical_id, user_id, card_type, status, valid_from, valid_until,
	usage_count, last_used, created_at, updated_at`

// SQLiteCardRepository stores cards in the cards table.
type SQLiteCardRepository struct {
	db *sql.DB
}

// NewCardRepository creates a SQLite-backed card repository.
func NewCardRepository(db *sql.DB) *SQLiteCardRepository {
	return &SQLiteCardRepository{db: db}
}

// Create inserts a card. The ID is generated if empty.
func (r *SQLiteCardRepository) Create(ctx context.Context, c *Card) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = "card-" + uuid.NewString()[:8]
	}
	if c.Status == "" {
		c.Status = CardActive
	}
	now := stamp(&c.CreatedAt)
	c.UpdatedAt = c.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cards (`+cardColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.PhysicalID, c.UserID, string(c.Type), string(c.Status),
		formatTime(c.ValidFrom), nullTime(c.ValidUntil),
		c.UsageCount, nullTime(c.LastUsed), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCardExists
		}
		return fmt.Errorf("creating card: %w", err)
	}
	return nil
}

// GetByPhysicalID retrieves the card with the given reader id.
func (r *SQLiteCardRepository) GetByPhysicalID(ctx context.Context, physicalID string) (*Card, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE physical_id = ?`, physicalID)
	return scanCard(row)
}

// GetByID retrieves a card by its internal id.
func (r *SQLiteCardRepository) GetByID(ctx context.Context, id string) (*Card, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	return scanCard(row)
}

// Update writes the card's mutable fields.
func (r *SQLiteCardRepository) Update(ctx context.Context, c *Card) error {
	if err := c.Validate(); err != nil {
		return err
	}
	now := stamp(&c.UpdatedAt)

	result, err := r.db.ExecContext(ctx,
		`UPDATE cards SET status = ?, valid_from = ?, valid_until = ?, usage_count = ?, last_used = ?, updated_at = ?
		 WHERE id = ?`,
		string(c.Status), formatTime(c.ValidFrom), nullTime(c.ValidUntil),
		c.UsageCount, nullTime(c.LastUsed), now, c.ID,
	)
	if err != nil {
		return fmt.Errorf("updating card: %w", err)
	}
	return requireRow(result, ErrCardNotFound)
}

func scanCard(row *sql.Row) (*Card, error) {
	var c Card
	var cardType, status, validFrom, createdAt, updatedAt string
	var validUntil, lastUsed sql.NullString

	err := row.Scan(&c.ID, &c.PhysicalID, &c.UserID, &cardType, &status, &validFrom, &validUntil,
		&c.UsageCount, &lastUsed, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning card: %w", err)
	}

	c.Type = CardType(cardType)
	c.Status = CardStatus(status)
	if err := parseTimes(
		timeField{validFrom, &c.ValidFrom},
		timeField{createdAt, &c.CreatedAt},
		timeField{updatedAt, &c.UpdatedAt},
	); err != nil {
		return nil, fmt.Errorf("card %s: %w", c.ID, err)
	}
	if c.ValidUntil, err = parseNullTime(validUntil); err != nil {
		return nil, fmt.Errorf("card %s: %w", c.ID, err)
	}
	if c.LastUsed, err = parseNullTime(lastUsed); err != nil {
		return nil, fmt.Errorf("card %s: %w", c.ID, err)
	}
	return &c, nil
}

const doorColumns = `id, name, location, door_type, security_level, status, schedule, requires_pin,
	max_attempts, lockout_duration, failed_attempts, locked_until, created_at, updated_at`

// SQLiteDoorRepository stores doors in the doors table.
type SQLiteDoorRepository struct {
	db *sql.DB
}

// NewDoorRepository creates a SQLite-backed door repository.
func NewDoorRepository(db *sql.DB) *SQLiteDoorRepository {
	return &SQLiteDoorRepository{db: db}
}

// Create inserts a door. The ID is generated if empty.
func (r *SQLiteDoorRepository) Create(ctx context.Context, d *Door) error {
	if err := d.Schedule.Validate(); err != nil {
		return err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = DoorActive
	}
	if d.SecurityLevel == "" {
		d.SecurityLevel = SecurityLow
	}
	if d.DoorType == "" {
		d.DoorType = "standard"
	}
	schedule, err := marshalSchedule(d.Schedule)
	if err != nil {
		return err
	}
	now := stamp(&d.CreatedAt)
	d.UpdatedAt = d.CreatedAt

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO doors (`+doorColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.Location, d.DoorType, string(d.SecurityLevel), string(d.Status), schedule,
		boolToInt(d.RequiresPIN), d.MaxAttempts, d.LockoutDuration, d.FailedAttempts,
		nullTime(d.LockedUntil), now, now,
	)
	if err != nil {
		return fmt.Errorf("creating door: %w", err)
	}
	return nil
}

// GetByID retrieves a door.
func (r *SQLiteDoorRepository) GetByID(ctx context.Context, id string) (*Door, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+doorColumns+` FROM doors WHERE id = ?`, id)
	return scanDoor(row)
}

// Update writes every mutable door field, including the failure counter
// and lockout.
func (r *SQLiteDoorRepository) Update(ctx context.Context, d *Door) error {
	schedule, err := marshalSchedule(d.Schedule)
	if err != nil {
		return err
	}
	now := stamp(&d.UpdatedAt)

	result, err := r.db.ExecContext(ctx,
		`UPDATE doors SET name = ?, location = ?, door_type = ?, security_level = ?, status = ?, schedule = ?,
		 requires_pin = ?, max_attempts = ?, lockout_duration = ?, failed_attempts = ?, locked_until = ?, updated_at = ?
		 WHERE id = ?`,
		d.Name, d.Location, d.DoorType, string(d.SecurityLevel), string(d.Status), schedule,
		boolToInt(d.RequiresPIN), d.MaxAttempts, d.LockoutDuration, d.FailedAttempts,
		nullTime(d.LockedUntil), now, d.ID,
	)
	if err != nil {
		return fmt.Errorf("updating door: %w", err)
	}
	return requireRow(result, ErrDoorNotFound)
}

// Transition applies an operator status change and persists it.
func (r *SQLiteDoorRepository) Transition(ctx context.Context, id string, t DoorTransition) (*Door, error) {
	d, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := d.Apply(t); err != nil {
		return nil, err
	}
	if err := r.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func scanDoor(row *sql.Row) (*Door, error) {
	var d Door
	var level, status, createdAt, updatedAt string
	var schedule, lockedUntil sql.NullString
	var requiresPIN int

	err := row.Scan(&d.ID, &d.Name, &d.Location, &d.DoorType, &level, &status, &schedule, &requiresPIN,
		&d.MaxAttempts, &d.LockoutDuration, &d.FailedAttempts, &lockedUntil, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDoorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning door: %w", err)
	}

	d.SecurityLevel = SecurityLevel(level)
	d.Status = DoorStatus(status)
	d.RequiresPIN = requiresPIN != 0
	if err := parseTimes(timeField{createdAt, &d.CreatedAt}, timeField{updatedAt, &d.UpdatedAt}); err != nil {
		return nil, fmt.Errorf("door %s: %w", d.ID, err)
	}
	if d.LockedUntil, err = parseNullTime(lockedUntil); err != nil {
		return nil, fmt.Errorf("door %s: %w", d.ID, err)
	}
	if d.Schedule, err = unmarshalSchedule(nullPtr(schedule)); err != nil {
		return nil, fmt.Errorf("door %s: %w", d.ID, err)
	}
	return &d, nil
}

// SQLiteUserRepository stores users in the users table.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

// Create inserts a user. The ID is generated if empty.
func (r *SQLiteUserRepository) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = "usr-" + uuid.NewString()[:8]
	}
	if u.Status == "" {
		u.Status = UserActive
	}
	if u.Roles == nil {
		u.Roles = []string{}
	}
	roles, err := json.Marshal(u.Roles)
	if err != nil {
		return fmt.Errorf("marshalling roles: %w", err)
	}
	now := stamp(&u.CreatedAt)
	u.UpdatedAt = u.CreatedAt

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, roles, status, pin_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, string(roles), string(u.Status), nullString(u.PINHash), now, now,
	)
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// GetByID retrieves a user, including the PIN hash.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	var u User
	var roles, status, createdAt, updatedAt string
	var pinHash sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, roles, status, pin_hash, created_at, updated_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &roles, &status, &pinHash, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.Status = UserStatus(status)
	u.PINHash = pinHash.String
	if err := json.Unmarshal([]byte(roles), &u.Roles); err != nil {
		return nil, fmt.Errorf("user %s roles: %w", u.ID, err)
	}
	if err := parseTimes(timeField{createdAt, &u.CreatedAt}, timeField{updatedAt, &u.UpdatedAt}); err != nil {
		return nil, fmt.Errorf("user %s: %w", u.ID, err)
	}
	return &u, nil
}

// SQLitePermissionRepository stores permissions in the permissions table.
type SQLitePermissionRepository struct {
	db *sql.DB
}

// NewPermissionRepository creates a SQLite-backed permission repository.
func NewPermissionRepository(db *sql.DB) *SQLitePermissionRepository {
	return &SQLitePermissionRepository{db: db}
}

// Create inserts a permission. The ID is generated if empty.
func (r *SQLitePermissionRepository) Create(ctx context.Context, p *Permission) error {
	if p.ValidUntil != nil && p.ValidFrom.After(*p.ValidUntil) {
		return ErrInvalidValidity
	}
	if err := p.Schedule.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = "perm-" + uuid.NewString()[:8]
	}
	if p.Status == "" {
		p.Status = PermissionActive
	}
	schedule, err := marshalSchedule(p.Schedule)
	if err != nil {
		return err
	}
	now := stamp(&p.CreatedAt)
	p.UpdatedAt = p.CreatedAt

	var cardID sql.NullString
	if p.CardID != nil {
		cardID = nullString(*p.CardID)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO permissions (id, user_id, door_id, card_id, status, valid_from, valid_until, schedule,
		 pin_required, created_by, last_used, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.DoorID, cardID, string(p.Status), formatTime(p.ValidFrom), nullTime(p.ValidUntil),
		schedule, boolToInt(p.PINRequired), p.CreatedBy, nullTime(p.LastUsed), now, now,
	)
	if err != nil {
		return fmt.Errorf("creating permission: %w", err)
	}
	return nil
}

// CheckAccess returns the oldest active permission for (userID, doorID)
// whose validity window and schedule admit at, or nil when none does.
func (r *SQLitePermissionRepository) CheckAccess(ctx context.Context, userID, doorID string, at time.Time) (*Permission, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, door_id, card_id, status, valid_from, valid_until, schedule,
		 pin_required, created_by, last_used, created_at, updated_at
		 FROM permissions WHERE user_id = ? AND door_id = ? AND status = ?
		 ORDER BY created_at ASC`,
		userID, doorID, string(PermissionActive),
	)
	if err != nil {
		return nil, fmt.Errorf("querying permissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		if p.Allows(at) {
			return p, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating permissions: %w", err)
	}
	return nil, nil
}

func scanPermission(rows *sql.Rows) (*Permission, error) {
	var p Permission
	var status, validFrom, createdAt, updatedAt string
	var cardID, validUntil, schedule, lastUsed sql.NullString
	var pinRequired int

	if err := rows.Scan(&p.ID, &p.UserID, &p.DoorID, &cardID, &status, &validFrom, &validUntil, &schedule,
		&pinRequired, &p.CreatedBy, &lastUsed, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scanning permission: %w", err)
	}

	var err error
	p.Status = PermissionStatus(status)
	p.PINRequired = pinRequired != 0
	p.CardID = nullPtr(cardID)
	if err = parseTimes(
		timeField{validFrom, &p.ValidFrom},
		timeField{createdAt, &p.CreatedAt},
		timeField{updatedAt, &p.UpdatedAt},
	); err != nil {
		return nil, fmt.Errorf("permission %s: %w", p.ID, err)
	}
	if p.ValidUntil, err = parseNullTime(validUntil); err != nil {
		return nil, fmt.Errorf("permission %s: %w", p.ID, err)
	}
	if p.LastUsed, err = parseNullTime(lastUsed); err != nil {
		return nil, fmt.Errorf("permission %s: %w", p.ID, err)
	}
	if p.Schedule, err = unmarshalSchedule(nullPtr(schedule)); err != nil {
		return nil, fmt.Errorf("permission %s: %w", p.ID, err)
	}
	return &p, nil
}

// Helpers

// stamp sets *t to the current second in UTC and returns it formatted.
func stamp(t *time.Time) string {
	now := time.Now().UTC().Truncate(time.Second)
	*t = now
	return formatTime(now)
}

// storedTimeLayout keeps nanoseconds at a fixed width so stored values
// round-trip exactly and still sort as text.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil, fmt.Errorf("parsing time %q: %w", ns.String, err)
	}
	return &t, nil
}

type timeField struct {
	raw string
	dst *time.Time
}

func parseTimes(fields ...timeField) error {
	for _, f := range fields {
		t, err := time.Parse(time.RFC3339, f.raw)
		if err != nil {
			return fmt.Errorf("parsing time %q: %w", f.raw, err)
		}
		*f.dst = t
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(result sql.Result, notFound error) error {
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if n == 0 {
		return notFound
	}
	return nil
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
