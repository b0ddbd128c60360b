package access

import (
	"context"
	"time"
)

// CardRepository loads and persists cards. GetByPhysicalID returns
// ErrCardNotFound when no card matches.
type CardRepository interface {
	GetByPhysicalID(ctx context.Context, physicalID string) (*Card, error)
	Update(ctx context.Context, card *Card) error
}

// DoorRepository loads and persists doors. GetByID returns
// ErrDoorNotFound when the door does not exist.
type DoorRepository interface {
	GetByID(ctx context.Context, id string) (*Door, error)
	Update(ctx context.Context, door *Door) error
}

// UserRepository loads users. GetByID returns ErrUserNotFound when absent.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}

// PermissionRepository finds a permission letting userID through doorID
// at the given instant. The weekday used for schedule matching is taken
// from at, which is already in the site time zone. It returns nil, nil
// when nothing matches.
type PermissionRepository interface {
	CheckAccess(ctx context.Context, userID, doorID string, at time.Time) (*Permission, error)
}

// Repositories bundles the collaborators the engine reads and writes.
type Repositories struct {
	Cards       CardRepository
	Doors       DoorRepository
	Users       UserRepository
	Permissions PermissionRepository
}
