// internal/room/store.go
package room

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sea314/gameserver/internal/models"
)

// ErrRoomNotFound is the absent-row observation. Absence of a room is a
// normal domain signal (the room dissolved), so callers branch on it with
// errors.Is rather than treating it as a fault.
var ErrRoomNotFound = errors.New("room not found")

// ErrUserNotFound indicates the credential's user id has no identity row.
var ErrUserNotFound = errors.New("user not found")

// Tx is the set of repository operations available inside one storage
// transaction. Every mutation made through a Tx is atomic: it commits only
// if the RunTx callback returns nil, and rolls back completely otherwise.
type Tx interface {
	InsertUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error

	CreateRoom(ctx context.Context, r *models.Room) error

	// GetRoom reads a room without locking; used by read-only paths.
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)

	// LockRoom reads a room under an exclusive row lock held until the
	// transaction ends. A concurrent locker blocks until this transaction
	// commits or rolls back; this is what serializes admission per room.
	// Returns ErrRoomNotFound when the row is absent, observed atomically
	// with the lock attempt.
	LockRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)

	// ListOpenRooms returns open rooms with spare capacity, optionally
	// filtered by live id (models.LiveIDNull means all tracks).
	ListOpenRooms(ctx context.Context, liveID int64) ([]models.RoomInfo, error)

	SetRoomStatus(ctx context.Context, id uuid.UUID, status models.RoomStatus) error
	IncrementJoined(ctx context.Context, id uuid.UUID) error
	DecrementJoined(ctx context.Context, id uuid.UUID) error
	DeleteRoom(ctx context.Context, id uuid.UUID) error

	InsertRoomUser(ctx context.Context, m *models.RoomMember) error

	// ListRoomUsers returns the room's members joined to their users,
	// host first, then join order.
	ListRoomUsers(ctx context.Context, roomID uuid.UUID) ([]models.RoomMember, error)

	DeleteRoomUser(ctx context.Context, roomID, userID uuid.UUID) error

	// CountUserMemberships counts the user's memberships across all live
	// rooms. Used by the post-insert consistency check in the join path.
	CountUserMemberships(ctx context.Context, userID uuid.UUID) (int, error)

	SetResult(ctx context.Context, roomID, userID uuid.UUID, score int64, judgeCounts []int) error
}

// Store provides transaction-scoped access to the room repository. RunTx
// begins a transaction, runs fn, and commits on nil or rolls back on error.
// The transaction is released on every exit path, so a row lock is never
// held past the callback.
type Store interface {
	RunTx(ctx context.Context, fn func(tx Tx) error) error
}
