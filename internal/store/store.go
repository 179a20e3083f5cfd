package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents a local account.
type User struct {
	ID           string // fully-qualified user ID, e.g. @alice:example.org
	Username     string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

// Room represents a room hosted by the local backend.
type Room struct {
	ID        string
	CreatorID string
	CreatedAt time.Time
}

// Membership is the stored membership state of a user in a room.
type Membership string

const (
	MembershipInvite Membership = "invite"
	MembershipJoin   Membership = "join"
	MembershipLeave  Membership = "leave"
	MembershipBan    Membership = "ban"
)

// RoomMember is one membership record.
type RoomMember struct {
	RoomID      string
	UserID      string
	DisplayName string
	Membership  Membership
	IsDirect    bool
	Sender      string // user who issued the last membership change
	UpdatedAt   time.Time
}

// Account data types.
const (
	AccountDataDirect = "m.direct"
)

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, user *User) (*User, error)

	// GetUserByID retrieves a user by fully-qualified ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// RoomStore handles rooms and membership records.
type RoomStore interface {
	// CreateDirectRoom creates a room with the creator joined and the invitee
	// invited, both records flagged as direct.
	CreateDirectRoom(ctx context.Context, creator, invitee *User) (*Room, error)

	// GetRoomByID retrieves a room by ID.
	GetRoomByID(ctx context.Context, id string) (*Room, error)

	// ListUserMemberships lists the user's own membership records.
	ListUserMemberships(ctx context.Context, userID string) ([]*RoomMember, error)

	// ListMembers lists all membership records of a room.
	ListMembers(ctx context.Context, roomID string) ([]*RoomMember, error)

	// GetMembership returns the user's membership record in a room.
	GetMembership(ctx context.Context, roomID, userID string) (*RoomMember, error)

	// SetMembership changes the membership of an existing record.
	SetMembership(ctx context.Context, roomID, userID, sender string, membership Membership) error
}

// AccountDataStore handles per-user JSON documents.
type AccountDataStore interface {
	// GetAccountData returns the raw content or ErrNotFound.
	GetAccountData(ctx context.Context, userID, dataType string) ([]byte, error)

	// SetAccountData replaces the content.
	SetAccountData(ctx context.Context, userID, dataType string, content []byte) error
}

// IgnoreStore handles per-user ignore lists.
type IgnoreStore interface {
	IgnoreUser(ctx context.Context, userID, ignoredID string) error
	UnignoreUser(ctx context.Context, userID, ignoredID string) error
	ListIgnoredUsers(ctx context.Context, userID string) ([]string, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	AccountDataStore
	IgnoreStore

	// Close closes the underlying database connection.
	Close() error
}
