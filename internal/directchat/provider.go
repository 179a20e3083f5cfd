package directchat

import "context"

// Provider is the room/membership backend the engine runs against. All
// calls act on behalf of one account.
type Provider interface {
	// GetUserID returns the current account's fully-qualified user ID.
	GetUserID(ctx context.Context) (string, error)

	// UserExists reports whether a fully-qualified user ID is known.
	UserExists(ctx context.Context, userID string) (bool, error)

	// CreateDirectChat creates a room flagged as a direct chat and invites
	// userID. Returns the new room ID.
	CreateDirectChat(ctx context.Context, userID string) (string, error)

	// GetRoom returns the room, or nil if the account cannot see it.
	GetRoom(ctx context.Context, roomID string) (*Room, error)

	// JoinDirectChat joins ownerID to the room.
	JoinDirectChat(ctx context.Context, ownerID, roomID string) error

	// LeaveRoom leaves the room.
	LeaveRoom(ctx context.Context, roomID string) error

	// ListRooms returns every room the account can see.
	ListRooms(ctx context.Context) ([]Room, error)

	// GetMembers returns a fresh read of the room's membership records.
	GetMembers(ctx context.Context, roomID string) ([]Member, error)

	// GetDirectChatAccountData returns the direct chat registry.
	GetDirectChatAccountData(ctx context.Context) (Registry, error)

	// IgnoreHandle adds userID to the account's ignore list.
	IgnoreHandle(ctx context.Context, userID string) error

	// UnignoreHandle removes userID from the account's ignore list.
	UnignoreHandle(ctx context.Context, userID string) error

	// ListIgnoredHandles returns the account's ignore list.
	ListIgnoredHandles(ctx context.Context) ([]string, error)
}
