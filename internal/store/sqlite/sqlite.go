package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/directchat/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New creates a new SQLite store.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema on an in-memory database.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Limits must be set before setup so ":memory:" keeps one database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser inserts a user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *store.User) (*store.User, error) {
	query := `
		INSERT INTO users (id, username, display_name, password_hash)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, user.ID, user.Username, user.DisplayName, user.PasswordHash); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.GetUserByID(ctx, user.ID)
}

// GetUserByID retrieves a user by fully-qualified ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	return s.getUser(ctx, "id", id)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return s.getUser(ctx, "username", username)
}

func (s *SQLiteStore) getUser(ctx context.Context, column, value string) (*store.User, error) {
	query := `
		SELECT id, username, display_name, password_hash, created_at
		FROM users
		WHERE ` + column + ` = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", value, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// ==== RoomStore implementation ====

// CreateDirectRoom creates a room with the creator joined and the invitee invited.
// The room ID lives on the creator's server: !<uuid>:<server>.
func (s *SQLiteStore) CreateDirectRoom(ctx context.Context, creator, invitee *store.User) (*store.Room, error) {
	_, server, ok := strings.Cut(creator.ID, ":")
	if !ok {
		return nil, fmt.Errorf("creator id %q has no server part", creator.ID)
	}
	roomID := "!" + uuid.NewString() + ":" + server

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	if _, err := tx.ExecContext(ctx, `INSERT INTO rooms (id, creator_id) VALUES (?, ?)`, roomID, creator.ID); err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}

	memberQuery := `
		INSERT INTO room_members (room_id, user_id, display_name, membership, is_direct, sender)
		VALUES (?, ?, ?, ?, 1, ?)
	`
	if _, err := tx.ExecContext(ctx, memberQuery, roomID, creator.ID, creator.DisplayName, store.MembershipJoin, creator.ID); err != nil {
		return nil, fmt.Errorf("add creator to members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, memberQuery, roomID, invitee.ID, invitee.DisplayName, store.MembershipInvite, creator.ID); err != nil {
		return nil, fmt.Errorf("invite member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return s.GetRoomByID(ctx, roomID)
}

// GetRoomByID retrieves a room by ID.
func (s *SQLiteStore) GetRoomByID(ctx context.Context, id string) (*store.Room, error) {
	query := `
		SELECT id, creator_id, created_at
		FROM rooms
		WHERE id = ?
	`
	var room store.Room
	err := s.db.QueryRowContext(ctx, query, id).Scan(&room.ID, &room.CreatorID, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	return &room, nil
}

const memberColumns = `room_id, user_id, display_name, membership, is_direct, sender, updated_at`

// ListUserMemberships lists the user's own membership records, oldest room first.
func (s *SQLiteStore) ListUserMemberships(ctx context.Context, userID string) ([]*store.RoomMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM room_members
		WHERE user_id = ?
		ORDER BY rowid ASC
	`
	return s.queryMembers(ctx, query, userID)
}

// ListMembers lists all membership records of a room.
func (s *SQLiteStore) ListMembers(ctx context.Context, roomID string) ([]*store.RoomMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM room_members
		WHERE room_id = ?
		ORDER BY rowid ASC
	`
	return s.queryMembers(ctx, query, roomID)
}

// GetMembership returns the user's record in a room.
func (s *SQLiteStore) GetMembership(ctx context.Context, roomID, userID string) (*store.RoomMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM room_members
		WHERE room_id = ? AND user_id = ?
	`
	m, err := scanMember(s.db.QueryRowContext(ctx, query, roomID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("membership of %s in %s: %w", userID, roomID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query membership: %w", err)
	}
	return m, nil
}

// SetMembership changes the membership of an existing record.
func (s *SQLiteStore) SetMembership(ctx context.Context, roomID, userID, sender string, membership store.Membership) error {
	query := `
		UPDATE room_members
		SET membership = ?, sender = ?, updated_at = CURRENT_TIMESTAMP
		WHERE room_id = ? AND user_id = ?
	`
	result, err := s.db.ExecContext(ctx, query, membership, sender, roomID, userID)
	if err != nil {
		return fmt.Errorf("update membership: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("membership of %s in %s: %w", userID, roomID, store.ErrNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*store.RoomMember, error) {
	var m store.RoomMember
	if err := row.Scan(&m.RoomID, &m.UserID, &m.DisplayName, &m.Membership, &m.IsDirect, &m.Sender, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLiteStore) queryMembers(ctx context.Context, query string, arg string) ([]*store.RoomMember, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []*store.RoomMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}

	return members, nil
}

// ==== AccountDataStore implementation ====

// GetAccountData returns the raw content of an account data document.
func (s *SQLiteStore) GetAccountData(ctx context.Context, userID, dataType string) ([]byte, error) {
	query := `
		SELECT content
		FROM account_data
		WHERE user_id = ? AND type = ?
	`
	var content []byte
	if err := s.db.QueryRowContext(ctx, query, userID, dataType).Scan(&content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account data %s: %w", dataType, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query account data: %w", err)
	}
	return content, nil
}

// SetAccountData replaces an account data document.
func (s *SQLiteStore) SetAccountData(ctx context.Context, userID, dataType string, content []byte) error {
	query := `
		INSERT INTO account_data (user_id, type, content)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, type) DO UPDATE SET content = excluded.content, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, userID, dataType, content); err != nil {
		return fmt.Errorf("upsert account data: %w", err)
	}
	return nil
}

// ==== IgnoreStore implementation ====

// IgnoreUser adds ignoredID to the user's ignore list. Repeated calls are no-ops.
func (s *SQLiteStore) IgnoreUser(ctx context.Context, userID, ignoredID string) error {
	query := `
		INSERT OR IGNORE INTO ignored_users (user_id, ignored_id)
		VALUES (?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, userID, ignoredID); err != nil {
		return fmt.Errorf("insert ignored user: %w", err)
	}
	return nil
}

// UnignoreUser removes ignoredID from the user's ignore list.
func (s *SQLiteStore) UnignoreUser(ctx context.Context, userID, ignoredID string) error {
	query := `DELETE FROM ignored_users WHERE user_id = ? AND ignored_id = ?`
	if _, err := s.db.ExecContext(ctx, query, userID, ignoredID); err != nil {
		return fmt.Errorf("delete ignored user: %w", err)
	}
	return nil
}

// ListIgnoredUsers lists the user's ignore list in insertion order.
func (s *SQLiteStore) ListIgnoredUsers(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT ignored_id
		FROM ignored_users
		WHERE user_id = ?
		ORDER BY rowid ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query ignored users: %w", err)
	}
	defer rows.Close()

	ignored := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ignored user: %w", err)
		}
		ignored = append(ignored, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ignored users: %w", err)
	}

	return ignored, nil
}
