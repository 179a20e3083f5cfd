// Package local implements directchat.Provider on top of the sqlite store,
// so the gateway can run without a homeserver.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/directchat/internal/directchat"
	"github.com/vovakirdan/directchat/internal/store"
)

// ErrNotInvited is returned when joining a room without a pending invite.
var ErrNotInvited = errors.New("not invited")

// Backend hands out per-account providers sharing one store.
type Backend struct {
	store store.Store
	// guards read-modify-write of account data per user
	locks *directchat.KeyedMutex
	log   *zerolog.Logger
}

// NewBackend creates a local backend over st.
func NewBackend(st store.Store, logger *zerolog.Logger) *Backend {
	return &Backend{
		store: st,
		locks: directchat.NewKeyedMutex(),
		log:   logger,
	}
}

// Provider returns a provider acting as userID.
func (b *Backend) Provider(userID string) *Provider {
	return &Provider{backend: b, userID: userID}
}

// Provider is the local directchat.Provider for one account.
type Provider struct {
	backend *Backend
	userID  string
}

var _ directchat.Provider = (*Provider)(nil)

func (p *Provider) store() store.Store { return p.backend.store }

// GetUserID returns the account's user ID.
func (p *Provider) GetUserID(context.Context) (string, error) {
	return p.userID, nil
}

// UserExists reports whether a local account exists for userID.
func (p *Provider) UserExists(ctx context.Context, userID string) (bool, error) {
	if _, err := p.store().GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get user: %w", err)
	}
	return true, nil
}

// CreateDirectChat creates a direct room and invites userID. Only the
// creator's registry gains the room; the invitee's is updated on join.
func (p *Provider) CreateDirectChat(ctx context.Context, userID string) (string, error) {
	creator, err := p.store().GetUserByID(ctx, p.userID)
	if err != nil {
		return "", fmt.Errorf("get creator: %w", err)
	}
	invitee, err := p.store().GetUserByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("get invitee: %w", err)
	}

	room, err := p.store().CreateDirectRoom(ctx, creator, invitee)
	if err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}

	if err := p.updateRegistry(ctx, func(reg directchat.Registry) {
		reg[p.userID] = appendUnique(reg[p.userID], room.ID)
	}); err != nil {
		return "", err
	}

	p.backend.log.Debug().
		Str("room_id", room.ID).
		Str("creator", p.userID).
		Str("invitee", userID).
		Msg("direct room created")

	return room.ID, nil
}

// GetRoom returns the room if the account is invited to or joined in it.
func (p *Provider) GetRoom(ctx context.Context, roomID string) (*directchat.Room, error) {
	own, err := p.store().GetMembership(ctx, roomID, p.userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get membership: %w", err)
	}
	if !visible(own.Membership) {
		return nil, nil
	}

	room, err := p.room(ctx, own)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// JoinDirectChat accepts a pending invite and records the room in
// ownerID's registry.
func (p *Provider) JoinDirectChat(ctx context.Context, ownerID, roomID string) error {
	own, err := p.store().GetMembership(ctx, roomID, p.userID)
	if err != nil {
		return fmt.Errorf("get membership: %w", err)
	}
	switch own.Membership {
	case store.MembershipInvite:
		if err := p.store().SetMembership(ctx, roomID, p.userID, p.userID, store.MembershipJoin); err != nil {
			return fmt.Errorf("join room: %w", err)
		}
	case store.MembershipJoin:
	default:
		return fmt.Errorf("join %s: %w", roomID, ErrNotInvited)
	}

	return p.updateRegistry(ctx, func(reg directchat.Registry) {
		reg[ownerID] = appendUnique(reg[ownerID], roomID)
	})
}

// LeaveRoom leaves the room and prunes it from the account's own registry.
// Other participants' registries are left untouched.
func (p *Provider) LeaveRoom(ctx context.Context, roomID string) error {
	if err := p.store().SetMembership(ctx, roomID, p.userID, p.userID, store.MembershipLeave); err != nil {
		return fmt.Errorf("leave room: %w", err)
	}

	return p.updateRegistry(ctx, func(reg directchat.Registry) {
		for owner, rooms := range reg {
			rooms = slices.DeleteFunc(rooms, func(id string) bool { return id == roomID })
			if len(rooms) == 0 {
				delete(reg, owner)
				continue
			}
			reg[owner] = rooms
		}
	})
}

// ListRooms returns the rooms the account is invited to or joined in.
func (p *Provider) ListRooms(ctx context.Context) ([]directchat.Room, error) {
	memberships, err := p.store().ListUserMemberships(ctx, p.userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}

	rooms := make([]directchat.Room, 0, len(memberships))
	for _, own := range memberships {
		if !visible(own.Membership) {
			continue
		}
		room, err := p.room(ctx, own)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// GetMembers returns the room's membership records.
func (p *Provider) GetMembers(ctx context.Context, roomID string) ([]directchat.Member, error) {
	records, err := p.store().ListMembers(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("room %s: %w", roomID, store.ErrNotFound)
	}
	return toMembers(records), nil
}

// GetDirectChatAccountData returns the account's registry.
func (p *Provider) GetDirectChatAccountData(ctx context.Context) (directchat.Registry, error) {
	return p.readRegistry(ctx)
}

// IgnoreHandle adds userID to the ignore list.
func (p *Provider) IgnoreHandle(ctx context.Context, userID string) error {
	return p.store().IgnoreUser(ctx, p.userID, userID)
}

// UnignoreHandle removes userID from the ignore list.
func (p *Provider) UnignoreHandle(ctx context.Context, userID string) error {
	return p.store().UnignoreUser(ctx, p.userID, userID)
}

// ListIgnoredHandles returns the ignore list.
func (p *Provider) ListIgnoredHandles(ctx context.Context) ([]string, error) {
	return p.store().ListIgnoredUsers(ctx, p.userID)
}

func (p *Provider) room(ctx context.Context, own *store.RoomMember) (directchat.Room, error) {
	records, err := p.store().ListMembers(ctx, own.RoomID)
	if err != nil {
		return directchat.Room{}, fmt.Errorf("list members of %s: %w", own.RoomID, err)
	}
	return directchat.Room{
		ID:         own.RoomID,
		Membership: directchat.ParseMembership(string(own.Membership)),
		Members:    toMembers(records),
	}, nil
}

func (p *Provider) readRegistry(ctx context.Context) (directchat.Registry, error) {
	raw, err := p.store().GetAccountData(ctx, p.userID, store.AccountDataDirect)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return directchat.Registry{}, nil
		}
		return nil, fmt.Errorf("get account data: %w", err)
	}

	reg := directchat.Registry{}
	if err := json.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", store.AccountDataDirect, err)
	}
	return reg, nil
}

func (p *Provider) updateRegistry(ctx context.Context, mutate func(directchat.Registry)) error {
	unlock := p.backend.locks.Lock(p.userID)
	defer unlock()

	reg, err := p.readRegistry(ctx)
	if err != nil {
		return err
	}
	mutate(reg)

	raw, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", store.AccountDataDirect, err)
	}
	if err := p.store().SetAccountData(ctx, p.userID, store.AccountDataDirect, raw); err != nil {
		return fmt.Errorf("set account data: %w", err)
	}
	return nil
}

func visible(m store.Membership) bool {
	return m == store.MembershipInvite || m == store.MembershipJoin
}

func toMembers(records []*store.RoomMember) []directchat.Member {
	members := make([]directchat.Member, 0, len(records))
	for _, r := range records {
		members = append(members, directchat.Member{
			UserID:      r.UserID,
			DisplayName: r.DisplayName,
			Membership:  directchat.ParseMembership(string(r.Membership)),
			IsDirect:    r.IsDirect,
		})
	}
	return members
}

func appendUnique(rooms []string, roomID string) []string {
	if slices.Contains(rooms, roomID) {
		return rooms
	}
	return append(rooms, roomID)
}
