// Package matrix implements directchat.Provider against a Matrix homeserver
// using the caller's own access token.
package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/vovakirdan/directchat/internal/directchat"
)

// Account data event types.
const (
	eventTypeDirect      = "m.direct"
	eventTypeIgnoredList = "m.ignored_user_list"
)

// syncFilter restricts /sync to membership state. Timeline is kept small
// but scanned, since recent membership changes may only appear there.
const syncFilter = `{"presence":{"not_types":["*"]},"account_data":{"not_types":["*"]},` +
	`"room":{"state":{"types":["m.room.member"]},"timeline":{"types":["m.room.member"],"limit":10},` +
	`"ephemeral":{"not_types":["*"]},"account_data":{"not_types":["*"]}}}`

// memberContent is the subset of m.room.member content the engine uses.
type memberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
	IsDirect    bool   `json:"is_direct,omitempty"`
}

type ignoredUserList struct {
	IgnoredUsers map[string]struct{} `json:"ignored_users"`
}

// Backend creates per-account providers for one homeserver.
type Backend struct {
	homeserverURL string
	// serializes account data read-modify-write per account
	locks *directchat.KeyedMutex
	log   *zerolog.Logger
}

// NewBackend creates a Matrix backend for homeserverURL.
func NewBackend(homeserverURL string, logger *zerolog.Logger) *Backend {
	return &Backend{
		homeserverURL: homeserverURL,
		locks:         directchat.NewKeyedMutex(),
		log:           logger,
	}
}

// Provider authenticates accessToken with whoami and returns a provider
// acting as that account.
func (b *Backend) Provider(ctx context.Context, accessToken string) (*Provider, error) {
	cli, err := mautrix.NewClient(b.homeserverURL, "", accessToken)
	if err != nil {
		return nil, fmt.Errorf("create matrix client: %w", err)
	}
	cli.Log = b.log.With().Str("component", "matrix").Logger()

	whoami, err := cli.Whoami(ctx)
	if err != nil {
		return nil, fmt.Errorf("whoami: %w", err)
	}
	cli.UserID = whoami.UserID

	return &Provider{backend: b, client: cli}, nil
}

// Provider is the Matrix directchat.Provider for one account.
type Provider struct {
	backend *Backend
	client  *mautrix.Client
}

var _ directchat.Provider = (*Provider)(nil)

// GetUserID returns the account's user ID.
func (p *Provider) GetUserID(context.Context) (string, error) {
	return p.client.UserID.String(), nil
}

// UserExists looks up the user's profile. M_NOT_FOUND means unknown.
func (p *Provider) UserExists(ctx context.Context, userID string) (bool, error) {
	if _, err := p.client.GetProfile(ctx, id.UserID(userID)); err != nil {
		if errors.Is(err, mautrix.MNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get profile: %w", err)
	}
	return true, nil
}

// CreateDirectChat creates a trusted private chat with userID and records
// it in m.direct.
func (p *Provider) CreateDirectChat(ctx context.Context, userID string) (string, error) {
	resp, err := p.client.CreateRoom(ctx, &mautrix.ReqCreateRoom{
		Preset:   "trusted_private_chat",
		Invite:   []id.UserID{id.UserID(userID)},
		IsDirect: true,
	})
	if err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	roomID := resp.RoomID.String()

	if err := p.updateDirect(ctx, func(direct map[string][]string) bool {
		if slices.Contains(direct[userID], roomID) {
			return false
		}
		direct[userID] = append(direct[userID], roomID)
		return true
	}); err != nil {
		return "", err
	}
	return roomID, nil
}

// GetRoom returns the room if it appears in the account's joined or
// invited rooms.
func (p *Provider) GetRoom(ctx context.Context, roomID string) (*directchat.Room, error) {
	rooms, err := p.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rooms {
		if rooms[i].ID == roomID {
			return &rooms[i], nil
		}
	}
	return nil, nil
}

// JoinDirectChat joins the room and records it in m.direct under the
// other participant.
func (p *Provider) JoinDirectChat(ctx context.Context, ownerID, roomID string) error {
	if _, err := p.client.JoinRoomByID(ctx, id.RoomID(roomID)); err != nil {
		return fmt.Errorf("join room: %w", err)
	}

	members, err := p.GetMembers(ctx, roomID)
	if err != nil {
		return err
	}
	var other string
	for _, m := range members {
		if m.UserID != ownerID {
			other = m.UserID
			break
		}
	}
	if other == "" {
		return fmt.Errorf("room %s: %w", roomID, directchat.ErrDirectChatMembership)
	}

	return p.updateDirect(ctx, func(direct map[string][]string) bool {
		if slices.Contains(direct[other], roomID) {
			return false
		}
		direct[other] = append(direct[other], roomID)
		return true
	})
}

// LeaveRoom leaves the room and drops it from m.direct.
func (p *Provider) LeaveRoom(ctx context.Context, roomID string) error {
	if _, err := p.client.LeaveRoom(ctx, id.RoomID(roomID)); err != nil {
		return fmt.Errorf("leave room: %w", err)
	}

	return p.updateDirect(ctx, func(direct map[string][]string) bool {
		changed := false
		for userID, rooms := range direct {
			pruned := slices.DeleteFunc(slices.Clone(rooms), func(r string) bool { return r == roomID })
			if len(pruned) == len(rooms) {
				continue
			}
			changed = true
			if len(pruned) == 0 {
				delete(direct, userID)
				continue
			}
			direct[userID] = pruned
		}
		return changed
	})
}

// ListRooms runs a full-state sync filtered to membership events.
func (p *Provider) ListRooms(ctx context.Context) ([]directchat.Room, error) {
	resp, err := p.client.SyncRequest(ctx, 0, "", syncFilter, true, event.PresenceOffline)
	if err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}

	rooms := make([]directchat.Room, 0, len(resp.Rooms.Join)+len(resp.Rooms.Invite))
	for roomID, joined := range resp.Rooms.Join {
		events := append(slices.Clone(joined.State.Events), joined.Timeline.Events...)
		rooms = append(rooms, directchat.Room{
			ID:         roomID.String(),
			Membership: directchat.MembershipJoined,
			Members:    membersFromEvents(events),
		})
	}
	for roomID, invited := range resp.Rooms.Invite {
		rooms = append(rooms, directchat.Room{
			ID:         roomID.String(),
			Membership: directchat.MembershipInvited,
			Members:    membersFromEvents(invited.State.Events),
		})
	}
	return rooms, nil
}

// GetMembers reads the room's member list.
func (p *Provider) GetMembers(ctx context.Context, roomID string) ([]directchat.Member, error) {
	resp, err := p.client.Members(ctx, id.RoomID(roomID))
	if err != nil {
		return nil, fmt.Errorf("get members: %w", err)
	}
	return membersFromEvents(resp.Chunk), nil
}

// GetDirectChatAccountData reads m.direct. Matrix keys it by the other
// participant; the engine wants the account's own view, so every listed
// room is placed under the account's ID.
func (p *Provider) GetDirectChatAccountData(ctx context.Context) (directchat.Registry, error) {
	direct, err := p.readDirect(ctx)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(direct))
	for userID := range direct {
		keys = append(keys, userID)
	}
	sort.Strings(keys)

	var rooms []string
	for _, userID := range keys {
		for _, roomID := range direct[userID] {
			if !slices.Contains(rooms, roomID) {
				rooms = append(rooms, roomID)
			}
		}
	}

	owner := p.client.UserID.String()
	return directchat.Registry{owner: rooms}, nil
}

// IgnoreHandle adds userID to m.ignored_user_list.
func (p *Provider) IgnoreHandle(ctx context.Context, userID string) error {
	return p.updateIgnored(ctx, func(list *ignoredUserList) bool {
		if _, ok := list.IgnoredUsers[userID]; ok {
			return false
		}
		list.IgnoredUsers[userID] = struct{}{}
		return true
	})
}

// UnignoreHandle removes userID from m.ignored_user_list.
func (p *Provider) UnignoreHandle(ctx context.Context, userID string) error {
	return p.updateIgnored(ctx, func(list *ignoredUserList) bool {
		if _, ok := list.IgnoredUsers[userID]; !ok {
			return false
		}
		delete(list.IgnoredUsers, userID)
		return true
	})
}

// ListIgnoredHandles returns m.ignored_user_list sorted by user ID.
func (p *Provider) ListIgnoredHandles(ctx context.Context) ([]string, error) {
	list, err := p.readIgnored(ctx)
	if err != nil {
		return nil, err
	}

	ignored := make([]string, 0, len(list.IgnoredUsers))
	for userID := range list.IgnoredUsers {
		ignored = append(ignored, userID)
	}
	sort.Strings(ignored)
	return ignored, nil
}

func (p *Provider) readDirect(ctx context.Context) (map[string][]string, error) {
	direct := map[string][]string{}
	if err := p.client.GetAccountData(ctx, eventTypeDirect, &direct); err != nil {
		if errors.Is(err, mautrix.MNotFound) {
			return map[string][]string{}, nil
		}
		return nil, fmt.Errorf("get %s: %w", eventTypeDirect, err)
	}
	return direct, nil
}

func (p *Provider) updateDirect(ctx context.Context, mutate func(map[string][]string) bool) error {
	unlock := p.backend.locks.Lock(p.client.UserID.String() + " " + eventTypeDirect)
	defer unlock()

	direct, err := p.readDirect(ctx)
	if err != nil {
		return err
	}
	if !mutate(direct) {
		return nil
	}
	if err := p.client.SetAccountData(ctx, eventTypeDirect, direct); err != nil {
		return fmt.Errorf("set %s: %w", eventTypeDirect, err)
	}
	return nil
}

func (p *Provider) readIgnored(ctx context.Context) (*ignoredUserList, error) {
	list := &ignoredUserList{}
	if err := p.client.GetAccountData(ctx, eventTypeIgnoredList, list); err != nil && !errors.Is(err, mautrix.MNotFound) {
		return nil, fmt.Errorf("get %s: %w", eventTypeIgnoredList, err)
	}
	if list.IgnoredUsers == nil {
		list.IgnoredUsers = map[string]struct{}{}
	}
	return list, nil
}

func (p *Provider) updateIgnored(ctx context.Context, mutate func(*ignoredUserList) bool) error {
	unlock := p.backend.locks.Lock(p.client.UserID.String() + " " + eventTypeIgnoredList)
	defer unlock()

	list, err := p.readIgnored(ctx)
	if err != nil {
		return err
	}
	if !mutate(list) {
		return nil
	}
	if err := p.client.SetAccountData(ctx, eventTypeIgnoredList, list); err != nil {
		return fmt.Errorf("set %s: %w", eventTypeIgnoredList, err)
	}
	return nil
}

// membersFromEvents folds m.room.member events into one record per user.
// Later events win.
func membersFromEvents(events []*event.Event) []directchat.Member {
	var members []directchat.Member
	index := map[string]int{}
	for _, evt := range events {
		if evt == nil || evt.Type.Type != event.StateMember.Type || evt.StateKey == nil {
			continue
		}
		var content memberContent
		if err := json.Unmarshal(evt.Content.VeryRaw, &content); err != nil {
			continue
		}

		m := directchat.Member{
			UserID:      *evt.StateKey,
			DisplayName: content.DisplayName,
			Membership:  directchat.ParseMembership(content.Membership),
			IsDirect:    content.IsDirect,
		}
		if i, ok := index[m.UserID]; ok {
			members[i] = m
			continue
		}
		index[m.UserID] = len(members)
		members = append(members, m)
	}
	return members
}

// Authenticate implements the HTTP layer's Authenticator by treating the
// bearer token as a Matrix access token.
func (b *Backend) Authenticate(ctx context.Context, token string) (directchat.Provider, error) {
	p, err := b.Provider(ctx, token)
	if err != nil {
		return nil, err
	}
	return p, nil
}
