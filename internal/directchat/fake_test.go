package directchat

import (
	"context"
	"errors"
	"sync"

	"github.com/vovakirdan/directchat/internal/handle"
)

const testRealm = "example.org"

var testHandles = handle.NewMapper(testRealm)

func uid(h string) string { return testHandles.UserID(h) }

// fakeProvider is an in-memory Provider recording mutating calls.
type fakeProvider struct {
	mu sync.Mutex

	userID   string
	userErr  error
	users    map[string]bool
	rooms    []Room
	members  map[string][]Member
	registry Registry
	ignored  []string

	listErr   error
	leaveErrs map[string]error
	newRoomID string

	created   []string
	joined    []string
	left      []string
	ignores   []string
	unignores []string
}

func newFakeProvider(owner string) *fakeProvider {
	return &fakeProvider{
		userID:    uid(owner),
		users:     map[string]bool{uid(owner): true},
		members:   make(map[string][]Member),
		registry:  Registry{},
		leaveErrs: make(map[string]error),
		newRoomID: "!new:" + testRealm,
	}
}

func (f *fakeProvider) GetUserID(context.Context) (string, error) {
	return f.userID, f.userErr
}

func (f *fakeProvider) UserExists(_ context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[userID], nil
}

func (f *fakeProvider) CreateDirectChat(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, userID)
	return f.newRoomID, nil
}

func (f *fakeProvider) GetRoom(_ context.Context, roomID string) (*Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, room := range f.rooms {
		if room.ID == roomID {
			r := room
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeProvider) JoinDirectChat(_ context.Context, ownerID, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, ownerID+" "+roomID)
	return nil
}

func (f *fakeProvider) LeaveRoom(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, roomID)
	return f.leaveErrs[roomID]
}

func (f *fakeProvider) ListRooms(context.Context) ([]Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Room, len(f.rooms))
	copy(out, f.rooms)
	return out, nil
}

func (f *fakeProvider) GetMembers(_ context.Context, roomID string) ([]Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if members, ok := f.members[roomID]; ok {
		return members, nil
	}
	for _, room := range f.rooms {
		if room.ID == roomID {
			return room.Members, nil
		}
	}
	return nil, errors.New("no such room")
}

func (f *fakeProvider) GetDirectChatAccountData(context.Context) (Registry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(Registry, len(f.registry))
	for k, v := range f.registry {
		out[k] = append([]string(nil), v...)
	}
	return out, nil
}

func (f *fakeProvider) IgnoreHandle(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ignores = append(f.ignores, userID)
	return nil
}

func (f *fakeProvider) UnignoreHandle(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unignores = append(f.unignores, userID)
	return nil
}

func (f *fakeProvider) ListIgnoredHandles(context.Context) ([]string, error) {
	return f.ignored, nil
}

func member(h string, m Membership) Member {
	return Member{UserID: uid(h), DisplayName: h, Membership: m}
}

func directRoom(id string, own Membership, members ...Member) Room {
	return Room{ID: id, Membership: own, Members: members}
}
