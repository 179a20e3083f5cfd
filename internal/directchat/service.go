package directchat

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/directchat/internal/handle"
)

// Service provides direct chat lifecycle operations for one account.
type Service struct {
	provider Provider
	handles  handle.Mapper
	locker   Locker
	log      *zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLocker serializes Create calls per account through l.
func WithLocker(l Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

// WithLogger sets the logger used for cleanup reporting.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Service) {
		s.log = logger
	}
}

// NewService creates a Service over provider.
func NewService(provider Provider, handles handle.Mapper, opts ...Option) *Service {
	nop := zerolog.Nop()
	s := &Service{
		provider: provider,
		handles:  handles,
		locker:   noopLocker{},
		log:      &nop,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create starts a direct chat with the user behind handle and returns the
// new room ID.
//
// Existence check and creation are not atomic towards other processes;
// within one process they are serialized per account by the Locker.
func (s *Service) Create(ctx context.Context, h string) (string, error) {
	counterpartyID := s.handles.UserID(h)
	if err := s.requireUser(ctx, h, counterpartyID); err != nil {
		return "", err
	}

	ownerID, err := s.ownerID(ctx)
	if err != nil {
		return "", err
	}

	unlock := s.locker.Lock(ownerID)
	defer unlock()

	exists, err := s.directChatExists(ctx, ownerID, counterpartyID)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("with %s: %w", counterpartyID, ErrDirectChatExists)
	}

	roomID, err := s.provider.CreateDirectChat(ctx, counterpartyID)
	if err != nil {
		return "", fmt.Errorf("create direct chat: %w", err)
	}

	s.log.Info().Str("owner_id", ownerID).Str("counterparty_id", counterpartyID).Str("room_id", roomID).Msg("direct chat created")
	return roomID, nil
}

// AcceptInvitation joins the invited room.
func (s *Service) AcceptInvitation(ctx context.Context, roomID string) error {
	ownerID, err := s.ownerID(ctx)
	if err != nil {
		return err
	}

	if err := s.requireRoom(ctx, roomID); err != nil {
		return err
	}

	if err := s.provider.JoinDirectChat(ctx, ownerID, roomID); err != nil {
		return fmt.Errorf("join room %s: %w", roomID, err)
	}
	return nil
}

// DeclineInvitation leaves the invited room.
func (s *Service) DeclineInvitation(ctx context.Context, roomID string) error {
	if err := s.requireRoom(ctx, roomID); err != nil {
		return err
	}

	if err := s.provider.LeaveRoom(ctx, roomID); err != nil {
		return fmt.Errorf("leave room %s: %w", roomID, err)
	}
	return nil
}

// ListInvitations returns pending direct chat invitations.
func (s *Service) ListInvitations(ctx context.Context) ([]Invitation, error) {
	ownerID, err := s.ownerID(ctx)
	if err != nil {
		return nil, err
	}

	rooms, err := s.ResolveDirectChatRooms(ctx, ownerID, MembershipInvited)
	if err != nil {
		return nil, err
	}

	invitations := make([]Invitation, 0, len(rooms))
	for _, room := range rooms {
		inviter, ok := counterparty(room.Members, ownerID)
		if !ok {
			return nil, fmt.Errorf("room %s: %w", room.ID, ErrDirectChatMembership)
		}
		invitations = append(invitations, Invitation{
			ChatID:        room.ID,
			InviterHandle: s.handleOf(inviter),
		})
	}
	return invitations, nil
}

// ListJoined returns joined direct chats. Members are re-read per room
// since cached rooms may carry outdated display names.
func (s *Service) ListJoined(ctx context.Context) ([]DirectChat, error) {
	ownerID, err := s.ownerID(ctx)
	if err != nil {
		return nil, err
	}

	rooms, err := s.ResolveDirectChatRooms(ctx, ownerID, MembershipJoined)
	if err != nil {
		return nil, err
	}

	members := make([][]Member, len(rooms))
	g, gctx := errgroup.WithContext(ctx)
	for i, room := range rooms {
		g.Go(func() error {
			list, err := s.provider.GetMembers(gctx, room.ID)
			if err != nil {
				return fmt.Errorf("get members of %s: %w", room.ID, err)
			}
			members[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	chats := make([]DirectChat, 0, len(rooms))
	for i, room := range rooms {
		other, ok := counterparty(members[i], ownerID)
		if !ok {
			return nil, fmt.Errorf("room %s: %w", room.ID, ErrDirectChatMembership)
		}
		chats = append(chats, DirectChat{
			ChatID:      room.ID,
			OtherHandle: s.handleOf(other),
		})
	}
	return chats, nil
}

// BlockHandle adds the user behind handle to the ignore list.
func (s *Service) BlockHandle(ctx context.Context, h string) error {
	userID := s.handles.UserID(h)
	if err := s.requireUser(ctx, h, userID); err != nil {
		return err
	}

	if err := s.provider.IgnoreHandle(ctx, userID); err != nil {
		return fmt.Errorf("ignore %s: %w", userID, err)
	}
	return nil
}

// UnblockHandle removes the user behind handle from the ignore list.
func (s *Service) UnblockHandle(ctx context.Context, h string) error {
	userID := s.handles.UserID(h)
	if err := s.requireUser(ctx, h, userID); err != nil {
		return err
	}

	if err := s.provider.UnignoreHandle(ctx, userID); err != nil {
		return fmt.Errorf("unignore %s: %w", userID, err)
	}
	return nil
}

// ListBlockedHandles returns the provider's ignore list as is.
func (s *Service) ListBlockedHandles(ctx context.Context) ([]string, error) {
	ignored, err := s.provider.ListIgnoredHandles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ignored: %w", err)
	}
	return ignored, nil
}

func (s *Service) ownerID(ctx context.Context) (string, error) {
	ownerID, err := s.provider.GetUserID(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMembershipResolution, err)
	}
	if ownerID == "" {
		return "", ErrMembershipResolution
	}
	return ownerID, nil
}

func (s *Service) requireUser(ctx context.Context, h, userID string) error {
	exists, err := s.provider.UserExists(ctx, userID)
	if err != nil {
		return fmt.Errorf("check user %s: %w", userID, err)
	}
	if !exists {
		return fmt.Errorf("%s: %w", h, ErrHandleNotFound)
	}
	return nil
}

func (s *Service) requireRoom(ctx context.Context, roomID string) error {
	room, err := s.provider.GetRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("get room %s: %w", roomID, err)
	}
	if room == nil {
		return fmt.Errorf("%s: %w", roomID, ErrRoomNotFound)
	}
	return nil
}

func (s *Service) handleOf(m Member) Handle {
	h := s.handles.Handle(m.UserID)
	name := m.DisplayName
	if name == "" {
		name = h
	}
	return Handle{HandleID: h, Name: name}
}

// counterparty returns the first member other than ownerID.
func counterparty(members []Member, ownerID string) (Member, bool) {
	for _, m := range members {
		if m.UserID != ownerID {
			return m, true
		}
	}
	return Member{}, false
}
