package directchat

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"
)

// ResolveDirectChatRooms returns the rooms that are direct chats for
// ownerID in the given membership state (invited or joined).
//
// Registry-listed rooms where some participant has left are stale: they
// are dropped from the working copy of the registry and left, one at a
// time in discovery order. Every stale room is attempted; any leave
// failure is returned after the pass. When no registry-listed room
// qualifies, rooms carrying a member with the is_direct flag are used
// instead; rooms just left are no longer in the target state and are not
// considered. The returned order is unspecified.
func (s *Service) ResolveDirectChatRooms(ctx context.Context, ownerID string, state Membership) ([]Room, error) {
	if ownerID == "" {
		return nil, ErrMembershipResolution
	}

	rooms, registry, err := s.fetchRoomsAndRegistry(ctx)
	if err != nil {
		return nil, err
	}

	listed := registry.Rooms(ownerID)
	qualifying, stale := partitionRooms(rooms, listed, state)

	if err := s.leaveStaleRooms(ctx, listed, stale); err != nil {
		return nil, err
	}

	if len(qualifying) == 0 {
		qualifying = flaggedRooms(rooms, state, stale)
		if len(qualifying) > 0 {
			s.log.Debug().
				Str("owner_id", ownerID).
				Str("state", state.String()).
				Int("room_count", len(qualifying)).
				Msg("registry has no direct chats yet, using is_direct flag")
		}
	}

	return qualifying, nil
}

// DirectChatExists reports whether a registry-listed room exists in which
// counterpartyID is joined or invited. It does not clean up stale rooms
// and does not fall back to the is_direct flag.
func (s *Service) DirectChatExists(ctx context.Context, counterpartyID string) (bool, error) {
	ownerID, err := s.ownerID(ctx)
	if err != nil {
		return false, err
	}
	return s.directChatExists(ctx, ownerID, counterpartyID)
}

func (s *Service) directChatExists(ctx context.Context, ownerID, counterpartyID string) (bool, error) {
	rooms, registry, err := s.fetchRoomsAndRegistry(ctx)
	if err != nil {
		return false, err
	}

	listed := registry.Rooms(ownerID)
	for _, room := range rooms {
		if !slices.Contains(listed, room.ID) {
			continue
		}
		active := room.anyMember(func(m Member) bool {
			return m.UserID == counterpartyID &&
				(m.Membership == MembershipJoined || m.Membership == MembershipInvited)
		})
		if active {
			return true, nil
		}
	}
	return false, nil
}

// fetchRoomsAndRegistry reads the room list and the registry concurrently.
func (s *Service) fetchRoomsAndRegistry(ctx context.Context) ([]Room, Registry, error) {
	var (
		rooms    []Room
		registry Registry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rooms, err = s.provider.ListRooms(gctx)
		if err != nil {
			return fmt.Errorf("list rooms: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		registry, err = s.provider.GetDirectChatAccountData(gctx)
		if err != nil {
			return fmt.Errorf("get direct chat registry: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return rooms, registry, nil
}

// leaveStaleRooms removes each stale room from the working registry list
// and leaves it. Leaves run sequentially because they share the list.
func (s *Service) leaveStaleRooms(ctx context.Context, listed []string, stale []Room) error {
	var errs []error
	for _, room := range stale {
		if i := slices.Index(listed, room.ID); i >= 0 {
			listed = slices.Delete(listed, i, i+1)
		}

		if err := s.provider.LeaveRoom(ctx, room.ID); err != nil {
			s.log.Warn().Err(err).Str("room_id", room.ID).Msg("failed to leave stale direct chat")
			errs = append(errs, fmt.Errorf("leave stale room %s: %w", room.ID, err))
			continue
		}
		s.log.Info().
			Str("room_id", room.ID).
			Int("registry_remaining", len(listed)).
			Msg("left stale direct chat")
	}
	return errors.Join(errs...)
}

// partitionRooms splits registry-listed rooms in the target state into
// those where every participant is still present and those where someone
// has left.
func partitionRooms(rooms []Room, listed []string, state Membership) (qualifying, stale []Room) {
	for _, room := range rooms {
		if room.Membership != state || !slices.Contains(listed, room.ID) {
			continue
		}
		if room.anyMember(func(m Member) bool { return m.Membership == MembershipLeft }) {
			stale = append(stale, room)
			continue
		}
		qualifying = append(qualifying, room)
	}
	return qualifying, stale
}

func flaggedRooms(rooms []Room, state Membership, left []Room) []Room {
	var flagged []Room
	for _, room := range rooms {
		if room.Membership != state {
			continue
		}
		if slices.ContainsFunc(left, func(r Room) bool { return r.ID == room.ID }) {
			continue
		}
		if room.anyMember(func(m Member) bool { return m.IsDirect }) {
			flagged = append(flagged, room)
		}
	}
	return flagged
}
