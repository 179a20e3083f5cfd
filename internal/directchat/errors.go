package directchat

import "errors"

// Error codes for domain errors.
const (
	ErrCodeHandleNotFound       = "handle_not_found"
	ErrCodeDirectChatExists     = "direct_chat_exists"
	ErrCodeRoomNotFound         = "room_not_found"
	ErrCodeDirectChatMembership = "direct_chat_membership"
	ErrCodeMembershipResolution = "membership_resolution"
)

var (
	// ErrHandleNotFound is returned when the provider does not know a handle.
	ErrHandleNotFound = errors.New("handle not found")
	// ErrDirectChatExists is returned by Create when an active direct chat
	// with the counterparty already exists.
	ErrDirectChatExists = errors.New("direct chat already exists")
	// ErrRoomNotFound is returned when a referenced room is absent.
	ErrRoomNotFound = errors.New("room not found")
	// ErrDirectChatMembership is returned when a resolved room has no
	// other participant.
	ErrDirectChatMembership = errors.New("direct chat has no counterparty")
	// ErrMembershipResolution is returned when the current account's own
	// identifier cannot be obtained.
	ErrMembershipResolution = errors.New("cannot resolve own membership")
)

// Code returns the error code for a domain error, or "" for anything else.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrHandleNotFound):
		return ErrCodeHandleNotFound
	case errors.Is(err, ErrDirectChatExists):
		return ErrCodeDirectChatExists
	case errors.Is(err, ErrRoomNotFound):
		return ErrCodeRoomNotFound
	case errors.Is(err, ErrDirectChatMembership):
		return ErrCodeDirectChatMembership
	case errors.Is(err, ErrMembershipResolution):
		return ErrCodeMembershipResolution
	default:
		return ""
	}
}
