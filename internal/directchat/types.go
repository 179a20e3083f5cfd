package directchat

// Membership is a participant's state in a room. Backends translate their
// protocol's own values into this set at the boundary.
type Membership int

const (
	MembershipUnknown Membership = iota
	MembershipInvited
	MembershipJoined
	MembershipLeft
	MembershipBanned
)

// String returns the wire name used by the chat protocol.
func (m Membership) String() string {
	switch m {
	case MembershipInvited:
		return "invite"
	case MembershipJoined:
		return "join"
	case MembershipLeft:
		return "leave"
	case MembershipBanned:
		return "ban"
	default:
		return "unknown"
	}
}

// ParseMembership translates a protocol membership string. Unrecognized
// values (knock, empty) map to MembershipUnknown.
func ParseMembership(s string) Membership {
	switch s {
	case "invite":
		return MembershipInvited
	case "join":
		return MembershipJoined
	case "leave":
		return MembershipLeft
	case "ban":
		return MembershipBanned
	default:
		return MembershipUnknown
	}
}

// Member is one participant's membership record in a room.
type Member struct {
	UserID      string
	DisplayName string
	Membership  Membership
	// IsDirect is set when the room was created as a direct chat. It is
	// visible on the creator's side immediately, unlike the registry.
	IsDirect bool
}

// Room is a room as seen by the current account.
type Room struct {
	ID         string
	Membership Membership // the current account's own membership
	Members    []Member
}

// anyMember reports whether any member satisfies fn.
func (r Room) anyMember(fn func(Member) bool) bool {
	for _, m := range r.Members {
		if fn(m) {
			return true
		}
	}
	return false
}

// Registry maps an account ID to the room IDs marked as direct chats.
type Registry map[string][]string

// Rooms returns a copy of the room list for accountID, empty if absent.
func (r Registry) Rooms(accountID string) []string {
	rooms := r[accountID]
	out := make([]string, len(rooms))
	copy(out, rooms)
	return out
}

// Handle identifies a participant by handle and display name.
type Handle struct {
	HandleID string `json:"handle_id"`
	Name     string `json:"name"`
}

// DirectChat is a joined direct chat.
type DirectChat struct {
	ChatID      string `json:"chat_id"`
	OtherHandle Handle `json:"other_handle"`
}

// Invitation is a pending direct chat invitation.
type Invitation struct {
	ChatID        string `json:"chat_id"`
	InviterHandle Handle `json:"inviter_handle"`
}
