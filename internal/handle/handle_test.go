package handle

import "testing"

func TestUserID(t *testing.T) {
	m := NewMapper("example.org")
	if got := m.UserID("alice"); got != "@alice:example.org" {
		t.Fatalf("expected @alice:example.org, got %q", got)
	}
}

func TestHandle(t *testing.T) {
	m := NewMapper("example.org")

	tests := []struct {
		name   string
		userID string
		want   string
	}{
		{name: "qualified", userID: "@alice:example.org", want: "alice"},
		{name: "other realm", userID: "@bob:matrix.org", want: "bob"},
		{name: "realm with port", userID: "@carol:localhost:8448", want: "carol"},
		{name: "bare handle", userID: "dave", want: "dave"},
		{name: "missing realm", userID: "@erin", want: "@erin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Handle(tt.userID); got != tt.want {
				t.Errorf("Handle(%q) = %q, want %q", tt.userID, got, tt.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	m := NewMapper("example.org")

	for _, h := range []string{"alice", "bob.smith", "agent/worker", "x", "under_score", "ünïcode"} {
		userID := m.UserID(h)
		if again := m.UserID(m.Handle(userID)); again != userID {
			t.Errorf("round trip of %q: got %q, want %q", h, again, userID)
		}
	}
}

func TestValid(t *testing.T) {
	tests := map[string]bool{
		"alice":        true,
		"":             false,
		"a:b":          false,
		"@alice":       false,
		"agent/worker": true,
	}
	for h, want := range tests {
		if got := Valid(h); got != want {
			t.Errorf("Valid(%q) = %v, want %v", h, got, want)
		}
	}
}
