// Package handle maps short user handles to fully-qualified user IDs
// of the form "@handle:realm" and back.
package handle

import "strings"

const (
	sigil     = "@"
	separator = ":"
)

// Mapper converts between handles and user IDs scoped to one realm.
type Mapper struct {
	Realm string
}

// NewMapper returns a mapper for the given realm (e.g. "example.org").
func NewMapper(realm string) Mapper {
	return Mapper{Realm: realm}
}

// UserID returns the fully-qualified user ID for handle.
func (m Mapper) UserID(handle string) string {
	return sigil + handle + separator + m.Realm
}

// Handle returns the handle part of a fully-qualified user ID.
// Values that are not realm-qualified are returned unchanged.
func (m Mapper) Handle(userID string) string {
	if !strings.HasPrefix(userID, sigil) {
		return userID
	}
	rest := userID[len(sigil):]
	index := strings.Index(rest, separator)
	if index < 0 {
		return userID
	}
	return rest[:index]
}

// Valid reports whether handle can be qualified and recovered without loss.
func Valid(handle string) bool {
	return handle != "" && !strings.ContainsAny(handle, sigil+separator)
}
