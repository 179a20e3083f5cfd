// Package directchat resolves one-to-one conversations on top of a
// room-based chat protocol.
//
// The protocol only knows rooms, per-member membership state and
// per-account metadata. A room counts as a direct chat when the account's
// registry lists it and no participant has left. The registry is only
// eventually consistent with membership, so resolution leaves rooms the
// counterparty abandoned and falls back to the per-member is_direct flag
// while a freshly created room has not reached the registry yet.
//
// Operations that mutate membership (Create, AcceptInvitation,
// DeclineInvitation) return before the provider's own view necessarily
// reflects them. Callers that re-query right afterwards should wait a
// short settling delay first.
package directchat
