package matrix

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// homeserver emulates the client-server endpoints the provider uses.
// Access tokens are "token-<localpart>".
type homeserver struct {
	mu          sync.Mutex
	server      string
	users       map[string]string // user ID -> display name
	rooms       map[string]*hsRoom
	roomOrder   []string
	accountData map[string]map[string]json.RawMessage
	nextRoom    int
	leaveErrs   map[string]bool
}

type hsRoom struct {
	id      string
	order   []string
	members map[string]memberContent
	senders map[string]string
}

func newHomeserver(t *testing.T, localparts ...string) (*homeserver, *httptest.Server) {
	t.Helper()

	hs := &homeserver{
		server:      "example.org",
		users:       make(map[string]string),
		rooms:       make(map[string]*hsRoom),
		accountData: make(map[string]map[string]json.RawMessage),
		leaveErrs:   make(map[string]bool),
	}
	for _, lp := range localparts {
		hs.users["@"+lp+":example.org"] = strings.ToUpper(lp[:1]) + lp[1:]
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /_matrix/client/v3/account/whoami", hs.authed(hs.whoami))
	mux.HandleFunc("GET /_matrix/client/v3/profile/{userID}", hs.authed(hs.profile))
	mux.HandleFunc("GET /_matrix/client/v3/sync", hs.authed(hs.sync))
	mux.HandleFunc("POST /_matrix/client/v3/createRoom", hs.authed(hs.createRoom))
	mux.HandleFunc("POST /_matrix/client/v3/rooms/{roomID}/join", hs.authed(hs.join))
	mux.HandleFunc("POST /_matrix/client/v3/join/{roomID}", hs.authed(hs.join))
	mux.HandleFunc("POST /_matrix/client/v3/rooms/{roomID}/leave", hs.authed(hs.leave))
	mux.HandleFunc("GET /_matrix/client/v3/rooms/{roomID}/members", hs.authed(hs.members))
	mux.HandleFunc("GET /_matrix/client/v3/user/{userID}/account_data/{type}", hs.authed(hs.getAccountData))
	mux.HandleFunc("PUT /_matrix/client/v3/user/{userID}/account_data/{type}", hs.authed(hs.putAccountData))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return hs, srv
}

type authedHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (hs *homeserver) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		userID := "@" + strings.TrimPrefix(token, "token-") + ":" + hs.server
		hs.mu.Lock()
		_, ok := hs.users[userID]
		hs.mu.Unlock()
		if !strings.HasPrefix(token, "token-") || !ok {
			writeError(w, http.StatusUnauthorized, "M_UNKNOWN_TOKEN", "unknown token")
			return
		}
		next(w, r, userID)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"errcode": code, "error": msg})
}

func (hs *homeserver) whoami(w http.ResponseWriter, _ *http.Request, userID string) {
	writeJSON(w, http.StatusOK, map[string]string{"user_id": userID})
}

func (hs *homeserver) profile(w http.ResponseWriter, r *http.Request, _ string) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	name, ok := hs.users[r.PathValue("userID")]
	if !ok {
		writeError(w, http.StatusNotFound, "M_NOT_FOUND", "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"displayname": name})
}

func (hs *homeserver) memberEvents(room *hsRoom) []map[string]any {
	events := make([]map[string]any, 0, len(room.order))
	for i, userID := range room.order {
		events = append(events, map[string]any{
			"type":             "m.room.member",
			"event_id":         fmt.Sprintf("$%s-%d", room.id, i),
			"room_id":          room.id,
			"sender":           room.senders[userID],
			"state_key":        userID,
			"origin_server_ts": 1,
			"content":          room.members[userID],
		})
	}
	return events
}

func (hs *homeserver) sync(w http.ResponseWriter, _ *http.Request, userID string) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	join := map[string]any{}
	invite := map[string]any{}
	for _, roomID := range hs.roomOrder {
		room := hs.rooms[roomID]
		own, ok := room.members[userID]
		if !ok {
			continue
		}
		events := hs.memberEvents(room)
		switch own.Membership {
		case "join":
			join[roomID] = map[string]any{
				"state":    map[string]any{"events": events},
				"timeline": map[string]any{"events": []any{}},
			}
		case "invite":
			invite[roomID] = map[string]any{
				"invite_state": map[string]any{"events": events},
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"next_batch": "s1",
		"rooms":      map[string]any{"join": join, "invite": invite},
	})
}

func (hs *homeserver) createRoom(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		Preset   string   `json:"preset"`
		Invite   []string `json:"invite"`
		IsDirect bool     `json:"is_direct"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "M_BAD_JSON", err.Error())
		return
	}

	hs.mu.Lock()
	defer hs.mu.Unlock()

	hs.nextRoom++
	room := &hsRoom{
		id:      fmt.Sprintf("!room%d:%s", hs.nextRoom, hs.server),
		members: make(map[string]memberContent),
		senders: make(map[string]string),
	}
	room.set(userID, userID, memberContent{Membership: "join", DisplayName: hs.users[userID]})
	for _, invitee := range req.Invite {
		room.set(invitee, userID, memberContent{Membership: "invite", DisplayName: hs.users[invitee], IsDirect: req.IsDirect})
	}
	hs.rooms[room.id] = room
	hs.roomOrder = append(hs.roomOrder, room.id)

	writeJSON(w, http.StatusOK, map[string]string{"room_id": room.id})
}

func (r *hsRoom) set(userID, sender string, content memberContent) {
	if _, ok := r.members[userID]; !ok {
		r.order = append(r.order, userID)
	}
	r.members[userID] = content
	r.senders[userID] = sender
}

func (hs *homeserver) join(w http.ResponseWriter, r *http.Request, userID string) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	room, ok := hs.rooms[r.PathValue("roomID")]
	if !ok || room.members[userID].Membership != "invite" && room.members[userID].Membership != "join" {
		writeError(w, http.StatusForbidden, "M_FORBIDDEN", "not invited")
		return
	}
	room.set(userID, userID, memberContent{Membership: "join", DisplayName: hs.users[userID]})
	writeJSON(w, http.StatusOK, map[string]string{"room_id": room.id})
}

func (hs *homeserver) leave(w http.ResponseWriter, r *http.Request, userID string) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	roomID := r.PathValue("roomID")
	if hs.leaveErrs[roomID] {
		writeError(w, http.StatusInternalServerError, "M_UNKNOWN", "leave failed")
		return
	}
	room, ok := hs.rooms[roomID]
	if !ok {
		writeError(w, http.StatusNotFound, "M_NOT_FOUND", "unknown room")
		return
	}
	room.set(userID, userID, memberContent{Membership: "leave", DisplayName: hs.users[userID]})
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (hs *homeserver) members(w http.ResponseWriter, r *http.Request, _ string) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	room, ok := hs.rooms[r.PathValue("roomID")]
	if !ok {
		writeError(w, http.StatusForbidden, "M_FORBIDDEN", "not in room")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunk": hs.memberEvents(room)})
}

func (hs *homeserver) getAccountData(w http.ResponseWriter, r *http.Request, userID string) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	content, ok := hs.accountData[userID][r.PathValue("type")]
	if !ok {
		writeError(w, http.StatusNotFound, "M_NOT_FOUND", "account data not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(content)
}

func (hs *homeserver) putAccountData(w http.ResponseWriter, r *http.Request, userID string) {
	var content json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&content); err != nil {
		writeError(w, http.StatusBadRequest, "M_BAD_JSON", err.Error())
		return
	}

	hs.mu.Lock()
	defer hs.mu.Unlock()
	if hs.accountData[userID] == nil {
		hs.accountData[userID] = make(map[string]json.RawMessage)
	}
	hs.accountData[userID][r.PathValue("type")] = content
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (hs *homeserver) direct(userID string) map[string][]string {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	direct := map[string][]string{}
	if raw, ok := hs.accountData[userID]["m.direct"]; ok {
		_ = json.Unmarshal(raw, &direct)
	}
	return direct
}
