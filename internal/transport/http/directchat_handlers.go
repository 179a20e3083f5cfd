package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/directchat/internal/directchat"
	"github.com/vovakirdan/directchat/internal/handle"
)

// DirectChatHandlers provides HTTP handlers for direct chat endpoints.
type DirectChatHandlers struct {
	handles handle.Mapper
	log     *zerolog.Logger
}

// NewDirectChatHandlers creates a new direct chat handlers instance.
func NewDirectChatHandlers(handles handle.Mapper, logger *zerolog.Logger) *DirectChatHandlers {
	return &DirectChatHandlers{
		handles: handles,
		log:     logger,
	}
}

// CreateDirectChatRequest represents the request body for starting a direct chat.
type CreateDirectChatRequest struct {
	Handle string `json:"handle" binding:"required"`
}

// CreateDirectChatResponse carries the new room ID.
type CreateDirectChatResponse struct {
	ChatID string `json:"chat_id"`
}

// DirectChatsResponse lists joined direct chats.
type DirectChatsResponse struct {
	DirectChats []directchat.DirectChat `json:"direct_chats"`
}

// InvitationsResponse lists pending invitations.
type InvitationsResponse struct {
	Invitations []directchat.Invitation `json:"invitations"`
}

// BlockedResponse lists blocked user IDs as reported by the backend.
type BlockedResponse struct {
	Blocked []string `json:"blocked"`
}

// Create handles starting a direct chat.
// POST /api/direct-chats
func (h *DirectChatHandlers) Create(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}

	var req CreateDirectChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create direct chat request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	target, ok := h.handle(c, req.Handle)
	if !ok {
		return
	}

	chatID, err := svc.Create(c.Request.Context(), target)
	if err != nil {
		h.writeError(c, err, "failed to create direct chat")
		return
	}

	c.JSON(http.StatusCreated, CreateDirectChatResponse{ChatID: chatID})
}

// ListJoined handles listing joined direct chats.
// GET /api/direct-chats
func (h *DirectChatHandlers) ListJoined(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}

	chats, err := svc.ListJoined(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "failed to list direct chats")
		return
	}
	if chats == nil {
		chats = []directchat.DirectChat{}
	}

	c.JSON(http.StatusOK, DirectChatsResponse{DirectChats: chats})
}

// ListInvitations handles listing pending invitations.
// GET /api/direct-chats/invitations
func (h *DirectChatHandlers) ListInvitations(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}

	invitations, err := svc.ListInvitations(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "failed to list invitations")
		return
	}
	if invitations == nil {
		invitations = []directchat.Invitation{}
	}

	c.JSON(http.StatusOK, InvitationsResponse{Invitations: invitations})
}

// AcceptInvitation handles joining an invited direct chat.
// POST /api/direct-chats/invitations/:room_id/accept
func (h *DirectChatHandlers) AcceptInvitation(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}

	if err := svc.AcceptInvitation(c.Request.Context(), c.Param("room_id")); err != nil {
		h.writeError(c, err, "failed to accept invitation")
		return
	}

	c.Status(http.StatusNoContent)
}

// DeclineInvitation handles leaving an invited direct chat.
// POST /api/direct-chats/invitations/:room_id/decline
func (h *DirectChatHandlers) DeclineInvitation(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}

	if err := svc.DeclineInvitation(c.Request.Context(), c.Param("room_id")); err != nil {
		h.writeError(c, err, "failed to decline invitation")
		return
	}

	c.Status(http.StatusNoContent)
}

// ListBlocked handles listing blocked users.
// GET /api/blocked
func (h *DirectChatHandlers) ListBlocked(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}

	blocked, err := svc.ListBlockedHandles(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "failed to list blocked users")
		return
	}
	if blocked == nil {
		blocked = []string{}
	}

	c.JSON(http.StatusOK, BlockedResponse{Blocked: blocked})
}

// Block handles blocking a user.
// PUT /api/blocked/:handle
func (h *DirectChatHandlers) Block(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}
	target, ok := h.handle(c, c.Param("handle"))
	if !ok {
		return
	}

	if err := svc.BlockHandle(c.Request.Context(), target); err != nil {
		h.writeError(c, err, "failed to block user")
		return
	}

	c.Status(http.StatusNoContent)
}

// Unblock handles unblocking a user.
// DELETE /api/blocked/:handle
func (h *DirectChatHandlers) Unblock(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}
	target, ok := h.handle(c, c.Param("handle"))
	if !ok {
		return
	}

	if err := svc.UnblockHandle(c.Request.Context(), target); err != nil {
		h.writeError(c, err, "failed to unblock user")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *DirectChatHandlers) service(c *gin.Context) (*directchat.Service, bool) {
	value, exists := c.Get(ContextKeyService)
	if !exists {
		h.log.Error().Msg("direct chat service not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return nil, false
	}

	svc, ok := value.(*directchat.Service)
	if !ok {
		h.log.Error().Msg("invalid direct chat service type in context")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return nil, false
	}
	return svc, true
}

// handle accepts a bare handle or a full user ID on this realm.
func (h *DirectChatHandlers) handle(c *gin.Context, raw string) (string, bool) {
	value := strings.TrimSpace(raw)
	if strings.HasPrefix(value, "@") {
		userID := value
		value = h.handles.Handle(userID)
		if h.handles.UserID(value) != userID {
			value = ""
		}
	}
	if !handle.Valid(value) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid handle"})
		return "", false
	}
	return value, true
}

func (h *DirectChatHandlers) writeError(c *gin.Context, err error, msg string) {
	resp := ErrorResponse{Code: directchat.Code(err)}

	switch {
	case errors.Is(err, directchat.ErrHandleNotFound):
		resp.Error = "handle not found"
		c.JSON(http.StatusNotFound, resp)
	case errors.Is(err, directchat.ErrDirectChatExists):
		resp.Error = "direct chat already exists"
		c.JSON(http.StatusConflict, resp)
	case errors.Is(err, directchat.ErrRoomNotFound):
		resp.Error = "room not found"
		c.JSON(http.StatusNotFound, resp)
	case errors.Is(err, directchat.ErrDirectChatMembership):
		resp.Error = directchat.ErrDirectChatMembership.Error()
		h.log.Warn().Err(err).Str("user_id", c.GetString(ContextKeyUserID)).Msg(msg)
		c.JSON(http.StatusBadGateway, resp)
	case errors.Is(err, directchat.ErrMembershipResolution):
		resp.Error = directchat.ErrMembershipResolution.Error()
		h.log.Warn().Err(err).Str("user_id", c.GetString(ContextKeyUserID)).Msg(msg)
		c.JSON(http.StatusBadGateway, resp)
	default:
		h.log.Error().Err(err).Str("user_id", c.GetString(ContextKeyUserID)).Msg(msg)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
