package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"joinmatch/services"
)

type directConversationBody struct {
	UserAID int64 `json:"user_a_id" binding:"required"`
	UserBID int64 `json:"user_b_id" binding:"required"`
}

// CreateDirectConversation - POST /conversations/direct; вызывающий должен быть одной из сторон
func (h *Handlers) CreateDirectConversation(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	var r directConversationBody
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if caller != r.UserAID && caller != r.UserBID {
		forbidden(c)
		return
	}
	view, err := h.Conversations.GetOrCreateDirect(c.Request.Context(), r.UserAID, r.UserBID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// TeamConversation - POST /conversations/team/:team_id
func (h *Handlers) TeamConversation(c *gin.Context) {
	h.groupConversation(c, "team_id", h.Conversations.FindForTeam, h.teamRoster, h.Conversations.GetOrCreateForTeam)
}

// EventConversation - POST /conversations/event/:event_id
func (h *Handlers) EventConversation(c *gin.Context) {
	h.groupConversation(c, "event_id", h.Conversations.FindForEvent, h.eventRoster, h.Conversations.GetOrCreateForEvent)
}

func (h *Handlers) teamRoster(ctx context.Context, teamID int64) ([]int64, error) {
	team, err := h.Directory.Team(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return h.Directory.TeamRoster(ctx, team)
}

func (h *Handlers) eventRoster(ctx context.Context, eventID int64) ([]int64, error) {
	event, err := h.Directory.Event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return h.Directory.EventRoster(ctx, event)
}

type (
	findConversation     func(ctx context.Context, id int64) (*services.ConversationView, error)
	rosterOf             func(ctx context.Context, id int64) ([]int64, error)
	getOrCreateByOwnerID func(ctx context.Context, id int64) (services.ConversationView, error)
)

// groupConversation проверяет членство до создания: существующую беседу по ее участникам,
// еще не созданную по составу команды или мероприятия
func (h *Handlers) groupConversation(c *gin.Context, param string, find findConversation, roster rosterOf, getOrCreate getOrCreateByOwnerID) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := paramID(c, param)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	existing, err := find(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if existing != nil {
		if !existing.HasParticipant(caller) {
			forbidden(c)
			return
		}
		c.JSON(http.StatusOK, existing)
		return
	}

	members, err := roster(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !lo.Contains(members, caller) {
		forbidden(c)
		return
	}
	view, err := getOrCreate(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ConversationPreviews - GET /conversations/:id/previews, id - пользователь
func (h *Handlers) ConversationPreviews(c *gin.Context) {
	userID, ok := selfParam(c, "id")
	if !ok {
		return
	}
	previews, err := h.Inbox.Previews(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": previews})
}

// TotalUnread - GET /conversations/:id/unread-count, id - пользователь
func (h *Handlers) TotalUnread(c *gin.Context) {
	userID, ok := selfParam(c, "id")
	if !ok {
		return
	}
	count, err := h.Inbox.TotalUnread(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

// participantOf проверяет, что вызывающий - участник беседы
func (h *Handlers) participantOf(c *gin.Context, conversationID int64) (services.ConversationView, bool) {
	caller, ok := callerID(c)
	if !ok {
		return services.ConversationView{}, false
	}
	view, err := h.Conversations.Get(c.Request.Context(), conversationID)
	if err != nil {
		respondError(c, err)
		return services.ConversationView{}, false
	}
	if !view.HasParticipant(caller) {
		forbidden(c)
		return services.ConversationView{}, false
	}
	return view, true
}

// ListMessages - GET /conversations/:id/messages
func (h *Handlers) ListMessages(c *gin.Context) {
	conversationID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if _, ok := h.participantOf(c, conversationID); !ok {
		return
	}
	messages, err := h.Messages.ListOrdered(c.Request.Context(), conversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type sendMessageBody struct {
	ConversationID int64  `json:"conversation_id" binding:"required"`
	SenderID       int64  `json:"sender_id"`
	Content        string `json:"content" binding:"required"`
}

// SendMessage - POST /messages; время сообщения назначает сервер
func (h *Handlers) SendMessage(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	var r sendMessageBody
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if r.SenderID == 0 {
		r.SenderID = caller
	}
	if r.SenderID != caller {
		forbidden(c)
		return
	}
	view, err := h.Messages.Append(c.Request.Context(), r.ConversationID, r.SenderID, r.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

type markReadBody struct {
	ConversationID int64 `json:"conversation_id" binding:"required"`
	UserID         int64 `json:"user_id"`
	UpToMessageID  int64 `json:"up_to_message_id"`
	Limit          int   `json:"limit"`
}

// MarkRead - PATCH /message-read
func (h *Handlers) MarkRead(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	var r markReadBody
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if r.UserID == 0 {
		r.UserID = caller
	}
	if r.UserID != caller {
		forbidden(c)
		return
	}
	marked, err := h.Reads.MarkRead(c.Request.Context(), r.ConversationID, r.UserID, r.UpToMessageID, r.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	unread, err := h.Reads.UnreadCount(c.Request.Context(), r.ConversationID, r.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": marked, "unread_count": unread})
}
