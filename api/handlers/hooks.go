package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Внутренние хуки: основной CRUD-сервис сообщает о событиях команд, мероприятий и контента

type membershipHook struct {
	TeamID  int64 `json:"team_id"`
	EventID int64 `json:"event_id"`
	UserID  int64 `json:"user_id" binding:"required"`
}

type cancellationHook struct {
	TeamID  int64 `json:"team_id"`
	EventID int64 `json:"event_id"`
	ActorID int64 `json:"actor_id" binding:"required"`
}

type commentHook struct {
	AuthorID  int64 `json:"author_id" binding:"required"`
	ActorID   int64 `json:"actor_id" binding:"required"`
	ContentID int64 `json:"content_id" binding:"required"`
}

type reactionHook struct {
	AuthorID    int64  `json:"author_id" binding:"required"`
	ActorID     int64  `json:"actor_id" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
	ContentID   int64  `json:"content_id" binding:"required"`
	Reaction    string `json:"reaction" binding:"required"`
}

func hookResult(c *gin.Context, sent int, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": sent})
}

func bindHook(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return false
	}
	return true
}

// TeamJoinedHook - POST /internal/v1/hooks/team-joined
func (h *Handlers) TeamJoinedHook(c *gin.Context) {
	var r membershipHook
	if !bindHook(c, &r) {
		return
	}
	sent, err := h.Events.TeamJoined(c.Request.Context(), r.TeamID, r.UserID)
	hookResult(c, sent, err)
}

func (h *Handlers) TeamLeftHook(c *gin.Context) {
	var r membershipHook
	if !bindHook(c, &r) {
		return
	}
	sent, err := h.Events.TeamLeft(c.Request.Context(), r.TeamID, r.UserID)
	hookResult(c, sent, err)
}

func (h *Handlers) EventJoinedHook(c *gin.Context) {
	var r membershipHook
	if !bindHook(c, &r) {
		return
	}
	sent, err := h.Events.EventJoined(c.Request.Context(), r.EventID, r.UserID)
	hookResult(c, sent, err)
}

func (h *Handlers) EventLeftHook(c *gin.Context) {
	var r membershipHook
	if !bindHook(c, &r) {
		return
	}
	sent, err := h.Events.EventLeft(c.Request.Context(), r.EventID, r.UserID)
	hookResult(c, sent, err)
}

func (h *Handlers) TeamCancelledHook(c *gin.Context) {
	var r cancellationHook
	if !bindHook(c, &r) {
		return
	}
	sent, err := h.Events.TeamCancelled(c.Request.Context(), r.TeamID, r.ActorID)
	hookResult(c, sent, err)
}

func (h *Handlers) EventCancelledHook(c *gin.Context) {
	var r cancellationHook
	if !bindHook(c, &r) {
		return
	}
	sent, err := h.Events.EventCancelled(c.Request.Context(), r.EventID, r.ActorID)
	hookResult(c, sent, err)
}

// PostCommentedHook - author_id - автор поста, content_id - пост
func (h *Handlers) PostCommentedHook(c *gin.Context) {
	var r commentHook
	if !bindHook(c, &r) {
		return
	}
	sent, err := h.Events.PostCommented(c.Request.Context(), r.AuthorID, r.ActorID, r.ContentID)
	hookResult(c, sent, err)
}

// CommentRepliedHook - author_id - автор родительского комментария, content_id - ответ
func (h *Handlers) CommentRepliedHook(c *gin.Context) {
	var r commentHook
	if !bindHook(c, &r) {
		return
	}
	sent, err := h.Events.CommentReplied(c.Request.Context(), r.AuthorID, r.ActorID, r.ContentID)
	hookResult(c, sent, err)
}

func (h *Handlers) ContentReactedHook(c *gin.Context) {
	var r reactionHook
	if !bindHook(c, &r) {
		return
	}
	sent, err := h.Events.ContentReacted(c.Request.Context(), r.AuthorID, r.ActorID, r.ContentType, r.ContentID, r.Reaction)
	hookResult(c, sent, err)
}
