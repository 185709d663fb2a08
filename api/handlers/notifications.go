package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListNotifications - GET /notifications/:id, id - пользователь
func (h *Handlers) ListNotifications(c *gin.Context) {
	userID, ok := selfParam(c, "id")
	if !ok {
		return
	}
	notifications, err := h.Notifications.ListForUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// NotificationsUnreadCount - GET /notifications/:id/unread-count
func (h *Handlers) NotificationsUnreadCount(c *gin.Context) {
	userID, ok := selfParam(c, "id")
	if !ok {
		return
	}
	count, err := h.Notifications.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

// MarkNotificationRead - PATCH /notifications/:id/read, id - уведомление
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	notificationID, ok := paramID(c, "id")
	if !ok {
		return
	}
	notification, err := h.Notifications.Get(c.Request.Context(), notificationID)
	if err != nil {
		respondError(c, err)
		return
	}
	if notification.UserID != caller {
		forbidden(c)
		return
	}
	if err := h.Notifications.MarkRead(c.Request.Context(), notificationID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "notification marked as read"})
}

// MarkAllNotificationsRead - PATCH /notifications/:id/read-all, id - пользователь
func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	userID, ok := selfParam(c, "id")
	if !ok {
		return
	}
	updated, err := h.Notifications.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}
