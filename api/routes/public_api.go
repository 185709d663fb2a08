package routes

import (
	"github.com/gin-gonic/gin"

	"joinmatch/api/handlers"
	"joinmatch/api/middleware"
)

func PublicApi(router *gin.Engine, h *handlers.Handlers) *gin.RouterGroup {
	publicEndpoints := router.Group("/api/v1/")
	publicEndpoints.Use(middleware.IdentityMiddleware())
	{
		// Друзья
		publicEndpoints.POST("friend-requests", h.SendFriendRequest)
		publicEndpoints.POST("friend-requests/:id/accept", h.AcceptFriendRequest)
		publicEndpoints.POST("friend-requests/:id/reject", h.RejectFriendRequest)
		publicEndpoints.GET("friend-requests/incoming", h.ListIncomingRequests)
		publicEndpoints.GET("friend-requests/outgoing", h.ListOutgoingRequests)
		publicEndpoints.DELETE("friendships/:id", h.DeleteFriendship)
		publicEndpoints.GET("friends/:user_id", h.ListFriends)

		// Беседы и сообщения
		publicEndpoints.POST("conversations/direct", h.CreateDirectConversation)
		publicEndpoints.POST("conversations/team/:team_id", h.TeamConversation)
		publicEndpoints.POST("conversations/event/:event_id", h.EventConversation)
		publicEndpoints.GET("conversations/:id/previews", h.ConversationPreviews)
		publicEndpoints.GET("conversations/:id/unread-count", h.TotalUnread)
		publicEndpoints.GET("conversations/:id/messages", h.ListMessages)
		publicEndpoints.POST("messages", h.SendMessage)
		publicEndpoints.PATCH("message-read", h.MarkRead)

		// Уведомления
		publicEndpoints.GET("notifications/:id", h.ListNotifications)
		publicEndpoints.GET("notifications/:id/unread-count", h.NotificationsUnreadCount)
		publicEndpoints.PATCH("notifications/:id/read", h.MarkNotificationRead)
		publicEndpoints.PATCH("notifications/:id/read-all", h.MarkAllNotificationsRead)

		// WebSocket
		publicEndpoints.GET("ws", h.WSNotifications)
		publicEndpoints.GET("ws/conversations/:id", h.WSConversation)
	}
	return publicEndpoints
}
