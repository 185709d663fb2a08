package routes

import (
	"github.com/gin-gonic/gin"

	"joinmatch/api/handlers"
)

// InternalApi - хуки для основного CRUD-сервиса, наружу не публикуются
func InternalApi(router *gin.Engine, h *handlers.Handlers) *gin.RouterGroup {
	internalEndpoints := router.Group("/internal/v1/")
	{
		internalEndpoints.POST("hooks/team-joined", h.TeamJoinedHook)
		internalEndpoints.POST("hooks/team-left", h.TeamLeftHook)
		internalEndpoints.POST("hooks/event-joined", h.EventJoinedHook)
		internalEndpoints.POST("hooks/event-left", h.EventLeftHook)
		internalEndpoints.POST("hooks/team-cancelled", h.TeamCancelledHook)
		internalEndpoints.POST("hooks/event-cancelled", h.EventCancelledHook)
		internalEndpoints.POST("hooks/post-commented", h.PostCommentedHook)
		internalEndpoints.POST("hooks/comment-replied", h.CommentRepliedHook)
		internalEndpoints.POST("hooks/content-reacted", h.ContentReactedHook)
	}
	return internalEndpoints
}
