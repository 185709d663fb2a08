package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"joinmatch/config"
	"joinmatch/logs"
	"joinmatch/services"
)

// Handlers - HTTP-обработчики поверх сервисов ядра; зависимости передаются при старте
type Handlers struct {
	Friends       *services.FriendGraphManager
	Conversations *services.ConversationManager
	Messages      *services.MessageStore
	Reads         *services.ReadTracker
	Notifications *services.NotificationDispatcher
	Inbox         *services.Inbox
	Events        *services.SocialEvents
	Directory     *services.Directory
	WS            *services.WSConnManager
}

// New собирает сервисы ядра над одним подключением к БД и каналом доставки
func New(orm *gorm.DB, pusher services.Pusher, ws *services.WSConnManager, messaging config.MessagingConfig) *Handlers {
	directory := services.NewDirectory(orm)
	notifier := services.NewNotificationDispatcher(orm, pusher)
	conversations := services.NewConversationManager(orm, pusher)
	messages := services.NewMessageStore(orm, pusher, messaging.MaxMessageLength)
	reads := services.NewReadTracker(orm, conversations, messaging.MarkReadDefaultLimit, messaging.MarkReadMaxLimit)
	return &Handlers{
		Friends:       services.NewFriendGraphManager(orm, notifier),
		Conversations: conversations,
		Messages:      messages,
		Reads:         reads,
		Notifications: notifier,
		Inbox:         services.NewInbox(conversations, messages, reads, directory),
		Events:        services.NewSocialEvents(conversations, notifier, directory),
		Directory:     directory,
		WS:            ws,
	}
}

// respondError переводит ошибки сервисов в HTTP-статусы
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidOperation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logs.For("http").WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func forbidden(c *gin.Context) {
	c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
}

// callerID - id пользователя, выставленный middleware
func callerID(c *gin.Context) (int64, bool) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return 0, false
	}
	return userID, true
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// selfParam - path-параметр с id пользователя, который должен совпадать с вызывающим
func selfParam(c *gin.Context, name string) (int64, bool) {
	caller, ok := callerID(c)
	if !ok {
		return 0, false
	}
	userID, ok := paramID(c, name)
	if !ok {
		return 0, false
	}
	if userID != caller {
		forbidden(c)
		return 0, false
	}
	return userID, true
}

// Health - проверка живости
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
