package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"joinmatch/logs"
	"joinmatch/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const connectedFrame = `{"event":"connected","message":"WebSocket connected"}`

// WSNotifications - GET /ws, персональный канал уведомлений
func (h *Handlers) WSNotifications(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	h.serveWS(c, userID, "")
}

// WSConversation - GET /ws/conversations/:id, новые сообщения беседы; только для участников
func (h *Handlers) WSConversation(c *gin.Context) {
	conversationID, ok := paramID(c, "id")
	if !ok {
		return
	}
	view, ok := h.participantOf(c, conversationID)
	if !ok {
		return
	}
	h.serveWS(c, c.GetInt64("user_id"), services.ConversationTopic(view.ID))
}

func (h *Handlers) serveWS(c *gin.Context, userID int64, topic string) {
	log := logs.For("ws").WithField("user_id", userID)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	// приветствие до регистрации: после нее писать в соединение может только менеджер
	if err := conn.WriteMessage(websocket.TextMessage, []byte(connectedFrame)); err != nil {
		return
	}

	var connID string
	if topic == "" {
		connID = h.WS.Add(userID, conn)
	} else {
		connID = h.WS.Join(topic, userID, conn)
	}
	defer h.WS.Remove(connID)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.WithError(err).Debug("WebSocket closed")
			break
		}
	}
}
