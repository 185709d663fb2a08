package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type friendRequestBody struct {
	SenderID   int64 `json:"sender_id"`
	ReceiverID int64 `json:"receiver_id" binding:"required"`
}

// SendFriendRequest - POST /friend-requests
func (h *Handlers) SendFriendRequest(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	var r friendRequestBody
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if r.SenderID == 0 {
		r.SenderID = caller
	}
	if r.SenderID != caller {
		forbidden(c)
		return
	}
	view, err := h.Friends.SendRequest(c.Request.Context(), r.SenderID, r.ReceiverID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// AcceptFriendRequest - POST /friend-requests/:id/accept, только получатель
func (h *Handlers) AcceptFriendRequest(c *gin.Context) {
	h.resolveFriendRequest(c, true)
}

// RejectFriendRequest - POST /friend-requests/:id/reject, только получатель
func (h *Handlers) RejectFriendRequest(c *gin.Context) {
	h.resolveFriendRequest(c, false)
}

func (h *Handlers) resolveFriendRequest(c *gin.Context, accept bool) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	requestID, ok := paramID(c, "id")
	if !ok {
		return
	}
	request, err := h.Friends.GetRequest(c.Request.Context(), requestID)
	if err != nil {
		respondError(c, err)
		return
	}
	if request.ReceiverID != caller {
		forbidden(c)
		return
	}

	if accept {
		err = h.Friends.AcceptRequest(c.Request.Context(), requestID)
	} else {
		err = h.Friends.RejectRequest(c.Request.Context(), requestID)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	message := "friend request rejected"
	if accept {
		message = "friend request accepted"
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

// ListIncomingRequests - GET /friend-requests/incoming
func (h *Handlers) ListIncomingRequests(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	requests, err := h.Friends.ListIncoming(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// ListOutgoingRequests - GET /friend-requests/outgoing
func (h *Handlers) ListOutgoingRequests(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	requests, err := h.Friends.ListOutgoing(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// DeleteFriendship - DELETE /friendships/:id, только участник дружбы
func (h *Handlers) DeleteFriendship(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	friendshipID, ok := paramID(c, "id")
	if !ok {
		return
	}
	friendship, err := h.Friends.GetFriendship(c.Request.Context(), friendshipID)
	if err != nil {
		respondError(c, err)
		return
	}
	if friendship.UserOneID != caller && friendship.UserTwoID != caller {
		forbidden(c)
		return
	}
	if err := h.Friends.DeleteFriendship(c.Request.Context(), friendshipID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "friend deleted"})
}

// ListFriends - GET /friends/:user_id?query=
func (h *Handlers) ListFriends(c *gin.Context) {
	if _, ok := callerID(c); !ok {
		return
	}
	userID, ok := paramID(c, "user_id")
	if !ok {
		return
	}
	friends, err := h.Friends.ListFriends(c.Request.Context(), userID, c.Query("query"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}
