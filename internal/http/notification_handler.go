package http

import "net/http"

type NotificationHub interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID int64)
}

type NotificationHandler struct {
	hub NotificationHub
}

func NewNotificationHandler(hub NotificationHub) *NotificationHandler {
	return &NotificationHandler{hub: hub}
}

// Stream upgrades to a websocket carrying the caller's events.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	h.hub.ServeWS(w, r, actor.UserID)
}
