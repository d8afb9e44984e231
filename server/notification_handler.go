package server

import (
	"net/http"
	"strconv"

	"trackmarket/logger"
	"trackmarket/model"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NotificationsHandler GET /api/notifications?limit=
func (h *APIHandler) NotificationsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)

	items, err := h.hub.Recent(r.Context(), userID, limit)
	if err != nil {
		writeError(w, "[Notifications]", err)
		return
	}
	if items == nil {
		items = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": items})
}

// NotificationSocketHandler WS /ws/notifications?token=
// Browsers cannot set headers on websocket requests, so the token comes in
// the query string.
func (h *APIHandler) NotificationSocketHandler(w http.ResponseWriter, r *http.Request) {
	claims, err := h.tokens.ParseToken(r.URL.Query().Get("token"))
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("[WS] upgrade failed", logger.ErrorField(err))
		return
	}
	h.hub.Serve(conn, claims.UserID)
}
