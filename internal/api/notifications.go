package api

import (
	"net/http"

	"github.com/codemavricks/zerohunger/internal/services/notifications"
)

type NotificationsHandler struct {
	Notifications *notifications.Service
}

// List handles GET /api/v1/notifications.
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.Notifications.ListMine(r.Context(), CurrentUser(r.Context()).ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, out)
}

// MarkRead handles POST /api/v1/notifications/{id}/read.
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := h.Notifications.MarkRead(r.Context(), id, CurrentUser(r.Context()).ID); err != nil {
		writeErr(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "notification read"})
}

// MarkAllRead handles POST /api/v1/notifications/read-all.
func (h *NotificationsHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Notifications.MarkAllRead(r.Context(), CurrentUser(r.Context()).ID); err != nil {
		writeErr(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "all notifications read"})
}

// UnreadCount handles GET /api/v1/notifications/unread-count.
func (h *NotificationsHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.Notifications.UnreadCount(r.Context(), CurrentUser(r.Context()).ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]int64{"unread": n})
}
