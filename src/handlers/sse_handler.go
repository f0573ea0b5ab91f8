package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/username/fintrack/backend/src/logger"
	"github.com/username/fintrack/backend/src/services"
	"github.com/username/fintrack/backend/src/utils"
)

type SSEHandler struct {
	notifier          *services.Notifier
	heartbeatInterval time.Duration
}

func NewSSEHandler(notifier *services.Notifier, heartbeatInterval time.Duration) *SSEHandler {
	return &SSEHandler{
		notifier:          notifier,
		heartbeatInterval: heartbeatInterval,
	}
}

// HandleStream serves the long-lived push channel for one user. The stream is
// scoped to the caller's own identity: requesting another user's channel is
// rejected even with a valid token.
func (h *SSEHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	requestedID, err := strconv.ParseInt(r.PathValue("userId"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "invalid user id", http.StatusBadRequest)
		return
	}
	if requestedID != userID {
		logger.L.Warn("SSE stream identity mismatch", "authenticated", userID, "requested", requestedID)
		utils.SendJSONError(w, "stream is scoped to your own identity", http.StatusForbidden)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.SendJSONError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := h.notifier.Subscribe(userID)
	defer h.notifier.Unsubscribe(userID, ch)

	logger.L.Info("SSE stream opened", "userID", userID, "remoteAddr", r.RemoteAddr)

	// Immediate heartbeat so the client can confirm liveness without waiting
	// a full interval.
	writeSSEEvent(w, flusher, services.EventHeartbeat, services.ChangeEvent{Type: services.EventHeartbeat, UserID: userID})

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.L.Info("SSE stream closed by client", "userID", userID)
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			writeSSEEvent(w, flusher, event.Type, event)
		case <-ticker.C:
			writeSSEEvent(w, flusher, services.EventHeartbeat, services.ChangeEvent{Type: services.EventHeartbeat, UserID: userID})
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, name string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.L.Error("Error marshaling SSE payload", "event", name, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	flusher.Flush()
}
