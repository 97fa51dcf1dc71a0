package handlers

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/readsession-backend/internal/platform/logger"
	"github.com/yungbote/readsession-backend/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.SSEHub

	mu      sync.Mutex
	clients map[uuid.UUID]*realtime.SSEClient // key: SSEClient.ID
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{
		log:     log.With("handler", "RealtimeHandler"),
		hub:     hub,
		clients: make(map[uuid.UUID]*realtime.SSEClient),
	}
}

// GET /api/sse/stream
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	client := h.hub.NewSSEClient(userID)
	h.hub.AddChannel(client, realtime.UserChannel(userID))

	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	h.log.Debug("sse stream open", "user_id", userID, "client_id", client.ID)

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.mu.Lock()
	delete(h.clients, client.ID)
	h.mu.Unlock()
	h.hub.CloseClient(client)
	h.log.Debug("sse stream closed", "user_id", userID, "client_id", client.ID)
}

// CloseAll ends every open stream. Used on shutdown so http.Server.Shutdown
// is not held open by long-lived connections.
func (h *RealtimeHandler) CloseAll() {
	h.mu.Lock()
	clients := make([]*realtime.SSEClient, 0, len(h.clients))
	for id, c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, id)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.hub.CloseClient(c)
	}
}

func (h *RealtimeHandler) OpenStreams() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
