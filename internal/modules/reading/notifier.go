package reading

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/readsession-backend/internal/platform/logger"
	"github.com/yungbote/readsession-backend/internal/realtime"
	"github.com/yungbote/readsession-backend/internal/realtime/bus"
)

// Notifier tells connected clients about committed session changes.
// Delivery is best effort and runs after the write has committed.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event realtime.SSEEvent, data any)
}

type busNotifier struct {
	bus bus.Bus
	log *logger.Logger
}

func NewBusNotifier(b bus.Bus, log *logger.Logger) Notifier {
	return &busNotifier{bus: b, log: log.With("service", "ReadingSessionNotifier")}
}

func (n *busNotifier) Notify(ctx context.Context, userID uuid.UUID, event realtime.SSEEvent, data any) {
	if n == nil || n.bus == nil {
		return
	}
	msg := realtime.SSEMessage{
		Channel: realtime.UserChannel(userID),
		Event:   event,
		Data:    data,
	}
	if err := n.bus.Publish(ctx, msg); err != nil {
		n.log.Warn("publish session notification failed", "event", event, "error", err)
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, uuid.UUID, realtime.SSEEvent, any) {}
