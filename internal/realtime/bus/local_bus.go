package bus

import (
	"context"
	"sync"

	"github.com/yungbote/readsession-backend/internal/realtime"
)

// LocalBus delivers messages in-process. Used when no Redis is configured
// and in tests.
type LocalBus struct {
	mu        sync.RWMutex
	listeners []func(realtime.SSEMessage)
}

func NewLocalBus() *LocalBus { return &LocalBus{} }

func (b *LocalBus) Publish(_ context.Context, msg realtime.SSEMessage) error {
	b.mu.RLock()
	listeners := append([]func(realtime.SSEMessage){}, b.listeners...)
	b.mu.RUnlock()
	for _, fn := range listeners {
		fn(msg)
	}
	return nil
}

func (b *LocalBus) StartForwarder(_ context.Context, onMsg func(m realtime.SSEMessage)) error {
	b.mu.Lock()
	b.listeners = append(b.listeners, onMsg)
	b.mu.Unlock()
	return nil
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	b.listeners = nil
	b.mu.Unlock()
	return nil
}
