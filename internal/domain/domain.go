package domain

import "github.com/yungbote/readsession-backend/internal/domain/reading"

// Models lists every persisted type, in migration order.
func Models() []any {
	return []any{
		&reading.Session{},
		&reading.SessionEvent{},
		&reading.Outcome{},
	}
}
