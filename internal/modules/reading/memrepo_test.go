package reading

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	repos "github.com/yungbote/readsession-backend/internal/data/repos/reading"
	types "github.com/yungbote/readsession-backend/internal/domain/reading"
	"github.com/yungbote/readsession-backend/internal/platform/dbctx"
)

// memRepo is an in-memory SessionRepository. InTx serializes callers and
// restores the previous state when fn fails.
type memRepo struct {
	txMu sync.Mutex

	mu       sync.Mutex
	sessions map[uuid.UUID]types.Session
	events   map[uuid.UUID][]types.SessionEvent
	outcomes map[uuid.UUID]types.Outcome
}

func newMemRepo() *memRepo {
	return &memRepo{
		sessions: map[uuid.UUID]types.Session{},
		events:   map[uuid.UUID][]types.SessionEvent{},
		outcomes: map[uuid.UUID]types.Outcome{},
	}
}

var _ repos.SessionRepository = (*memRepo)(nil)

func (r *memRepo) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	sessions := make(map[uuid.UUID]types.Session, len(r.sessions))
	for k, v := range r.sessions {
		sessions[k] = v
	}
	events := make(map[uuid.UUID][]types.SessionEvent, len(r.events))
	for k, v := range r.events {
		events[k] = append([]types.SessionEvent(nil), v...)
	}
	outcomes := make(map[uuid.UUID]types.Outcome, len(r.outcomes))
	for k, v := range r.outcomes {
		outcomes[k] = v
	}
	r.mu.Unlock()

	if err := fn(dbctx.Context{Ctx: ctx}); err != nil {
		r.mu.Lock()
		r.sessions, r.events, r.outcomes = sessions, events, outcomes
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *memRepo) Create(_ dbctx.Context, s *types.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	r.sessions[s.ID] = *s
	return nil
}

func (r *memRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *memRepo) GetForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.Session, error) {
	return r.GetByID(dbc, id)
}

func (r *memRepo) Save(_ dbctx.Context, s *types.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = *s
	return nil
}

func (r *memRepo) ListByUser(_ dbctx.Context, userID uuid.UUID, f repos.ListFilter) ([]*types.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Session
	for _, s := range r.sessions {
		s := s
		if s.UserID != userID {
			continue
		}
		if f.Phase != "" && s.Phase != f.Phase {
			continue
		}
		if f.ContentID != uuid.Nil && s.ContentID != f.ContentID {
			continue
		}
		if !f.IncludeArchived && s.ArchivedAt != nil {
			continue
		}
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *memRepo) AppendEvent(_ dbctx.Context, e *types.SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.events[e.SessionID] {
		if existing.Sequence == e.Sequence {
			return repos.ErrConflict
		}
	}
	r.events[e.SessionID] = append(r.events[e.SessionID], *e)
	return nil
}

func (r *memRepo) ListEvents(_ dbctx.Context, sessionID uuid.UUID) ([]*types.SessionEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.SessionEvent, 0, len(r.events[sessionID]))
	for _, e := range r.events[sessionID] {
		e := e
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (r *memRepo) UpsertOutcome(_ dbctx.Context, o *types.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[o.SessionID] = *o
	return nil
}

func (r *memRepo) GetOutcome(_ dbctx.Context, sessionID uuid.UUID) (*types.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.outcomes[sessionID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}
