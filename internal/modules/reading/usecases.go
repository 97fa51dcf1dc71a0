package reading

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	repos "github.com/yungbote/readsession-backend/internal/data/repos/reading"
	types "github.com/yungbote/readsession-backend/internal/domain/reading"
	"github.com/yungbote/readsession-backend/internal/platform/dbctx"
	"github.com/yungbote/readsession-backend/internal/platform/logger"
	"github.com/yungbote/readsession-backend/internal/realtime"
)

// ContentCatalog answers whether a piece of content exists. Optional.
type ContentCatalog interface {
	Exists(ctx context.Context, contentID uuid.UUID) (bool, error)
}

type UsecasesDeps struct {
	Log      *logger.Logger
	Sessions repos.SessionRepository
	Policy   Policy
	Scorer   Scorer
	Notifier Notifier
	Content  ContentCatalog
	Metrics  Metrics
	Now      func() time.Time
}

// Metrics receives counts of session activity. Optional.
type Metrics interface {
	SessionStarted()
	PhaseChanged(from, to string)
	EventRecorded(eventType string)
	OperationFailed(op, code string)
	OutcomeComputed(comprehension, production, frustration float64)
}

type nopMetrics struct{}

func (nopMetrics) SessionStarted()                           {}
func (nopMetrics) PhaseChanged(string, string)               {}
func (nopMetrics) EventRecorded(string)                      {}
func (nopMetrics) OperationFailed(string, string)            {}
func (nopMetrics) OutcomeComputed(float64, float64, float64) {}

// SessionView is a session plus its outcome once finished.
type SessionView struct {
	Session *types.Session `json:"session"`
	Outcome *types.Outcome `json:"outcome,omitempty"`
}

type Usecases struct {
	deps    UsecasesDeps
	log     *logger.Logger
	tracer  trace.Tracer
	flights singleflight.Group
}

func NewUsecases(deps UsecasesDeps) *Usecases {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Scorer == nil {
		deps.Scorer = NewScorer(deps.Policy.Scoring)
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Usecases{
		deps:   deps,
		log:    deps.Log.With("module", "reading"),
		tracer: otel.Tracer("readsession/reading"),
	}
}

func (u *Usecases) Policy() Policy { return u.deps.Policy }

func (u *Usecases) Start(ctx context.Context, userID, contentID uuid.UUID) (_ *types.Session, err error) {
	ctx, span := u.startSpan(ctx, "reading.Start", uuid.Nil)
	defer func() { u.endSpan(span, "start", err) }()

	if userID == uuid.Nil {
		return nil, forbiddenErr()
	}
	if contentID == uuid.Nil {
		return nil, validationErr("contentId", "required")
	}
	if u.deps.Content != nil {
		ok, err := u.deps.Content.Exists(ctx, contentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, notFoundErr("content")
		}
	}

	now := u.deps.Now()
	s := &types.Session{
		ID:        uuid.New(),
		UserID:    userID,
		ContentID: contentID,
		Phase:     types.PhasePre,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.deps.Sessions.Create(dbctx.Context{Ctx: ctx}, s); err != nil {
		return nil, err
	}
	u.log.Info("reading session started", "session_id", s.ID, "user_id", userID, "content_id", contentID)
	u.deps.Metrics.SessionStarted()
	u.deps.Notifier.Notify(ctx, userID, realtime.SSEEventSessionStarted, s)
	return s, nil
}

func (u *Usecases) SubmitPrePhase(ctx context.Context, userID, sessionID uuid.UUID, in PrePhaseInput) (_ *types.Session, err error) {
	ctx, span := u.startSpan(ctx, "reading.SubmitPrePhase", sessionID)
	defer func() { u.endSpan(span, "pre_phase", err) }()

	var out *types.Session
	err = u.deps.Sessions.InTx(ctx, func(dbc dbctx.Context) error {
		s, err := u.lockOwned(dbc, userID, sessionID)
		if err != nil {
			return err
		}
		next, err := ApplyPrePhase(*s, in, u.deps.Policy)
		if err != nil {
			return err
		}
		if err := u.deps.Sessions.Save(dbc, &next); err != nil {
			return err
		}
		out = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AdvancePhase moves the session to toPhase. Repeating the current phase is
// a successful no-op, which makes client retries safe.
func (u *Usecases) AdvancePhase(ctx context.Context, userID, sessionID uuid.UUID, toPhase string) (*SessionView, error) {
	to, err := ParsePhase(toPhase)
	if err != nil {
		return nil, err
	}
	if to != types.PhaseFinished {
		return u.advance(ctx, userID, sessionID, to)
	}
	// Overlapping finish requests from the same caller share one computation.
	// It outlives any single caller; each caller stops waiting on its own ctx.
	key := sessionID.String() + ":" + userID.String()
	ch := u.flights.DoChan(key, func() (any, error) {
		return u.advance(context.WithoutCancel(ctx), userID, sessionID, to)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*SessionView), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Finish advances to FINISHED and returns the outcome.
func (u *Usecases) Finish(ctx context.Context, userID, sessionID uuid.UUID) (*SessionView, error) {
	return u.AdvancePhase(ctx, userID, sessionID, string(types.PhaseFinished))
}

func (u *Usecases) advance(ctx context.Context, userID, sessionID uuid.UUID, to types.Phase) (_ *SessionView, err error) {
	ctx, span := u.startSpan(ctx, "reading.AdvancePhase", sessionID)
	span.SetAttributes(attribute.String("reading.to_phase", string(to)))
	defer func() { u.endSpan(span, "advance", err) }()

	var (
		view    *SessionView
		changed bool
		from    types.Phase
	)
	err = u.deps.Sessions.InTx(ctx, func(dbc dbctx.Context) error {
		s, err := u.loadOwnedForUpdate(dbc, userID, sessionID)
		if err != nil {
			return err
		}
		from = s.Phase
		if s.Archived() && s.Phase != to {
			return invalidPhaseErr("session is archived")
		}
		tr, err := Advance(*s, to, u.deps.Policy, u.deps.Now())
		if err != nil {
			return err
		}
		next := tr.Session
		view = &SessionView{Session: &next}
		changed = tr.Changed

		if !tr.Changed {
			if next.Phase == types.PhaseFinished {
				o, err := u.deps.Sessions.GetOutcome(dbc, next.ID)
				if err != nil {
					return err
				}
				view.Outcome = o
			}
			return nil
		}

		if tr.Finished {
			o, err := u.computeOutcome(dbc, &next)
			if err != nil {
				return err
			}
			view.Outcome = o
		}
		return u.deps.Sessions.Save(dbc, &next)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		u.log.Info("reading session phase changed", "session_id", sessionID, "user_id", userID, "from", from, "to", to)
		u.deps.Metrics.PhaseChanged(string(from), string(to))
		if o := view.Outcome; o != nil {
			u.deps.Metrics.OutcomeComputed(o.ComprehensionScore, o.ProductionScore, o.FrustrationIndex)
		}
		u.deps.Notifier.Notify(ctx, userID, realtime.SSEEventSessionPhaseChanged, view)
		if to == types.PhaseFinished {
			u.deps.Notifier.Notify(ctx, userID, realtime.SSEEventSessionFinished, view)
		}
	}
	return view, nil
}

// RecordEvent appends one immutable event to the session's log.
func (u *Usecases) RecordEvent(ctx context.Context, userID, sessionID uuid.UUID, eventType string, payload json.RawMessage) (_ *types.SessionEvent, err error) {
	ctx, span := u.startSpan(ctx, "reading.RecordEvent", sessionID)
	span.SetAttributes(attribute.String("reading.event_type", eventType))
	defer func() { u.endSpan(span, "record_event", err) }()

	et := types.EventType(eventType)
	if !et.Valid() {
		return nil, validationErr("eventType", "unknown event type %q", eventType)
	}

	var out *types.SessionEvent
	err = u.deps.Sessions.InTx(ctx, func(dbc dbctx.Context) error {
		s, err := u.lockOwned(dbc, userID, sessionID)
		if err != nil {
			return err
		}
		if err := CheckEventAllowed(s, et, u.deps.Policy); err != nil {
			return err
		}
		canonical, err := NormalizePayload(et, payload)
		if err != nil {
			return err
		}

		now := u.deps.Now()
		e := &types.SessionEvent{
			ID:         uuid.New(),
			SessionID:  s.ID,
			Sequence:   s.EventCount,
			Type:       et,
			Payload:    datatypes.JSON(canonical),
			Phase:      s.Phase,
			RecordedAt: now,
		}
		if err := u.deps.Sessions.AppendEvent(dbc, e); err != nil {
			return err
		}
		s.EventCount++
		if err := u.deps.Sessions.Save(dbc, s); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	u.log.Debug("reading session event recorded", "session_id", sessionID, "event_type", et, "sequence", out.Sequence)
	u.deps.Metrics.EventRecorded(string(et))
	u.deps.Notifier.Notify(ctx, userID, realtime.SSEEventSessionEventRecorded, out)
	return out, nil
}

func (u *Usecases) GetSession(ctx context.Context, userID, sessionID uuid.UUID) (_ *SessionView, err error) {
	ctx, span := u.startSpan(ctx, "reading.GetSession", sessionID)
	defer func() { u.endSpan(span, "get_session", err) }()

	dbc := dbctx.Context{Ctx: ctx}
	s, err := u.loadOwned(dbc, userID, sessionID)
	if err != nil {
		return nil, err
	}
	view := &SessionView{Session: s}
	if s.Phase == types.PhaseFinished {
		if view.Outcome, err = u.deps.Sessions.GetOutcome(dbc, s.ID); err != nil {
			return nil, err
		}
	}
	return view, nil
}

func (u *Usecases) ListEvents(ctx context.Context, userID, sessionID uuid.UUID) ([]*types.SessionEvent, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if _, err := u.loadOwned(dbc, userID, sessionID); err != nil {
		return nil, err
	}
	return u.deps.Sessions.ListEvents(dbc, sessionID)
}

type ListSessionsInput struct {
	Phase           string
	ContentID       uuid.UUID
	IncludeArchived bool
	Limit           int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func (u *Usecases) ListSessions(ctx context.Context, userID uuid.UUID, in ListSessionsInput) ([]*types.Session, error) {
	if userID == uuid.Nil {
		return nil, forbiddenErr()
	}
	f := repos.ListFilter{
		ContentID:       in.ContentID,
		IncludeArchived: in.IncludeArchived,
		Limit:           in.Limit,
	}
	if in.Phase != "" {
		p, err := ParsePhase(in.Phase)
		if err != nil {
			return nil, validationErr("phase", "unknown phase %q", in.Phase)
		}
		f.Phase = p
	}
	switch {
	case f.Limit <= 0:
		f.Limit = defaultListLimit
	case f.Limit > maxListLimit:
		f.Limit = maxListLimit
	}
	return u.deps.Sessions.ListByUser(dbctx.Context{Ctx: ctx}, userID, f)
}

// ArchiveSession hides a session from default listings and freezes it.
func (u *Usecases) ArchiveSession(ctx context.Context, userID, sessionID uuid.UUID) (_ *types.Session, err error) {
	ctx, span := u.startSpan(ctx, "reading.ArchiveSession", sessionID)
	defer func() { u.endSpan(span, "archive", err) }()

	var (
		out     *types.Session
		changed bool
	)
	err = u.deps.Sessions.InTx(ctx, func(dbc dbctx.Context) error {
		s, err := u.loadOwnedForUpdate(dbc, userID, sessionID)
		if err != nil {
			return err
		}
		out = s
		if s.Archived() {
			return nil
		}
		now := u.deps.Now()
		s.ArchivedAt = &now
		changed = true
		return u.deps.Sessions.Save(dbc, s)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		u.deps.Notifier.Notify(ctx, userID, realtime.SSEEventSessionArchived, out)
	}
	return out, nil
}

// RecomputeOutcome re-scores a finished session from its log.
func (u *Usecases) RecomputeOutcome(ctx context.Context, userID, sessionID uuid.UUID) (_ *types.Outcome, err error) {
	ctx, span := u.startSpan(ctx, "reading.RecomputeOutcome", sessionID)
	defer func() { u.endSpan(span, "recompute", err) }()

	var out *types.Outcome
	err = u.deps.Sessions.InTx(ctx, func(dbc dbctx.Context) error {
		s, err := u.loadOwnedForUpdate(dbc, userID, sessionID)
		if err != nil {
			return err
		}
		if s.Phase != types.PhaseFinished {
			return invalidPhaseErr("outcome is only available once the session is %s", types.PhaseFinished)
		}
		out, err = u.computeOutcome(dbc, s)
		return err
	})
	if err != nil {
		return nil, err
	}
	u.deps.Metrics.OutcomeComputed(out.ComprehensionScore, out.ProductionScore, out.FrustrationIndex)
	return out, nil
}

func (u *Usecases) computeOutcome(dbc dbctx.Context, s *types.Session) (*types.Outcome, error) {
	events, err := u.deps.Sessions.ListEvents(dbc, s.ID)
	if err != nil {
		return nil, err
	}
	o, err := u.deps.Scorer.Score(s, events, u.deps.Now())
	if err != nil {
		return nil, err
	}
	if err := u.deps.Sessions.UpsertOutcome(dbc, o); err != nil {
		return nil, err
	}
	return o, nil
}

// lockOwned loads and locks a session the caller owns and may still mutate.
func (u *Usecases) lockOwned(dbc dbctx.Context, userID, sessionID uuid.UUID) (*types.Session, error) {
	s, err := u.loadOwnedForUpdate(dbc, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Archived() {
		return nil, invalidPhaseErr("session is archived")
	}
	return s, nil
}

func (u *Usecases) loadOwnedForUpdate(dbc dbctx.Context, userID, sessionID uuid.UUID) (*types.Session, error) {
	s, err := u.deps.Sessions.GetForUpdate(dbc, sessionID)
	return checkOwner(s, err, userID)
}

func (u *Usecases) loadOwned(dbc dbctx.Context, userID, sessionID uuid.UUID) (*types.Session, error) {
	s, err := u.deps.Sessions.GetByID(dbc, sessionID)
	return checkOwner(s, err, userID)
}

func checkOwner(s *types.Session, err error, userID uuid.UUID) (*types.Session, error) {
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, notFoundErr("session")
	}
	if userID == uuid.Nil || s.UserID != userID {
		return nil, forbiddenErr()
	}
	return s, nil
}

func (u *Usecases) startSpan(ctx context.Context, name string, sessionID uuid.UUID) (context.Context, trace.Span) {
	ctx, span := u.tracer.Start(ctx, name)
	if sessionID != uuid.Nil {
		span.SetAttributes(attribute.String("reading.session_id", sessionID.String()))
	}
	return ctx, span
}

func (u *Usecases) endSpan(span trace.Span, op string, err error) {
	if err != nil {
		u.deps.Metrics.OperationFailed(op, APIError(err).Code)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
