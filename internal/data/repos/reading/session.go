package reading

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/readsession-backend/internal/domain/reading"
	"github.com/yungbote/readsession-backend/internal/platform/dbctx"
	"github.com/yungbote/readsession-backend/internal/platform/logger"
)

// ErrConflict is returned when an insert collides with an existing
// (session_id, sequence) pair. The caller may retry the whole operation.
var ErrConflict = errors.New("conflicting write")

type ListFilter struct {
	Phase           types.Phase
	ContentID       uuid.UUID
	IncludeArchived bool
	Limit           int
}

type SessionRepository interface {
	// InTx runs fn in one transaction. Nested calls reuse dbc.Tx.
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error

	Create(dbc dbctx.Context, s *types.Session) error
	// GetByID returns (nil, nil) when the session does not exist.
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Session, error)
	// GetForUpdate is GetByID plus a row lock held until the transaction ends.
	GetForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.Session, error)
	Save(dbc dbctx.Context, s *types.Session) error
	ListByUser(dbc dbctx.Context, userID uuid.UUID, f ListFilter) ([]*types.Session, error)

	AppendEvent(dbc dbctx.Context, e *types.SessionEvent) error
	ListEvents(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.SessionEvent, error)

	UpsertOutcome(dbc dbctx.Context, o *types.Outcome) error
	GetOutcome(dbc dbctx.Context, sessionID uuid.UUID) (*types.Outcome, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepository {
	return &sessionRepo{db: db, log: baseLog.With("repo", "ReadingSessionRepo")}
}

func (r *sessionRepo) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}

func (r *sessionRepo) Create(dbc dbctx.Context, s *types.Session) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}
	return dbc.Conn(r.db).Create(s).Error
}

func (r *sessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Session, error) {
	return r.get(dbc.Conn(r.db), id)
}

func (r *sessionRepo) GetForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.Session, error) {
	t := dbc.Conn(r.db)
	// SQLite has no row locks; its single writer connection serializes instead.
	if t.Dialector.Name() == "postgres" {
		t = t.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.get(t, id)
}

func (r *sessionRepo) get(t *gorm.DB, id uuid.UUID) (*types.Session, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Session
	if err := t.Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *sessionRepo) Save(dbc dbctx.Context, s *types.Session) error {
	if s == nil || s.ID == uuid.Nil {
		return nil
	}
	s.UpdatedAt = time.Now().UTC()
	return dbc.Conn(r.db).Save(s).Error
}

func (r *sessionRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, f ListFilter) ([]*types.Session, error) {
	var results []*types.Session
	if userID == uuid.Nil {
		return results, nil
	}
	q := dbc.Conn(r.db).Where("user_id = ?", userID)
	if f.Phase != "" {
		q = q.Where("phase = ?", f.Phase)
	}
	if f.ContentID != uuid.Nil {
		q = q.Where("content_id = ?", f.ContentID)
	}
	if !f.IncludeArchived {
		q = q.Where("archived_at IS NULL")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Order("started_at DESC").Order("id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *sessionRepo) AppendEvent(dbc dbctx.Context, e *types.SessionEvent) error {
	if e == nil {
		return nil
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if err := dbc.Conn(r.db).Create(e).Error; err != nil {
		if isUniqueViolation(err) {
			r.log.Warn("event sequence conflict", "session_id", e.SessionID, "sequence", e.Sequence)
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *sessionRepo) ListEvents(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.SessionEvent, error) {
	var results []*types.SessionEvent
	if sessionID == uuid.Nil {
		return results, nil
	}
	if err := dbc.Conn(r.db).
		Where("session_id = ?", sessionID).
		Order("sequence ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *sessionRepo) UpsertOutcome(dbc dbctx.Context, o *types.Outcome) error {
	if o == nil || o.SessionID == uuid.Nil {
		return nil
	}
	return dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"comprehension_score",
				"production_score",
				"frustration_index",
				"event_count",
				"computed_at",
			}),
		}).
		Create(o).Error
}

func (r *sessionRepo) GetOutcome(dbc dbctx.Context, sessionID uuid.UUID) (*types.Outcome, error) {
	if sessionID == uuid.Nil {
		return nil, nil
	}
	var row types.Outcome
	if err := dbc.Conn(r.db).
		Where("session_id = ?", sessionID).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.SessionID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
