package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/readsession-backend/internal/domain/reading"
	"github.com/yungbote/readsession-backend/internal/http/response"
	"github.com/yungbote/readsession-backend/internal/modules/reading"
	"github.com/yungbote/readsession-backend/internal/platform/ctxutil"
	"github.com/yungbote/readsession-backend/internal/platform/logger"
)

const maxBodyBytes = 1 << 20

// SessionUsecases is the slice of the reading module the gateway drives.
type SessionUsecases interface {
	Start(ctx context.Context, userID, contentID uuid.UUID) (*types.Session, error)
	SubmitPrePhase(ctx context.Context, userID, sessionID uuid.UUID, in reading.PrePhaseInput) (*types.Session, error)
	AdvancePhase(ctx context.Context, userID, sessionID uuid.UUID, toPhase string) (*reading.SessionView, error)
	Finish(ctx context.Context, userID, sessionID uuid.UUID) (*reading.SessionView, error)
	RecordEvent(ctx context.Context, userID, sessionID uuid.UUID, eventType string, payload json.RawMessage) (*types.SessionEvent, error)
	GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*reading.SessionView, error)
	ListEvents(ctx context.Context, userID, sessionID uuid.UUID) ([]*types.SessionEvent, error)
	ListSessions(ctx context.Context, userID uuid.UUID, in reading.ListSessionsInput) ([]*types.Session, error)
	ArchiveSession(ctx context.Context, userID, sessionID uuid.UUID) (*types.Session, error)
	RecomputeOutcome(ctx context.Context, userID, sessionID uuid.UUID) (*types.Outcome, error)
}

type SessionHandler struct {
	log      *logger.Logger
	sessions SessionUsecases
}

func NewSessionHandler(log *logger.Logger, sessions SessionUsecases) *SessionHandler {
	return &SessionHandler{log: log.With("handler", "SessionHandler"), sessions: sessions}
}

type startSessionRequest struct {
	ContentID uuid.UUID `json:"contentId"`
}

// POST /api/sessions/start
func (h *SessionHandler) Start(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req startSessionRequest
	if !bindStrict(c, &req) {
		return
	}
	s, err := h.sessions.Start(c.Request.Context(), userID, req.ContentID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"session": s})
}

// targetWords accepts a JSON array of strings or a string holding one.
type targetWords []string

func (t *targetWords) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return err
		}
		data = []byte(inner)
	}
	var words []string
	if err := json.Unmarshal(data, &words); err != nil {
		return fmt.Errorf("targetWordsJson must be an array of strings")
	}
	*t = words
	return nil
}

type prePhaseRequest struct {
	GoalStatement   string      `json:"goalStatement"`
	PredictionText  string      `json:"predictionText"`
	TargetWordsJSON targetWords `json:"targetWordsJson"`
}

// POST /api/sessions/:id/pre-phase
func (h *SessionHandler) SubmitPrePhase(c *gin.Context) {
	userID, sessionID, ok := requireUserAndSession(c)
	if !ok {
		return
	}
	var req prePhaseRequest
	if !bindStrict(c, &req) {
		return
	}
	s, err := h.sessions.SubmitPrePhase(c.Request.Context(), userID, sessionID, reading.PrePhaseInput{
		GoalStatement:  req.GoalStatement,
		PredictionText: req.PredictionText,
		TargetWords:    req.TargetWordsJSON,
	})
	if err != nil {
		h.respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"session": s})
}

type advanceRequest struct {
	ToPhase string `json:"toPhase"`
}

// POST /api/sessions/:id/advance
func (h *SessionHandler) Advance(c *gin.Context) {
	userID, sessionID, ok := requireUserAndSession(c)
	if !ok {
		return
	}
	var req advanceRequest
	if !bindStrict(c, &req) {
		return
	}
	view, err := h.sessions.AdvancePhase(c.Request.Context(), userID, sessionID, req.ToPhase)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	response.RespondOK(c, view)
}

// POST /api/sessions/:id/finish
func (h *SessionHandler) Finish(c *gin.Context) {
	userID, sessionID, ok := requireUserAndSession(c)
	if !ok {
		return
	}
	view, err := h.sessions.Finish(c.Request.Context(), userID, sessionID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	response.RespondOK(c, view)
}

type recordEventRequest struct {
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
}

// POST /api/sessions/:id/events
func (h *SessionHandler) RecordEvent(c *gin.Context) {
	userID, sessionID, ok := requireUserAndSession(c)
	if !ok {
		return
	}
	var req recordEventRequest
	if !bindStrict(c, &req) {
		return
	}
	e, err := h.sessions.RecordEvent(c.Request.Context(), userID, sessionID, req.EventType, req.Payload)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"event": e})
}

// GET /api/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	userID, sessionID, ok := requireUserAndSession(c)
	if !ok {
		return
	}
	view, err := h.sessions.GetSession(c.Request.Context(), userID, sessionID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	response.RespondOK(c, view)
}

// GET /api/sessions/:id/events
func (h *SessionHandler) ListEvents(c *gin.Context) {
	userID, sessionID, ok := requireUserAndSession(c)
	if !ok {
		return
	}
	events, err := h.sessions.ListEvents(c.Request.Context(), userID, sessionID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if events == nil {
		events = []*types.SessionEvent{}
	}
	response.RespondOK(c, gin.H{"events": events})
}

type listSessionsQuery struct {
	Phase           string `form:"phase"`
	ContentID       string `form:"contentId"`
	IncludeArchived bool   `form:"includeArchived"`
	Limit           int    `form:"limit"`
}

// GET /api/sessions
func (h *SessionHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var q listSessionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	in := reading.ListSessionsInput{
		Phase:           q.Phase,
		IncludeArchived: q.IncludeArchived,
		Limit:           q.Limit,
	}
	if q.ContentID != "" {
		id, err := uuid.Parse(q.ContentID)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("contentId: %w", err))
			return
		}
		in.ContentID = id
	}
	sessions, err := h.sessions.ListSessions(c.Request.Context(), userID, in)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if sessions == nil {
		sessions = []*types.Session{}
	}
	response.RespondOK(c, gin.H{"sessions": sessions})
}

// POST /api/sessions/:id/archive
func (h *SessionHandler) Archive(c *gin.Context) {
	userID, sessionID, ok := requireUserAndSession(c)
	if !ok {
		return
	}
	s, err := h.sessions.ArchiveSession(c.Request.Context(), userID, sessionID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"session": s})
}

// POST /api/sessions/:id/outcome/recompute
func (h *SessionHandler) RecomputeOutcome(c *gin.Context) {
	userID, sessionID, ok := requireUserAndSession(c)
	if !ok {
		return
	}
	o, err := h.sessions.RecomputeOutcome(c.Request.Context(), userID, sessionID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"outcome": o})
}

func (h *SessionHandler) respondErr(c *gin.Context, err error) {
	ae := reading.APIError(err)
	if ae.Status >= http.StatusInternalServerError {
		h.log.Error("session request failed",
			"path", c.FullPath(),
			"request_id", ctxutil.RequestID(c.Request.Context()),
			"error", err,
		)
	}
	response.RespondAPIError(c, ae)
}

func requireUser(c *gin.Context) (uuid.UUID, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return uuid.Nil, false
	}
	return rd.UserID, true
}

func requireUserAndSession(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := requireUser(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("invalid session id"))
		return uuid.Nil, uuid.Nil, false
	}
	return userID, sessionID, true
}

// bindStrict decodes the request body into dst, rejecting unknown fields,
// trailing data and oversized bodies.
func bindStrict(c *gin.Context, dst any) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body required")
		}
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("unexpected data after request body"))
		return false
	}
	return true
}
