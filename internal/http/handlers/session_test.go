package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	repos "github.com/yungbote/readsession-backend/internal/data/repos/reading"
	"github.com/yungbote/readsession-backend/internal/data/repos/testutil"
	"github.com/yungbote/readsession-backend/internal/modules/reading"
	"github.com/yungbote/readsession-backend/internal/platform/ctxutil"
	"github.com/yungbote/readsession-backend/internal/platform/logger"
)

type sessionAPI struct {
	t      *testing.T
	engine *gin.Engine
}

// asUser stands in for the auth middleware.
func asUser(userID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != uuid.Nil {
			ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{UserID: userID})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

func newSessionAPI(t *testing.T, userID uuid.UUID, uc SessionUsecases) *sessionAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewSessionHandler(logger.Nop(), uc)
	r := gin.New()
	g := r.Group("/api", asUser(userID))
	g.POST("/sessions/start", h.Start)
	g.GET("/sessions", h.List)
	g.GET("/sessions/:id", h.Get)
	g.GET("/sessions/:id/events", h.ListEvents)
	g.POST("/sessions/:id/pre-phase", h.SubmitPrePhase)
	g.POST("/sessions/:id/advance", h.Advance)
	g.POST("/sessions/:id/events", h.RecordEvent)
	g.POST("/sessions/:id/finish", h.Finish)
	g.POST("/sessions/:id/archive", h.Archive)
	g.POST("/sessions/:id/outcome/recompute", h.RecomputeOutcome)
	return &sessionAPI{t: t, engine: r}
}

func newUsecases(t *testing.T) *reading.Usecases {
	t.Helper()
	db := testutil.DB(t)
	return reading.NewUsecases(reading.UsecasesDeps{
		Log:      testutil.Logger(t),
		Sessions: repos.NewSessionRepo(db, testutil.Logger(t)),
		Policy:   reading.DefaultPolicy(),
	})
}

func (a *sessionAPI) do(method, path, body string) (int, map[string]any) {
	a.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func sessionField(body map[string]any, key string) any {
	s, _ := body["session"].(map[string]any)
	return s[key]
}

func TestSessionHandlerFullFlow(t *testing.T) {
	api := newSessionAPI(t, uuid.New(), newUsecases(t))

	status, body := api.do(http.MethodPost, "/api/sessions/start", `{"contentId":"`+uuid.NewString()+`"}`)
	require.Equal(t, http.StatusCreated, status, body)
	require.Equal(t, "PRE", sessionField(body, "phase"))
	id := sessionField(body, "id").(string)
	base := "/api/sessions/" + id

	status, body = api.do(http.MethodPost, base+"/pre-phase",
		`{"goalStatement":"Understand photosynthesis","predictionText":"Plants make sugar","targetWordsJson":["chlorophyll","glucose","stomata"]}`)
	require.Equal(t, http.StatusOK, status, body)

	status, body = api.do(http.MethodPost, base+"/advance", `{"toPhase":"DURING"}`)
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, "DURING", sessionField(body, "phase"))

	status, body = api.do(http.MethodPost, base+"/events", `{"eventType":"MARK_KEY_IDEA","payload":{"blockId":"p1","excerpt":"light"}}`)
	require.Equal(t, http.StatusCreated, status, body)
	event := body["event"].(map[string]any)
	assert.EqualValues(t, 0, event["sequence"])

	status, body = api.do(http.MethodPost, base+"/advance", `{"toPhase":"POST"}`)
	require.Equal(t, http.StatusOK, status, body)

	status, body = api.do(http.MethodPost, base+"/finish", "")
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, "FINISHED", sessionField(body, "phase"))
	require.NotNil(t, sessionField(body, "finished_at"))
	require.NotNil(t, body["outcome"])

	status, body = api.do(http.MethodGet, base+"/events", "")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["events"], 1)

	status, body = api.do(http.MethodPost, base+"/outcome/recompute", "")
	require.Equal(t, http.StatusOK, status, body)
	require.NotNil(t, body["outcome"])

	status, body = api.do(http.MethodPost, base+"/archive", "")
	require.Equal(t, http.StatusOK, status, body)
	require.NotNil(t, sessionField(body, "archived_at"))

	status, body = api.do(http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["sessions"], 0)

	status, body = api.do(http.MethodGet, "/api/sessions?includeArchived=true&phase=FINISHED", "")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["sessions"], 1)
}

func TestSessionHandlerErrorMapping(t *testing.T) {
	uc := newUsecases(t)
	owner := uuid.New()
	api := newSessionAPI(t, owner, uc)

	_, body := api.do(http.MethodPost, "/api/sessions/start", `{"contentId":"`+uuid.NewString()+`"}`)
	base := "/api/sessions/" + sessionField(body, "id").(string)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"skip phases", http.MethodPost, base + "/advance", `{"toPhase":"POST"}`, http.StatusConflict, "invalid_transition"},
		{"unknown phase", http.MethodPost, base + "/advance", `{"toPhase":"LATER"}`, http.StatusUnprocessableEntity, "validation_error"},
		{"event in PRE", http.MethodPost, base + "/events", `{"eventType":"MARK_KEY_IDEA","payload":{"blockId":"p","excerpt":"x"}}`, http.StatusConflict, "invalid_phase"},
		{"short goal", http.MethodPost, base + "/pre-phase", `{"goalStatement":"short","predictionText":"p","targetWordsJson":["a","b","c"]}`, http.StatusUnprocessableEntity, "validation_error"},
		{"unknown session", http.MethodGet, "/api/sessions/" + uuid.NewString(), "", http.StatusNotFound, "not_found"},
		{"bad session id", http.MethodGet, "/api/sessions/nope", "", http.StatusBadRequest, "invalid_request"},
		{"unknown request field", http.MethodPost, base + "/advance", `{"toPhase":"DURING","force":true}`, http.StatusBadRequest, "invalid_request"},
		{"trailing data", http.MethodPost, base + "/advance", `{"toPhase":"DURING"} {}`, http.StatusBadRequest, "invalid_request"},
		{"empty body", http.MethodPost, base + "/advance", "", http.StatusBadRequest, "invalid_request"},
		{"bad content filter", http.MethodGet, "/api/sessions?contentId=xyz", "", http.StatusBadRequest, "invalid_request"},
		{"recompute before finish", http.MethodPost, base + "/outcome/recompute", "", http.StatusConflict, "invalid_phase"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := api.do(tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, status, body)
			require.Equal(t, tc.code, errorCode(body))
		})
	}

	other := newSessionAPI(t, uuid.New(), uc)
	status, body := other.do(http.MethodGet, base, "")
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "forbidden", errorCode(body))

	anon := newSessionAPI(t, uuid.Nil, uc)
	status, body = anon.do(http.MethodGet, base, "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "unauthorized", errorCode(body))
}

func TestPrePhaseAcceptsTargetWordsAsJSONString(t *testing.T) {
	api := newSessionAPI(t, uuid.New(), newUsecases(t))
	_, body := api.do(http.MethodPost, "/api/sessions/start", `{"contentId":"`+uuid.NewString()+`"}`)
	base := "/api/sessions/" + sessionField(body, "id").(string)

	status, body := api.do(http.MethodPost, base+"/pre-phase",
		`{"goalStatement":"Understand photosynthesis","predictionText":"p","targetWordsJson":"[\"chlorophyll\",\"glucose\",\"stomata\"]"}`)
	require.Equal(t, http.StatusOK, status, body)
	require.Len(t, sessionField(body, "target_words"), 3)

	status, body = api.do(http.MethodPost, base+"/pre-phase",
		`{"goalStatement":"Understand photosynthesis","predictionText":"p","targetWordsJson":"chlorophyll"}`)
	require.Equal(t, http.StatusBadRequest, status, body)
}
