package governance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benestar-app/benestar/internal/auth"
	"github.com/benestar-app/benestar/internal/governance/audit"
	"github.com/benestar-app/benestar/internal/quota"
)

type fakeEvents struct {
	userID string
	params audit.ListParams
	logs   []audit.QuotaEventLog
	err    error
}

func (f *fakeEvents) ListByUser(_ context.Context, userID string, params audit.ListParams) ([]audit.QuotaEventLog, int64, error) {
	f.userID = userID
	f.params = params
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.logs, int64(len(f.logs)), nil
}

type failingPeeker struct{}

func (failingPeeker) Peek(context.Context, string, quota.Kind, *quota.Limits) (quota.Decision, error) {
	return quota.Decision{}, &quota.TransientError{Attempts: 1, Err: errors.New("redis down")}
}

func (failingPeeker) Limits(quota.Kind) (quota.Limits, bool) { return quota.Limits{}, false }

func setupGate(t *testing.T, limits map[quota.Kind]quota.Limits) *quota.Gate {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	now := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	store := quota.NewRedisStore(client, quota.WithClock(func() time.Time { return now }))
	g, err := quota.NewGate(store, quota.GateConfig{Limits: limits})
	require.NoError(t, err)
	return g
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/quota/events", h.ListQuotaEvents)
	r.Get("/quota/{kind}", h.GetQuota)
	return r
}

func doRequest(t *testing.T, handler http.Handler, userID, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if userID != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestGetQuota_ReportsRemainingWithoutConsuming(t *testing.T) {
	g := setupGate(t, map[quota.Kind]quota.Limits{quota.KindJournal: {PerMinute: 2, PerDay: 5}})
	ctx := context.Background()
	_, err := g.CheckAndConsume(ctx, "user-1", quota.KindJournal, nil)
	require.NoError(t, err)

	router := newRouter(NewHandler(g, nil))

	for i := 0; i < 2; i++ {
		rec := doRequest(t, router, "user-1", "/quota/journal")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data QuotaStatus `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Data.Allowed)
		assert.Equal(t, quota.KindJournal, body.Data.Kind)
		assert.Equal(t, 1, body.Data.RemainingMinute)
		assert.Equal(t, 4, body.Data.RemainingDay)
		assert.Equal(t, 2, body.Data.LimitPerMinute)
		assert.Equal(t, 5, body.Data.LimitPerDay)
	}
}

func TestGetQuota_Exhausted(t *testing.T) {
	g := setupGate(t, map[quota.Kind]quota.Limits{quota.KindChat: {PerMinute: 1, PerDay: 5}})
	_, err := g.CheckAndConsume(context.Background(), "user-1", quota.KindChat, nil)
	require.NoError(t, err)

	rec := doRequest(t, newRouter(NewHandler(g, nil)), "user-1", "/quota/chat")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data QuotaStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Data.Allowed)
	assert.Equal(t, quota.ReasonMinuteExceeded, body.Data.Reason)
	assert.Equal(t, 60, body.Data.RetryAfterSeconds)
}

func TestGetQuota_Errors(t *testing.T) {
	g := setupGate(t, nil)
	router := newRouter(NewHandler(g, nil))

	rec := doRequest(t, router, "", "/quota/chat")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, router, "user-1", "/quota/dilemma")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "expected one of: chat, roleplay, journal")

	rec = doRequest(t, newRouter(NewHandler(failingPeeker{}, nil)), "user-1", "/quota/chat")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "service busy, try again shortly")
}

func TestListQuotaEvents(t *testing.T) {
	events := &fakeEvents{logs: []audit.QuotaEventLog{{
		ID:        uuid.New(),
		UserID:    "user-1",
		Kind:      "chat",
		Reason:    quota.ReasonMinuteExceeded,
		CreatedAt: time.Now().UTC(),
	}}}
	router := newRouter(NewHandler(setupGate(t, nil), events))

	rec := doRequest(t, router, "user-1", "/quota/events?kind=Chat&page=2&page_size=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", events.userID)
	assert.Equal(t, "chat", events.params.Kind)
	assert.Equal(t, 2, events.params.Page)
	assert.Equal(t, 5, events.params.PageSize)

	var body struct {
		Data       []audit.QuotaEventLog `json:"data"`
		TotalCount int64                 `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, int64(1), body.TotalCount)
	assert.Equal(t, quota.ReasonMinuteExceeded, body.Data[0].Reason)
}

func TestListQuotaEvents_Errors(t *testing.T) {
	g := setupGate(t, nil)

	rec := doRequest(t, newRouter(NewHandler(g, nil)), "user-1", "/quota/events")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, newRouter(NewHandler(g, &fakeEvents{err: errors.New("db down")})), "user-1", "/quota/events")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = doRequest(t, newRouter(NewHandler(g, &fakeEvents{})), "", "/quota/events")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestParseEventParams_IgnoresBadValues(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/quota/events?kind=poetry&page=-1&page_size=500&from=yesterday", nil)
	params := parseEventParams(req)
	assert.Equal(t, audit.DefaultListParams(), params)
}
