package idempotency

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitu-designer/lehangas/internal/platform/auth"
)

func countingHandler(calls *int32, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"call":` + string(rune('0'+n)) + `}`))
	})
}

func guarded(store Store, h http.Handler, opts ...Option) http.Handler {
	return Guard(store, opts...)(h)
}

func post(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/uploads", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderName, key)
	}
	ctx := auth.WithIdentity(req.Context(), &auth.Identity{UID: "admin-uid"})
	return req.WithContext(ctx)
}

func TestGuardReplaysCompletedResponse(t *testing.T) {
	var calls int32
	h := guarded(NewMemoryStore(nil), countingHandler(&calls, http.StatusCreated))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, post("k1", `{"a":1}`))
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get(ReplayHeader))

	second := httptest.NewRecorder()
	h.ServeHTTP(second, post("k1", `{"a":1}`))
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(ReplayHeader))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGuardRejectsReusedKeyWithDifferentBody(t *testing.T) {
	var calls int32
	h := guarded(NewMemoryStore(nil), countingHandler(&calls, http.StatusCreated))

	h.ServeHTTP(httptest.NewRecorder(), post("k1", `{"a":1}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, post("k1", `{"a":2}`))

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "idempotency_key_conflict")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGuardPassesThroughWithoutKey(t *testing.T) {
	var calls int32
	h := guarded(NewMemoryStore(nil), countingHandler(&calls, http.StatusCreated))

	h.ServeHTTP(httptest.NewRecorder(), post("", `{}`))
	h.ServeHTTP(httptest.NewRecorder(), post("", `{}`))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	required := guarded(NewMemoryStore(nil), countingHandler(&calls, http.StatusCreated), WithRequiredKey())
	rr := httptest.NewRecorder()
	required.ServeHTTP(rr, post("", `{}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGuardReleasesKeyOnServerError(t *testing.T) {
	var calls int32
	store := NewMemoryStore(nil)
	h := guarded(store, countingHandler(&calls, http.StatusBadGateway))

	h.ServeHTTP(httptest.NewRecorder(), post("k1", `{}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, post("k1", `{}`))

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Empty(t, rr.Header().Get(ReplayHeader))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGuardIgnoresReads(t *testing.T) {
	var calls int32
	h := guarded(NewMemoryStore(nil), countingHandler(&calls, http.StatusOK))
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(HeaderName, "k")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGuardRejectsKeyHeldByAnotherRequest(t *testing.T) {
	store := NewMemoryStore(nil)
	_, err := store.Reserve(context.Background(), digest("admin-uid", "k1"), "other", time.Minute)
	require.NoError(t, err)

	var calls int32
	h := guarded(store, countingHandler(&calls, http.StatusCreated))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, post("k1", `{}`))
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

type failingStore struct{ *MemoryStore }

func (failingStore) Reserve(context.Context, string, string, time.Duration) (Reservation, error) {
	return Reservation{}, errors.New("redis down")
}

func TestGuardReportsStoreFailure(t *testing.T) {
	var events []string
	var calls int32
	h := guarded(failingStore{NewMemoryStore(nil)}, countingHandler(&calls, http.StatusCreated),
		WithLogger(func(_ context.Context, event string, _ map[string]any) { events = append(events, event) }))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, post("k1", `{}`))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, []string{"idempotency.reserve_failed"}, events)
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(func() time.Time { return now })
	ctx := context.Background()

	res, err := store.Reserve(ctx, "k", "fp", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StateNew, res.State)
	require.NoError(t, store.Complete(ctx, "k", "fp", Response{Status: 201, Body: []byte("ok")}, time.Minute))

	res, err = store.Reserve(ctx, "k", "fp", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, []byte("ok"), res.Response.Body)

	now = now.Add(2 * time.Minute)
	res, err = store.Reserve(ctx, "k", "fp", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StateNew, res.State)
}
