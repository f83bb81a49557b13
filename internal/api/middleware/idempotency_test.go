package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ayo6706/backoffice-ledger/internal/idempotency"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memIdempotencyStore struct {
	mu      sync.Mutex
	records map[string]*idempotency.Record
	pending map[string]idempotency.Request
}

func newMemIdempotencyStore() *memIdempotencyStore {
	return &memIdempotencyStore{
		records: make(map[string]*idempotency.Record),
		pending: make(map[string]idempotency.Request),
	}
}

func (s *memIdempotencyStore) Lookup(ctx context.Context, req idempotency.Request) (*idempotency.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[req.Key]; ok {
		if rec.Owner != req.Owner {
			return nil, idempotency.ErrOwnerMismatch
		}
		if rec.Hash != req.Hash {
			return nil, idempotency.ErrHashMismatch
		}
		return rec, nil
	}
	if held, ok := s.pending[req.Key]; ok {
		if held.Owner != req.Owner {
			return nil, idempotency.ErrOwnerMismatch
		}
		if held.Hash != req.Hash {
			return nil, idempotency.ErrHashMismatch
		}
		return nil, idempotency.ErrInProgress
	}
	return nil, idempotency.ErrNotFound
}

func (s *memIdempotencyStore) Reserve(ctx context.Context, req idempotency.Request) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[req.Key]; ok {
		return false, nil
	}
	if _, ok := s.records[req.Key]; ok {
		return false, nil
	}
	s.pending[req.Key] = req
	return true, nil
}

func (s *memIdempotencyStore) Finalize(ctx context.Context, req idempotency.Request, resp idempotency.Response) (*idempotency.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, req.Key)
	resp.Body = append([]byte(nil), resp.Body...)
	rec := &idempotency.Record{Request: req, Response: resp, ServedBy: "memory"}
	s.records[req.Key] = rec
	return rec, nil
}

func (s *memIdempotencyStore) Release(ctx context.Context, req idempotency.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, req.Key)
	return nil
}

func (s *memIdempotencyStore) WaitForCompletion(ctx context.Context, req idempotency.Request) (*idempotency.Record, error) {
	return s.Lookup(ctx, req)
}

func withAccount(r *http.Request, accountID uuid.UUID) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), accountContextKey, accountID.String()))
}

func TestIdempotencyMiddlewareReplaysCompletedResponses(t *testing.T) {
	store := newMemIdempotencyStore()
	calls := 0
	h := IdempotencyMiddleware(store, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/withdraws", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "key-1")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	first := send(`{"amount":"40.00"}`)
	require.Equal(t, http.StatusCreated, first.Code)

	second := send(`{"amount":"40.00"}`)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "memory", second.Header().Get("X-Idempotent-Replay"))
	assert.JSONEq(t, `{"id":"1"}`, second.Body.String())

	third := send(`{"amount":"41.00"}`)
	require.Equal(t, http.StatusConflict, third.Code)

	assert.Equal(t, 1, calls)
}

func TestIdempotencyMiddlewareReleasesServerErrors(t *testing.T) {
	store := newMemIdempotencyStore()
	statuses := []int{http.StatusServiceUnavailable, http.StatusCreated}
	calls := 0
	h := IdempotencyMiddleware(store, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statuses[calls])
		calls++
	}))

	for _, want := range statuses {
		req := httptest.NewRequest(http.MethodPost, "/v1/withdraws", strings.NewReader(`{}`))
		req.Header.Set("Idempotency-Key", "key-2")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code)
	}
	assert.Equal(t, 2, calls)
}

func TestIdempotencyMiddlewareRequiresKey(t *testing.T) {
	h := IdempotencyMiddleware(newMemIdempotencyStore(), zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a key")
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/withdraws", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIdempotencyMiddlewareSkipsReadsAndNilStore(t *testing.T) {
	var typedNil *idempotency.Store
	cases := []struct {
		name   string
		store  IdempotencyStore
		method string
	}{
		{name: "get", store: newMemIdempotencyStore(), method: http.MethodGet},
		{name: "nil store", store: nil, method: http.MethodPost},
		{name: "typed nil store", store: typedNil, method: http.MethodPost},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			h := IdempotencyMiddleware(tc.store, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))
			req := httptest.NewRequest(tc.method, "/v1/withdraws", nil)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, http.StatusNoContent, w.Code)
		})
	}
}

func TestIdempotencyMiddlewareScopesKeysToAccount(t *testing.T) {
	store := newMemIdempotencyStore()
	var ran []string
	h := IdempotencyMiddleware(store, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, _ := AccountIDFromContext(r.Context())
		ran = append(ran, owner.String())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"account_id":"` + owner.String() + `"}`))
	}))

	alice, bob := uuid.New(), uuid.New()
	send := func(accountID uuid.UUID) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/withdraws", strings.NewReader(`{"amount":"40.00"}`))
		req.Header.Set("Idempotency-Key", "shared-key")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, withAccount(req, accountID))
		return w
	}

	first := send(alice)
	require.Equal(t, http.StatusCreated, first.Code)

	other := send(bob)
	require.Equal(t, http.StatusConflict, other.Code)
	assert.Empty(t, other.Header().Get("X-Idempotent-Replay"))
	assert.NotContains(t, other.Body.String(), alice.String())
	assert.Contains(t, other.Body.String(), "idempotency/key-conflict")

	again := send(alice)
	require.Equal(t, http.StatusCreated, again.Code)
	assert.Equal(t, "memory", again.Header().Get("X-Idempotent-Replay"))
	assert.JSONEq(t, `{"account_id":"`+alice.String()+`"}`, again.Body.String())

	assert.Equal(t, []string{alice.String()}, ran)
}

func TestIdempotencyMiddlewareRejectsForeignKeyWhileInFlight(t *testing.T) {
	store := newMemIdempotencyStore()
	alice, bob := uuid.New(), uuid.New()
	held := idempotency.Request{Key: "busy-key", Owner: alice.String(), Hash: "h"}
	reserved, err := store.Reserve(context.Background(), held)
	require.NoError(t, err)
	require.True(t, reserved)

	h := IdempotencyMiddleware(store, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for a key held by another account")
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/withdraws", strings.NewReader(`{}`))
	req.Header.Set("Idempotency-Key", "busy-key")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, withAccount(req, bob))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "another caller")
}
