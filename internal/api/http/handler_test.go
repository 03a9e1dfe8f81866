package http

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"jobboard/internal/auth"
	"jobboard/internal/cache"
	"jobboard/internal/domain"
	"jobboard/internal/listsync"
	"jobboard/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fakeStore struct {
	mu       sync.Mutex
	postings []domain.Posting
	seq      int
	err      error
}

func (s *fakeStore) Snapshot(ctx context.Context) ([]domain.Posting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]domain.Posting(nil), s.postings...), nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (*domain.Posting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.postings {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, domain.ErrPostingNotFound
}

func (s *fakeStore) Insert(ctx context.Context, f domain.PostingFields) (*domain.Posting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.seq++
	p := domain.Posting{ID: fmt.Sprintf("new-%d", s.seq), CreatedAt: time.Now()}
	f.Apply(&p)
	s.postings = append([]domain.Posting{p}, s.postings...)
	return &p, nil
}

func (s *fakeStore) Update(ctx context.Context, id string, f domain.PostingFields) (*domain.Posting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for i := range s.postings {
		if s.postings[i].ID == id {
			f.Apply(&s.postings[i])
			p := s.postings[i]
			return &p, nil
		}
	}
	return nil, domain.ErrPostingNotFound
}

func (s *fakeStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for i := range s.postings {
		if s.postings[i].ID == id {
			s.postings = append(s.postings[:i], s.postings[i+1:]...)
			break
		}
	}
	return nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(ctx context.Context, text string) error { return nil }

type testServer struct {
	*httptest.Server
	store *fakeStore
	flow  *usecase.AdminFlow
}

func newTestServer(t *testing.T, n int) *testServer {
	t.Helper()

	store := &fakeStore{}
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		store.postings = append([]domain.Posting{{
			ID:        fmt.Sprintf("p%02d", i),
			Role:      "Engineer",
			Company:   "Acme",
			Heading:   "Go,Remote",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}}, store.postings...)
	}

	logger := zap.NewNop()
	engine := listsync.NewEngine(store, nil, listsync.Options{}, logger)
	require.NoError(t, engine.Initialize(context.Background()))

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	authService := auth.NewService(cache.NewSessionStore(cache.NewMemory(cache.DefaultOptions())), auth.Options{
		Email:        "admin@acme.io",
		PasswordHash: string(hash),
		SessionTTL:   time.Hour,
	}, logger)
	flow := usecase.NewAdminFlow(store, nopNotifier{}, usecase.AdminFlowOptions{PublicBaseURL: "https://board.example"}, logger)

	mux := http.NewServeMux()
	NewListingHandler(usecase.NewListingService(engine, store, "https://board.example", logger), logger).RegisterRoutes(mux)
	NewAdminHandler(authService, flow, logger).RegisterRoutes(mux)
	RegisterHealth(mux, engine)

	srv := httptest.NewServer(CORS(mux))
	t.Cleanup(func() {
		srv.Close()
		_ = flow.Close(context.Background())
	})
	return &testServer{Server: srv, store: store, flow: flow}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (s *testServer) login(t *testing.T) string {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/api/admin/login", "", LoginRequest{Email: "Admin@Acme.io", Password: "s3cret"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[LoginResponse](t, resp).Token
}

func validForm() SavePostingRequest {
	return SavePostingRequest{
		Role:        "Platform Engineer",
		Company:     "Initech",
		CompanyURL:  "https://initech.example",
		Description: "Keep the **lights** on",
		Heading:     "Go, Kubernetes",
		ApplyLink:   "https://initech.example/apply",
	}
}

func TestListRoute(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, 25)

	resp := srv.do(t, http.MethodGet, "/api/jobs", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[usecase.ListingPage](t, resp)
	assert.Equal(t, "ready", page.Status)
	assert.Len(t, page.Items, 10)
	assert.Equal(t, 25, page.Matches)
	assert.True(t, page.HasMore)
	assert.Equal(t, "p24", page.Items[0].ID, "newest first")

	resp = srv.do(t, http.MethodGet, "/api/jobs?visible=30&q=acme", "", nil)
	page = decode[usecase.ListingPage](t, resp)
	assert.Len(t, page.Items, 25)
	assert.False(t, page.HasMore)

	resp = srv.do(t, http.MethodGet, "/api/jobs?visible=lots", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDetailRoute(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, 2)

	resp := srv.do(t, http.MethodGet, "/api/jobs/p01", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decode[usecase.PostingDetail](t, resp)
	assert.Equal(t, "https://board.example/jobs/p01", detail.DetailURL)
	assert.Equal(t, []string{"Go", "Remote"}, detail.Tags)

	resp = srv.do(t, http.MethodGet, "/api/jobs/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Job not found", decode[ErrorResponse](t, resp).Error)
}

func TestSnapshotRoute(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, 3)

	resp := srv.do(t, http.MethodGet, "/api/snapshot", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	postings := decode[[]domain.Posting](t, resp)
	require.Len(t, postings, 3)
	assert.Equal(t, "p02", postings[0].ID)

	srv.store.mu.Lock()
	srv.store.err = stderrors.New("pool exhausted")
	srv.store.mu.Unlock()
	resp = srv.do(t, http.MethodGet, "/api/snapshot", "", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Internal server error", decode[ErrorResponse](t, resp).Error)
}

func TestAdminRoutesRequireSession(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, 1)

	resp := srv.do(t, http.MethodGet, "/api/admin/jobs", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = srv.do(t, http.MethodPost, "/api/admin/jobs", "made-up", validForm())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = srv.do(t, http.MethodPost, "/api/admin/login", "", LoginRequest{Email: "admin@acme.io", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid login credentials", decode[ErrorResponse](t, resp).Error)
}

func TestAdminCreateUpdateDelete(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, 1)
	token := srv.login(t)

	resp := srv.do(t, http.MethodGet, "/api/admin/jobs", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]domain.Posting](t, resp), 1)

	resp = srv.do(t, http.MethodPost, "/api/admin/jobs", token, validForm())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[domain.Posting](t, resp)
	assert.Equal(t, "Platform Engineer", created.Role)
	assert.Equal(t, created.ID, srv.flow.List()[0].ID, "created posting is prepended locally")

	form := validForm()
	form.Role = "Staff Platform Engineer"
	resp = srv.do(t, http.MethodPut, "/api/admin/jobs/"+created.ID, token, form)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Staff Platform Engineer", decode[domain.Posting](t, resp).Role)

	resp = srv.do(t, http.MethodPut, "/api/admin/jobs/ghost", token, form)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = srv.do(t, http.MethodDelete, "/api/admin/jobs/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Len(t, srv.flow.List(), 1)

	resp = srv.do(t, http.MethodGet, "/api/admin/notifications/failures", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]usecase.NotifyFailure](t, resp))

	resp = srv.do(t, http.MethodPost, "/api/admin/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = srv.do(t, http.MethodGet, "/api/admin/jobs", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminValidationFailure(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, 0)
	token := srv.login(t)

	form := validForm()
	form.Role = "  "
	form.ApplyLink = "initech.example/apply"
	resp := srv.do(t, http.MethodPost, "/api/admin/jobs", token, form)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decode[ErrorResponse](t, resp)
	assert.Equal(t, map[string]string{
		"role":      "Role is required",
		"applylink": "Valid URL is required",
	}, body.Fields)
	assert.Empty(t, srv.store.postings, "invalid forms never reach the store")
}

func TestAdminStoreErrorIsVerbatim(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, 0)
	token := srv.login(t)

	srv.store.mu.Lock()
	srv.store.err = stderrors.New(`duplicate key value violates unique constraint "jobs_pkey"`)
	srv.store.mu.Unlock()

	resp := srv.do(t, http.MethodPost, "/api/admin/jobs", token, validForm())
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, `duplicate key value violates unique constraint "jobs_pkey"`, decode[ErrorResponse](t, resp).Error)
	assert.Empty(t, srv.flow.List())
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, 2)

	resp := srv.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ready", body["status"])
	assert.EqualValues(t, 2, body["postings"])
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, 0)

	resp := srv.do(t, http.MethodOptions, "/api/admin/jobs", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
