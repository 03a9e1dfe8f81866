package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jobboard/internal/domain"
	apperrors "jobboard/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotClient_Snapshot(t *testing.T) {
	t.Parallel()

	want := []domain.Posting{
		{ID: "b", Role: "SRE", CreatedAt: time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC)},
		{ID: "a", Role: "Backend", CreatedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/snapshot", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	got, err := NewSnapshotClient(srv.URL+"/", time.Second).Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.True(t, want[1].CreatedAt.Equal(got[1].CreatedAt))
}

func TestSnapshotClient_Errors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/snapshot":
			http.Error(w, "database unavailable", http.StatusBadGateway)
		case "/api/jobs/missing":
			http.Error(w, "not found", http.StatusNotFound)
		default:
			http.Error(w, "nope", http.StatusForbidden)
		}
	}))
	defer srv.Close()
	c := NewSnapshotClient(srv.URL, time.Second)

	_, err := c.Snapshot(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrTypeUnavailable))
	assert.Contains(t, err.Error(), "database unavailable")

	_, err = c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrPostingNotFound)

	_, err = c.Get(context.Background(), "other")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrTypeInternal))
}

func TestSnapshotClient_Get(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/jobs/p1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"p1","role":"SRE","company":"Acme","detail_url":"https://board.example/jobs/p1"}`))
	}))
	defer srv.Close()

	p, err := NewSnapshotClient(srv.URL, 0).Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "SRE", p.Role)
	assert.Equal(t, "Acme", p.Company)
}
