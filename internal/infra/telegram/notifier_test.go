package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jobboard/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestNotifier(t *testing.T, handler http.HandlerFunc) (*httptest.Server, Options) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, Options{APIBase: srv.URL, BotToken: "123:abc", ChatID: "@jobs", Timeout: time.Second}
}

func TestNotify_PostsSendMessage(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		gotBody sendMessageRequest
		gotType string
	)
	_, opts := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	})

	err := NewNotifier(opts, zap.NewNop()).Notify(context.Background(), "Role: Go\n")

	require.NoError(t, err)
	assert.Equal(t, "/bot123:abc/sendMessage", gotPath)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, sendMessageRequest{ChatID: "@jobs", Text: "Role: Go\n", DisableWebPagePreview: false}, gotBody)
}

func TestNotify_DisablePreviewIsSentExplicitly(t *testing.T) {
	t.Parallel()

	var raw map[string]any
	_, opts := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	require.NoError(t, NewNotifier(opts, zap.NewNop()).Notify(context.Background(), "x"))
	assert.Equal(t, false, raw["disable_web_page_preview"])
}

func TestNotify_Non2xxFails(t *testing.T) {
	t.Parallel()

	_, opts := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	})

	err := NewNotifier(opts, zap.NewNop()).Notify(context.Background(), "x")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bad Request: chat not found")
	assert.True(t, errors.Is(err, errors.ErrTypeUnavailable))
}

func TestNotify_DescriptionOn2xxFails(t *testing.T) {
	t.Parallel()

	_, opts := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"Forbidden: bot was kicked"}`))
	})

	err := NewNotifier(opts, zap.NewNop()).Notify(context.Background(), "x")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot was kicked")
}

func TestNotify_TooManyRequestsIsRateLimit(t *testing.T) {
	t.Parallel()

	_, opts := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Too Many Requests: retry after 5"}`))
	})

	err := NewNotifier(opts, zap.NewNop()).Notify(context.Background(), "x")

	assert.True(t, errors.Is(err, errors.ErrTypeRateLimit))
}

func TestNotify_UnconfiguredFailsWithoutCalling(t *testing.T) {
	t.Parallel()

	called := false
	_, opts := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) { called = true })
	opts.BotToken = ""

	err := NewNotifier(opts, zap.NewNop()).Notify(context.Background(), "x")

	assert.True(t, errors.Is(err, errors.ErrTypeInvalidInput))
	assert.False(t, called)
}

func TestNotify_CanceledContext(t *testing.T) {
	t.Parallel()

	_, opts := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, NewNotifier(opts, zap.NewNop()).Notify(ctx, "x"))
}
