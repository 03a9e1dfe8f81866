package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"jobboard/internal/domain"
	apperrors "jobboard/internal/errors"
)

// SnapshotClient reads postings from a running server's public API.
type SnapshotClient struct {
	client  *http.Client
	baseURL string
}

// NewSnapshotClient returns a SnapshotSource backed by GET {baseURL}/api/snapshot.
func NewSnapshotClient(baseURL string, timeout time.Duration) *SnapshotClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SnapshotClient{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

var _ domain.SnapshotSource = (*SnapshotClient)(nil)

// Snapshot fetches the full collection, newest first. It makes a single
// attempt; callers decide whether to try again.
func (c *SnapshotClient) Snapshot(ctx context.Context) ([]domain.Posting, error) {
	var postings []domain.Posting
	if err := c.getJSON(ctx, "/api/snapshot", &postings); err != nil {
		return nil, err
	}
	return postings, nil
}

// Get fetches one posting. A 404 maps to domain.ErrPostingNotFound.
func (c *SnapshotClient) Get(ctx context.Context, id string) (*domain.Posting, error) {
	var detail struct {
		domain.Posting
		DetailURL string `json:"detail_url"`
	}
	if err := c.getJSON(ctx, "/api/jobs/"+url.PathEscape(id), &detail); err != nil {
		return nil, err
	}
	return &detail.Posting, nil
}

func (c *SnapshotClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.Unavailable("http request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrPostingNotFound
	}
	if resp.StatusCode >= 400 {
		// Read a small portion of the body for the error message.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		msg := strings.TrimSpace(string(body))
		if resp.StatusCode >= 500 {
			return apperrors.Unavailable("server error: "+resp.Status, errors.New(msg))
		}
		return apperrors.Internal("client error: "+resp.Status, errors.New(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
