// internal/infra/telegram/notifier.go
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"jobboard/internal/domain"
	"jobboard/internal/errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultAPIBase = "https://api.telegram.org"

// Options configures the bot client.
type Options struct {
	APIBase       string
	BotToken      string
	ChatID        string
	Timeout       time.Duration
	RatePerSecond float64
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

type botNotifier struct {
	client  *http.Client
	limiter *rate.Limiter
	opts    Options
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewNotifier returns a Notifier that posts to a Telegram chat through the
// Bot API sendMessage method.
func NewNotifier(opts Options, logger *zap.Logger) domain.Notifier {
	if opts.APIBase == "" {
		opts.APIBase = DefaultAPIBase
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	return &botNotifier{
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		opts:    opts,
		logger:  logger.With(zap.String("component", "telegram")),
		tracer:  otel.Tracer("jobboard-telegram"),
	}
}

func (n *botNotifier) Notify(ctx context.Context, text string) error {
	ctx, span := n.tracer.Start(ctx, "telegram.SendMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("telegram.chat_id", n.opts.ChatID),
		attribute.Int("message.size", len(text)),
	)

	if n.opts.BotToken == "" || n.opts.ChatID == "" {
		err := errors.InvalidInput("telegram bot token and chat id must be configured", nil)
		span.RecordError(err)
		span.SetStatus(codes.Error, "notifier not configured")
		return err
	}

	if err := n.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limited")
		return errors.RateLimit("waiting for telegram rate limiter", err)
	}

	if err := n.send(ctx, text); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sendMessage failed")
		return err
	}
	n.logger.Debug("notification sent", zap.String("chat_id", n.opts.ChatID))
	return nil
}

func (n *botNotifier) send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                n.opts.ChatID,
		Text:                  text,
		DisableWebPagePreview: false,
	})
	if err != nil {
		return errors.Internal("marshaling sendMessage request", err)
	}

	url := strings.TrimRight(n.opts.APIBase, "/") + "/bot" + n.opts.BotToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Internal("creating sendMessage request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.Unavailable("calling telegram sendMessage", err)
	}
	defer resp.Body.Close()

	// Read a small portion of the body; only ok/description matter.
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var parsed apiResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		desc := parsed.Description
		if desc == "" {
			desc = "Unknown error"
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return errors.RateLimit("telegram sendMessage", fmt.Errorf("Telegram API Error: %s", desc))
		}
		return errors.Unavailable("telegram sendMessage", fmt.Errorf("Telegram API Error: %s (%s)", desc, resp.Status))
	}
	if parsed.Description != "" {
		return errors.Unavailable("telegram sendMessage", fmt.Errorf("Telegram API Error: %s", parsed.Description))
	}
	return nil
}
