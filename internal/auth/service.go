// internal/auth/service.go
package auth

import (
	"context"
	"crypto/subtle"
	stderrors "errors"
	"strings"
	"time"

	"jobboard/internal/domain"
	"jobboard/internal/errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Options holds the single administrator account.
type Options struct {
	Email        string
	PasswordHash string
	SessionTTL   time.Duration
}

// Service signs the administrator in and out and resolves bearer tokens
// to sessions.
type Service struct {
	sessions domain.SessionStore
	opts     Options
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewService(sessions domain.SessionStore, opts Options, logger *zap.Logger) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 12 * time.Hour
	}
	return &Service{
		sessions: sessions,
		opts:     opts,
		logger:   logger.With(zap.String("component", "auth")),
		tracer:   otel.Tracer("jobboard-auth"),
		now:      time.Now,
	}
}

// SignIn checks the credentials and starts a new session.
func (s *Service) SignIn(ctx context.Context, email, password string) (domain.Session, error) {
	ctx, span := s.tracer.Start(ctx, "auth.SignIn")
	defer span.End()

	if s.opts.Email == "" || s.opts.PasswordHash == "" {
		return domain.Session{}, errors.Unavailable("admin account is not configured", nil)
	}

	emailOK := subtle.ConstantTimeCompare(
		[]byte(strings.ToLower(strings.TrimSpace(email))),
		[]byte(strings.ToLower(s.opts.Email)),
	) == 1
	pwErr := bcrypt.CompareHashAndPassword([]byte(s.opts.PasswordHash), []byte(password))
	if !emailOK || pwErr != nil {
		span.SetStatus(codes.Error, "invalid credentials")
		s.logger.Warn("rejected admin sign-in", zap.String("email", email))
		return domain.Session{}, errors.Unauthorized("Invalid login credentials", domain.ErrInvalidCredentials)
	}

	session := domain.Session{
		Token:     uuid.NewString(),
		Email:     s.opts.Email,
		ExpiresAt: s.now().Add(s.opts.SessionTTL),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save session")
		return domain.Session{}, errors.Internal("saving session", err)
	}
	s.logger.Info("admin signed in", zap.String("email", session.Email), zap.Time("expires_at", session.ExpiresAt))
	return session, nil
}

// SignOut invalidates the session behind token. Unknown tokens are not an
// error.
func (s *Service) SignOut(ctx context.Context, token string) error {
	ctx, span := s.tracer.Start(ctx, "auth.SignOut")
	defer span.End()

	if err := s.sessions.Delete(ctx, token); err != nil && !stderrors.Is(err, domain.ErrSessionNotFound) {
		span.RecordError(err)
		return errors.Internal("deleting session", err)
	}
	return nil
}

// Resolve returns the live session for token.
func (s *Service) Resolve(ctx context.Context, token string) (domain.Session, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Resolve")
	defer span.End()

	if token == "" {
		return domain.Session{}, errors.Unauthorized("sign in required", domain.ErrSessionNotFound)
	}
	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		if stderrors.Is(err, domain.ErrSessionNotFound) {
			return domain.Session{}, errors.Unauthorized("sign in required", err)
		}
		span.RecordError(err)
		return domain.Session{}, errors.Internal("loading session", err)
	}
	if !session.Valid(s.now()) {
		_ = s.sessions.Delete(ctx, token)
		return domain.Session{}, errors.Unauthorized("session expired, sign in again", domain.ErrSessionExpired)
	}
	return session, nil
}

// HashPassword produces a hash suitable for the admin.password_hash setting.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
