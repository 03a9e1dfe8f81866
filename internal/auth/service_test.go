package auth

import (
	"context"
	"testing"
	"time"

	"jobboard/internal/cache"
	"jobboard/internal/domain"
	"jobboard/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	store := cache.NewSessionStore(cache.NewMemory(cache.DefaultOptions()))
	return NewService(store, Options{Email: "admin@acme.io", PasswordHash: string(hash), SessionTTL: time.Hour}, zap.NewNop())
}

func TestSignIn(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)

	session, err := svc.SignIn(context.Background(), " Admin@Acme.io ", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "admin@acme.io", session.Email)
	assert.True(t, session.Valid(time.Now()))

	resolved, err := svc.Resolve(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.Token, resolved.Token)
}

func TestSignIn_RejectsBadCredentials(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)

	_, err := svc.SignIn(context.Background(), "admin@acme.io", "wrong")
	assert.True(t, errors.Is(err, errors.ErrTypeUnauthorized))
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.SignIn(context.Background(), "intruder@acme.io", "s3cret")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestSignOut_InvalidatesSession(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	session, err := svc.SignIn(context.Background(), "admin@acme.io", "s3cret")
	require.NoError(t, err)

	require.NoError(t, svc.SignOut(context.Background(), session.Token))
	require.NoError(t, svc.SignOut(context.Background(), session.Token), "second sign-out is harmless")

	_, err = svc.Resolve(context.Background(), session.Token)
	assert.True(t, errors.Is(err, errors.ErrTypeUnauthorized))
}

func TestResolve_Expired(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	session, err := svc.SignIn(context.Background(), "admin@acme.io", "s3cret")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = svc.Resolve(context.Background(), session.Token)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
}

func TestResolve_EmptyToken(t *testing.T) {
	t.Parallel()

	_, err := newTestService(t).Resolve(context.Background(), "")
	assert.True(t, errors.Is(err, errors.ErrTypeUnauthorized))
}

func TestHashPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("pw")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("pw")))
}
