package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"jobboard/internal/domain"
)

const sessionKeyPrefix = "jobboard:session:"

type cachedSession struct {
	domain.Session
}

func (c *cachedSession) MarshalBinary() ([]byte, error) {
	return json.Marshal(c.Session)
}

func (c *cachedSession) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, &c.Session)
}

// SessionStore keeps admin sessions in a Cache, expiring with the session.
type SessionStore struct {
	cache Cache
	now   func() time.Time
}

func NewSessionStore(c Cache) *SessionStore {
	return &SessionStore{cache: c, now: time.Now}
}

func (s *SessionStore) Save(ctx context.Context, session domain.Session) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return domain.ErrSessionExpired
	}
	return s.cache.Set(ctx, sessionKeyPrefix+session.Token, &cachedSession{Session: session}, ttl)
}

func (s *SessionStore) Get(ctx context.Context, token string) (domain.Session, error) {
	var cached cachedSession
	if err := s.cache.Get(ctx, sessionKeyPrefix+token, &cached); err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.Session{}, domain.ErrSessionNotFound
		}
		return domain.Session{}, err
	}
	return cached.Session, nil
}

func (s *SessionStore) Delete(ctx context.Context, token string) error {
	return s.cache.Delete(ctx, sessionKeyPrefix+token)
}
