package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/Tyrowin/convohub/internal/chat"
	"github.com/Tyrowin/convohub/internal/logging"
)

// ExpiringVerifier is a SessionVerifier that also knows when the session
// ends.
type ExpiringVerifier interface {
	VerifySessionExpiry(ctx context.Context, token string) (string, time.Time, error)
}

// Verifier caches successful token lookups of another SessionVerifier.
// Rejections are never cached, so a freshly issued token is usable at once.
// When the wrapped verifier is an ExpiringVerifier, an entry never outlives
// its session.
type Verifier struct {
	next   chat.SessionVerifier
	cache  Cacher
	ttl    time.Duration
	logger logging.Logger
	now    func() time.Time
}

func NewVerifier(next chat.SessionVerifier, cache Cacher, ttl time.Duration, logger logging.Logger) *Verifier {
	return &Verifier{next: next, cache: cache, ttl: ttl, logger: logger, now: time.Now}
}

func sessionKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "session:" + hex.EncodeToString(sum[:])
}

// VerifySessionToken serves from the cache when it can. Cache failures fall
// through to the wrapped verifier.
func (v *Verifier) VerifySessionToken(ctx context.Context, token string) (string, error) {
	key := sessionKey(token)

	var username string
	hit, err := v.cache.Get(ctx, key, &username)
	if err != nil {
		v.logger.Warn(ctx, "session cache read failed", "error", err)
	}
	if hit && username != "" {
		return username, nil
	}

	username, ttl, err := v.lookup(ctx, token)
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		return username, nil
	}
	if err := v.cache.SetWithTTL(ctx, key, username, ttl); err != nil {
		v.logger.Warn(ctx, "session cache write failed", "error", err)
	}
	return username, nil
}

// lookup asks the wrapped verifier and returns how long the answer may be
// cached.
func (v *Verifier) lookup(ctx context.Context, token string) (string, time.Duration, error) {
	ev, ok := v.next.(ExpiringVerifier)
	if !ok {
		username, err := v.next.VerifySessionToken(ctx, token)
		return username, v.ttl, err
	}

	username, expiresAt, err := ev.VerifySessionExpiry(ctx, token)
	if err != nil {
		return "", 0, err
	}
	return username, min(v.ttl, expiresAt.Sub(v.now())), nil
}
