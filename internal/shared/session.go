package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionManager orchestrates cookie based sessions backed by Redis.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	secret     []byte
	now        func() time.Time
}

// Session holds per-request session data.
type Session struct {
	ID         string
	values     map[string]string
	userID     string
	issuedAt   time.Time
	expiresAt  time.Time
	manager    *SessionManager
	previousID string
	isNew      bool
	dirty      bool
	destroyed  bool
}

type sessionPayload struct {
	Values    map[string]string `json:"values"`
	UserID    string            `json:"user_id"`
	IssuedAt  time.Time         `json:"issued_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		secret:     []byte(secret),
		now:        time.Now,
	}
}

// WithClock replaces the wall clock used for issued-at and expiry stamps.
func (sm *SessionManager) WithClock(now func() time.Time) *SessionManager {
	if now != nil {
		sm.now = now
	}
	return sm
}

// Load returns the session named by the request cookie, or a fresh anonymous
// session when the cookie is absent, unknown or unreadable. Unknown ids are never
// adopted so a client cannot choose its own session id.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}
	sess, err := sm.Lookup(ctx, cookie.Value)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return sm.newSession(), nil
		}
		return nil, err
	}
	return sess, nil
}

// Lookup reads a stored session by id without creating one.
func (sm *SessionManager) Lookup(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	payload, err := sm.client.Get(ctx, sm.redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("session: get: %w", err)
	}
	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, ErrSessionNotFound
	}
	sess := &Session{
		ID:        id,
		values:    stored.Values,
		userID:    stored.UserID,
		issuedAt:  stored.IssuedAt,
		expiresAt: stored.ExpiresAt,
		manager:   sm,
	}
	if sess.values == nil {
		sess.values = make(map[string]string)
	}
	return sess, nil
}

// Commit persists the session and writes cookie headers as needed.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.destroyed {
		if err := sm.delete(ctx, sess.ID, sess.userID); err != nil {
			return err
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sm.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   sm.secure,
			SameSite: http.SameSiteStrictMode,
		})
		return nil
	}

	if sess.previousID != "" {
		if err := sm.delete(ctx, sess.previousID, sess.userID); err != nil {
			return err
		}
		sess.previousID = ""
	}

	if sess.ID == "" {
		sess.ID = sm.generateSessionID()
	}

	ttl := sm.ttl
	if sess.userID != "" && !sess.expiresAt.IsZero() {
		ttl = sess.expiresAt.Sub(sm.now())
		if ttl <= 0 {
			sm.Destroy(sess)
			return sm.Commit(ctx, w, r, sess)
		}
	}

	if sess.dirty || sess.isNew {
		data, err := json.Marshal(sessionPayload{
			Values:    sess.values,
			UserID:    sess.userID,
			IssuedAt:  sess.issuedAt,
			ExpiresAt: sess.expiresAt,
		})
		if err != nil {
			return err
		}
		pipe := sm.client.TxPipeline()
		pipe.Set(ctx, sm.redisKey(sess.ID), data, ttl)
		if sess.userID != "" {
			pipe.SAdd(ctx, sm.userKey(sess.userID), sess.ID)
			pipe.Expire(ctx, sm.userKey(sess.userID), sm.ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("session: save: %w", err)
		}
		sess.dirty = false
		sess.isNew = false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  sm.now().Add(ttl),
	})
	return nil
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// Revoke deletes a stored session immediately.
func (sm *SessionManager) Revoke(ctx context.Context, id string) error {
	sess, err := sm.Lookup(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}
	return sm.delete(ctx, sess.ID, sess.userID)
}

// RevokeUser deletes every stored session bound to userID and reports how many
// were removed.
func (sm *SessionManager) RevokeUser(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}
	ids, err := sm.client.SMembers(ctx, sm.userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("session: list user sessions: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sm.redisKey(id))
	}
	removed := 0
	if len(keys) > 0 {
		n, err := sm.client.Del(ctx, keys...).Result()
		if err != nil {
			return 0, fmt.Errorf("session: revoke user sessions: %w", err)
		}
		removed = int(n)
	}
	if err := sm.client.Del(ctx, sm.userKey(userID)).Err(); err != nil {
		return removed, fmt.Errorf("session: drop user index: %w", err)
	}
	return removed, nil
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Now returns the manager's clock reading.
func (sm *SessionManager) Now() time.Time {
	return sm.now()
}

// Session helpers

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	if s.values == nil {
		return ""
	}
	return s.values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if s.values == nil {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// BindUser associates the session with a user and starts its lifetime.
func (s *Session) BindUser(id string) {
	now := time.Now()
	ttl := time.Duration(0)
	if s.manager != nil {
		now = s.manager.now()
		ttl = s.manager.ttl
	}
	s.userID = id
	s.issuedAt = now.UTC()
	if ttl > 0 {
		s.expiresAt = s.issuedAt.Add(ttl)
	}
	s.dirty = true
}

// Rotate assigns a new id; the old id is deleted on commit.
func (s *Session) Rotate() {
	if !s.isNew && s.ID != "" {
		s.previousID = s.ID
	}
	if s.manager != nil {
		s.ID = s.manager.generateSessionID()
	} else {
		s.ID = uuid.NewString()
	}
	s.isNew = true
	s.dirty = true
}

// User returns the bound user ID, empty for anonymous sessions.
func (s *Session) User() string {
	return s.userID
}

// IssuedAt returns when the session was bound to its user.
func (s *Session) IssuedAt() time.Time {
	return s.issuedAt
}

// ExpiresAt returns the session expiry; zero for anonymous sessions.
func (s *Session) ExpiresAt() time.Time {
	return s.expiresAt
}

// Expired reports whether the session lifetime has elapsed at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.expiresAt.IsZero() && !now.Before(s.expiresAt)
}

func (sm *SessionManager) delete(ctx context.Context, id, userID string) error {
	pipe := sm.client.TxPipeline()
	pipe.Del(ctx, sm.redisKey(id))
	if userID != "" {
		pipe.SRem(ctx, sm.userKey(userID), id)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:      sm.generateSessionID(),
		values:  make(map[string]string),
		manager: sm,
		isNew:   true,
		dirty:   true,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}

func (sm *SessionManager) userKey(userID string) string {
	return "session:user:" + userID
}

func (sm *SessionManager) generateSessionID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	if len(sm.secret) > 0 {
		for i := range b {
			b[i] ^= sm.secret[i%len(sm.secret)]
		}
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
