package session

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/datviz/datviz-app/internal/router"
)

const (
	// SessionPrefix is the Redis key prefix for all session hashes.
	SessionPrefix = "session:"

	// SessionTTL is the time-to-live for session keys in Redis. Every write
	// refreshes it.
	SessionTTL = 24 * time.Hour

	fieldAuthenticated = "user_authenticated"
	fieldStatus        = "user_status"
	fieldUUID          = "user_uuid"
	fieldCreatedAt     = "created_at"
	fieldLastActive    = "last_active"
)

// Session is the stored state of one browser session. The flag fields are
// nil when the key has never been written.
type Session struct {
	ID                string
	UserAuthenticated *string
	UserStatus        *string
	UserUUID          string
	CreatedAt         int64
	LastActive        int64
}

// Flags returns the guard flags of the session. *Session is a
// router.SessionContext.
func (s *Session) Flags() router.Flags {
	return router.Flags{
		UserAuthenticated: s.UserAuthenticated,
		UserStatus:        s.UserStatus,
	}
}

// Store manages session state in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a new session store connected to Redis.
func NewStore(redisAddr string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing Redis client.
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Create stores a new session with no flags set.
func (s *Store) Create(ctx context.Context, sessionID string) error {
	key := SessionPrefix + sessionID
	now := time.Now().Unix()

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, fieldCreatedAt, now, fieldLastActive, now)
	pipe.Expire(ctx, key, SessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: create: %w", err)
	}
	return nil
}

// Get retrieves a session from Redis. Returns nil if not found.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	fields, err := s.client.HGetAll(ctx, SessionPrefix+sessionID).Result()
	if err != nil {
		return nil, fmt.Errorf("session: get: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil // not found
	}

	sess := &Session{ID: sessionID, UserUUID: fields[fieldUUID]}
	if v, ok := fields[fieldAuthenticated]; ok {
		sess.UserAuthenticated = &v
	}
	if v, ok := fields[fieldStatus]; ok {
		sess.UserStatus = &v
	}
	sess.CreatedAt, _ = strconv.ParseInt(fields[fieldCreatedAt], 10, 64)
	sess.LastActive, _ = strconv.ParseInt(fields[fieldLastActive], 10, 64)
	return sess, nil
}

// Flags returns the guard flags of a session. A missing session has no
// flags.
func (s *Store) Flags(ctx context.Context, sessionID string) (router.Flags, error) {
	if sessionID == "" {
		return router.Flags{}, nil
	}
	sess, err := s.Get(ctx, sessionID)
	if err != nil || sess == nil {
		return router.Flags{}, err
	}
	return sess.Flags(), nil
}

// LoadFlags is a router.FlagLoader reading the session chosen by Middleware,
// or the request cookie when the middleware did not run.
func (s *Store) LoadFlags(r *http.Request) (router.Flags, error) {
	id := IDFromContext(r.Context())
	if id == "" {
		if c, err := r.Cookie(CookieName); err == nil {
			id = c.Value
		}
	}
	return s.Flags(r.Context(), id)
}

// MarkStatus records the user status and, when known, the user UUID.
func (s *Store) MarkStatus(ctx context.Context, sessionID, status, userUUID string) error {
	values := []interface{}{fieldStatus, status, fieldLastActive, time.Now().Unix()}
	if userUUID != "" {
		values = append(values, fieldUUID, userUUID)
	}
	return s.write(ctx, sessionID, "mark status", values...)
}

// MarkAuthenticated sets the authentication flag along with the status.
func (s *Store) MarkAuthenticated(ctx context.Context, sessionID, status, userUUID string) error {
	values := []interface{}{
		fieldAuthenticated, "true",
		fieldStatus, status,
		fieldLastActive, time.Now().Unix(),
	}
	if userUUID != "" {
		values = append(values, fieldUUID, userUUID)
	}
	return s.write(ctx, sessionID, "mark authenticated", values...)
}

// Clear removes the flags and user UUID but keeps the session.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	key := SessionPrefix + sessionID
	pipe := s.client.Pipeline()
	pipe.HDel(ctx, key, fieldAuthenticated, fieldStatus, fieldUUID)
	pipe.HSet(ctx, key, fieldLastActive, time.Now().Unix())
	pipe.Expire(ctx, key, SessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

// RefreshTTL extends the session's TTL and reports whether the session
// still exists.
func (s *Store) RefreshTTL(ctx context.Context, sessionID string) (bool, error) {
	ok, err := s.client.Expire(ctx, SessionPrefix+sessionID, SessionTTL).Result()
	if err != nil {
		return false, fmt.Errorf("session: refresh: %w", err)
	}
	return ok, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages.
func (s *Store) Client() *redis.Client {
	return s.client
}

func (s *Store) write(ctx context.Context, sessionID, op string, values ...interface{}) error {
	key := SessionPrefix + sessionID
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, values...)
	pipe.Expire(ctx, key, SessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: %s: %w", op, err)
	}
	return nil
}
