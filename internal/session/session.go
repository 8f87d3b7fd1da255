package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Session identifies the authenticated driver this agent runs for. The
// agent only reads sessions; login and refresh are the dashboard's job.
type Session struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	Token  string `json:"token"`
}

var ErrNotFound = errors.New("session not found")

// Store yields the current session.
type Store interface {
	Current(ctx context.Context) (Session, error)
}

// StaticStore serves a session fixed at startup, typically from env
// configuration. The default for standalone runs.
type StaticStore struct {
	Session Session
}

func (s *StaticStore) Current(ctx context.Context) (Session, error) {
	if s.Session.UserID == "" {
		return Session{}, ErrNotFound
	}
	return s.Session, nil
}

// sessionKeyPrefix matches the dashboard backend's session records.
const sessionKeyPrefix = "session:driver:"

// RedisStore reads the driver's session record from the platform's Redis,
// so the agent picks up token rotation without a restart.
type RedisStore struct {
	client   *redis.Client
	driverID string
}

func NewRedisStore(addr, password, driverID string) *RedisStore {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisStore{client: c, driverID: driverID}
}

func (s *RedisStore) Current(ctx context.Context) (Session, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+s.driverID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("session lookup: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("session decode: %w", err)
	}
	if sess.UserID == "" {
		sess.UserID = s.driverID
	}
	return sess, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
