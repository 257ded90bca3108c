package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/gravityease/internal/config"
	"github.com/goodtune/gravityease/internal/storage"
	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces every key written by the store.
const keyPrefix = "gravityease"

// Store implements the storage.Store interface using Redis
type Store struct {
	client       *redis.Client
	sessionStore *sessionStore
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Host may already carry the port
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{
		client: client,
		sessionStore: &sessionStore{
			client: client,
			commit: redis.NewScript(commitSessionScript),
		},
	}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Sessions returns the SessionStore implementation
func (s *Store) Sessions() storage.SessionStore {
	return s.sessionStore
}

func sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", keyPrefix, id)
}

func dayIndexKey(userID, date string) string {
	return fmt.Sprintf("%s:sessions:%s:%s", keyPrefix, userID, date)
}

func dailyKey(userID, date string) string {
	return fmt.Sprintf("%s:daily:%s:%s", keyPrefix, userID, date)
}

func daysKey(userID string) string {
	return fmt.Sprintf("%s:days:%s", keyPrefix, userID)
}

func usersKey() string {
	return keyPrefix + ":users"
}
