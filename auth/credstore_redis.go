package auth

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SK-Rookies-Final-Project/Backend/errors"
)

const credentialKeyPrefix = "auditbridge:cred:"

// RedisCredentialStore is a CredentialStore backed by Redis, for deployments
// where login and stream-open may land on different processes. Entries carry
// a TTL so a missed purge cannot leave a credential cached forever.
type RedisCredentialStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCredentialStore creates a Redis-backed credential store
func NewRedisCredentialStore(addr, password string, db int, ttl time.Duration) *RedisCredentialStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCredentialStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

// Password implements CredentialStore
func (s *RedisCredentialStore) Password(ctx context.Context, username string) (string, bool) {
	val, err := s.client.Get(ctx, credentialKeyPrefix+username).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

// Store implements CredentialStore
func (s *RedisCredentialStore) Store(ctx context.Context, username, password string) error {
	err := s.client.Set(ctx, credentialKeyPrefix+username, password, s.ttl).Err()
	if err != nil {
		return errors.WrapTransient(err, "RedisCredentialStore", "Store", "set credential")
	}
	return nil
}

// Purge implements CredentialStore
func (s *RedisCredentialStore) Purge(ctx context.Context, username string) error {
	err := s.client.Del(ctx, credentialKeyPrefix+username).Err()
	if err != nil && !stderrors.Is(err, redis.Nil) {
		return errors.WrapTransient(err, "RedisCredentialStore", "Purge", "delete credential")
	}
	return nil
}

// Close releases the underlying Redis connection
func (s *RedisCredentialStore) Close() error {
	return s.client.Close()
}
