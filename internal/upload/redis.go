package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hypeshelf/hypeshelf/internal/apperror"
)

var _ TicketStore = (*RedisStore)(nil)

const keyPrefix = "hypeshelf:upload:"

// RedisStore keeps tickets in Redis with a server-side expiry.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// ConnectRedis returns a client for addr after a successful PING, so callers
// can fall back to MemoryStore when Redis is unreachable.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("upload: pinging redis at %s: %w", addr, err)
	}
	return client, nil
}

func (s *RedisStore) Issue(ctx context.Context, subject string, ttl time.Duration) (Ticket, error) {
	t := Ticket{
		Token:     newToken(),
		Subject:   subject,
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := s.client.SetEx(ctx, keyPrefix+t.Token, subject, ttl).Err(); err != nil {
		return Ticket{}, fmt.Errorf("upload: storing ticket: %w", err)
	}
	return t, nil
}

// Consume uses GETDEL so concurrent redemptions of one token cannot both
// succeed.
func (s *RedisStore) Consume(ctx context.Context, token string) (string, error) {
	subject, err := s.client.GetDel(ctx, keyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperror.NotFound("upload ticket", token)
		}
		return "", fmt.Errorf("upload: consuming ticket: %w", err)
	}
	return subject, nil
}
