package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "diwali:social:"

type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisStoreWithClient(redis.NewClient(opts)), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func countersKey(id string) string { return keyPrefix + id }
func commentsKey(id string) string { return keyPrefix + id + ":comments" }

func (s *RedisStore) Get(ctx context.Context, id string) (*SocialState, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	var counters *redis.MapStringStringCmd
	var comments *redis.StringSliceCmd
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		counters = p.HGetAll(ctx, countersKey(id))
		comments = p.LRange(ctx, commentsKey(id), 0, -1)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read social state %s: %w", id, err)
	}

	state := emptyState()
	fields := counters.Val()
	state.Likes, _ = strconv.Atoi(fields["likes"])
	state.Cheers, _ = strconv.Atoi(fields["cheers"])
	for _, raw := range comments.Val() {
		var c Comment
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			slog.Warn("skipping malformed comment", "submission", id, "error", err)
			continue
		}
		state.Comments = append(state.Comments, c)
	}
	return state, nil
}

func (s *RedisStore) incr(ctx context.Context, id, field string) (*SocialState, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	if err := s.client.HIncrBy(ctx, countersKey(id), field, 1).Err(); err != nil {
		return nil, fmt.Errorf("failed to increment %s for %s: %w", field, id, err)
	}
	return s.Get(ctx, id)
}

func (s *RedisStore) Like(ctx context.Context, id string) (*SocialState, error) {
	return s.incr(ctx, id, "likes")
}

func (s *RedisStore) Cheer(ctx context.Context, id string) (*SocialState, error) {
	return s.incr(ctx, id, "cheers")
}

func (s *RedisStore) AddComment(ctx context.Context, id, user, text string) (*SocialState, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	c, err := newComment(user, text, s.now())
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	// LPUSH keeps the list newest first
	if err := s.client.LPush(ctx, commentsKey(id), raw).Err(); err != nil {
		return nil, fmt.Errorf("failed to add comment for %s: %w", id, err)
	}
	return s.Get(ctx, id)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
