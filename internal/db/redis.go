package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/eventdesk/booking-bot/internal/models"
)

const (
	redisRequestsKey = "booking:requests"
	redisCounterKey  = "booking:counter"
)

// RedisStore keeps requests in a hash and the counter in a plain key
type RedisStore struct {
	client *redis.Client
}

// OpenRedis connects to Redis and verifies the connection with PING
func OpenRedis(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, id int64) (*models.Request, bool, error) {
	data, err := s.client.HGet(ctx, redisRequestsKey, strconv.FormatInt(id, 10)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load request %d: %w", id, err)
	}

	var req models.Request
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		return nil, false, fmt.Errorf("failed to decode request %d: %w", id, err)
	}
	return &req, true, nil
}

func (s *RedisStore) Put(ctx context.Context, id int64, req *models.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request %d: %w", id, err)
	}
	if err := s.client.HSet(ctx, redisRequestsKey, strconv.FormatInt(id, 10), data).Err(); err != nil {
		return fmt.Errorf("failed to save request %d: %w", id, err)
	}
	return nil
}

func (s *RedisStore) NextID(ctx context.Context) (int64, error) {
	id, err := s.client.Incr(ctx, redisCounterKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	return id, nil
}

func (s *RedisStore) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	all, err := s.client.HGetAll(ctx, redisRequestsKey).Result()
	if err != nil {
		return nil, err
	}

	counts := make(map[models.Status]int)
	for id, data := range all {
		var req models.Request
		if err := json.Unmarshal([]byte(data), &req); err != nil {
			return nil, fmt.Errorf("failed to decode request %s: %w", id, err)
		}
		counts[req.Status]++
	}
	return counts, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
