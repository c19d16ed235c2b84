package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix  = "freightrates:"
	redisCreatedKey = redisKeyPrefix + "rates:created"
	redisRulesKey   = redisKeyPrefix + "casbin_rules"
)

// RedisStorage keeps each lane's records in a sorted set scored by creation
// time. A second sorted set indexes every record id by creation time so that
// period counts do not need to scan lanes.
type RedisStorage struct {
	client *redis.Client
}

// OpenRedis connects using a redis:// URL.
func OpenRedis(ctx context.Context, dsn string) (*RedisStorage, error) {
	if dsn == "" {
		dsn = "redis://localhost:6379/0"
	}
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("redis: parse dsn: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return NewRedisStorage(client), nil
}

// NewRedisStorage wraps an existing client.
func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

func laneRedisKey(origin, destination, mode string) string {
	return fmt.Sprintf("%srates:%s:%s|%s", redisKeyPrefix, mode, origin, destination)
}

func (s *RedisStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}

func (s *RedisStorage) LatestRate(ctx context.Context, origin, destination, mode string, now time.Time) (*CachedRate, error) {
	members, err := s.client.ZRevRange(ctx, laneRedisKey(origin, destination, mode), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	for _, m := range members {
		var rec CachedRate
		if err := json.Unmarshal([]byte(m), &rec); err != nil {
			return nil, fmt.Errorf("redis: decode rate: %w", err)
		}
		if rec.ValidAt(now) {
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *RedisStorage) SaveRate(ctx context.Context, rec CachedRate) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.ValidUntil = rec.ValidUntil.UTC()

	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	score := float64(rec.CreatedAt.UnixNano())
	id := rec.ID
	if id == "" {
		id = strconv.FormatInt(rec.CreatedAt.UnixNano(), 10)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, laneRedisKey(rec.Origin, rec.Destination, rec.Mode), redis.Z{Score: score, Member: string(b)})
		p.ZAdd(ctx, redisCreatedKey, redis.Z{Score: score, Member: id})
		return nil
	})
	return err
}

func (s *RedisStorage) CountRatesSince(ctx context.Context, since time.Time) (int64, error) {
	min := strconv.FormatInt(since.UnixNano(), 10)
	return s.client.ZCount(ctx, redisCreatedKey, min, "+inf").Result()
}

func (s *RedisStorage) LoadCasbinRules(ctx context.Context) ([]CasbinRule, error) {
	members, err := s.client.SMembers(ctx, redisRulesKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make([]CasbinRule, 0, len(members))
	for _, m := range members {
		var r CasbinRule
		if err := json.Unmarshal([]byte(m), &r); err != nil {
			return nil, fmt.Errorf("redis: decode rule: %w", err)
		}
		out = append(out, r)
	}
	// Set order is unspecified; keep policy loading deterministic.
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.PType != b.PType {
			return a.PType < b.PType
		}
		if a.V0 != b.V0 {
			return a.V0 < b.V0
		}
		if a.V1 != b.V1 {
			return a.V1 < b.V1
		}
		return a.V2 < b.V2
	})
	return out, nil
}

func (s *RedisStorage) AddCasbinRule(ctx context.Context, r CasbinRule) error {
	member, err := ruleMember(r)
	if err != nil {
		return err
	}
	return s.client.SAdd(ctx, redisRulesKey, member).Err()
}

func (s *RedisStorage) RemoveCasbinRule(ctx context.Context, r CasbinRule) error {
	member, err := ruleMember(r)
	if err != nil {
		return err
	}
	return s.client.SRem(ctx, redisRulesKey, member).Err()
}

// ruleMember encodes a rule without its id so equal rules map to one member.
func ruleMember(r CasbinRule) (string, error) {
	r.ID = 0
	b, err := json.Marshal(r)
	return string(b), err
}
