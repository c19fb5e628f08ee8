package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/example/shared-ride/internal/models"
)

const DefaultRequestsKey = "ride_requests_geo"

// RedisStore keeps every request as a zero-score sorted-set member "<geohash>:<id>" so a
// geohash range becomes a ZRANGEBYLEX scan; the request body lives in a hash per id.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRequestsKey
	}
	return &RedisStore{client: client, key: key}
}

func (r *RedisStore) Upsert(ctx context.Context, c models.RideCandidate) error {
	if err := c.Origin.Validate(); err != nil {
		return err
	}
	if c.OriginGeohash == "" {
		c.OriginGeohash = Encode(c.Origin)
	}
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode request %s: %w", c.RequestID, err)
	}
	old, err := r.client.HGet(ctx, metaKey(c.RequestID), "geohash").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read request %s: %w", c.RequestID, err)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if old != "" && old != c.OriginGeohash {
			p.ZRem(ctx, r.key, member(old, c.RequestID))
		}
		p.ZAdd(ctx, r.key, redis.Z{Score: 0, Member: member(c.OriginGeohash, c.RequestID)})
		p.HSet(ctx, metaKey(c.RequestID), "geohash", c.OriginGeohash, "data", string(b))
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert request %s: %w", c.RequestID, err)
	}
	return nil
}

func (r *RedisStore) Remove(ctx context.Context, requestID string) error {
	old, err := r.client.HGet(ctx, metaKey(requestID), "geohash").Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read request %s: %w", requestID, err)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, r.key, member(old, requestID))
		p.Del(ctx, metaKey(requestID))
		return nil
	})
	return err
}

func (r *RedisStore) QueryByGeohashRange(ctx context.Context, q RangeQuery) ([]models.RideCandidate, error) {
	limit := limitOf(q)
	// one extra slot so the requester's own entry does not shrink the page
	members, err := r.client.ZRangeByLex(ctx, r.key, &redis.ZRangeBy{
		Min:   "[" + q.Bound.Lo,
		Max:   "[" + q.Bound.Hi,
		Count: int64(limit + 1),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("range %s..%s: %w", q.Bound.Lo, q.Bound.Hi, err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.StringCmd, len(members))
	_, err = r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, m := range members {
			cmds[i] = p.HGet(ctx, metaKey(idOf(m)), "data")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load requests: %w", err)
	}

	out := make([]models.RideCandidate, 0, len(members))
	for _, cmd := range cmds {
		raw, err := cmd.Result()
		if err != nil {
			continue // removed between the range scan and the load
		}
		var c models.RideCandidate
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			continue
		}
		if !matches(c, q) {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func member(hash, id string) string { return hash + ":" + id }

func idOf(m string) string {
	if i := strings.IndexByte(m, ':'); i >= 0 {
		return m[i+1:]
	}
	return m
}

func metaKey(id string) string { return "ride:request:" + id }
