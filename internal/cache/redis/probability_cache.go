package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vantagegraph/vantage/internal/domain"
)

// probTTL expires stale probabilities; a market with no flow for a day should
// not serve day-old prices as live.
const probTTL = 24 * time.Hour

// ProbabilityCache implements domain.ProbabilityCache using Redis hashes.
// Each event's latest probability is a hash at "prob:{eventID}" with fields
// "p" (fraction) and "ts" (Unix nanoseconds).
type ProbabilityCache struct {
	rdb *redis.Client
}

// NewProbabilityCache creates a ProbabilityCache backed by the given Client.
func NewProbabilityCache(c *Client) *ProbabilityCache {
	return &ProbabilityCache{rdb: c.Underlying()}
}

func probKey(eventID string) string {
	return "prob:" + eventID
}

// Set stores the latest probability and timestamp for an event.
func (pc *ProbabilityCache) Set(ctx context.Context, eventID string, p domain.Prob, ts time.Time) error {
	key := probKey(eventID)
	fields := map[string]interface{}{
		"p":  strconv.FormatFloat(p.Float(), 'f', -1, 64),
		"ts": strconv.FormatInt(ts.UnixNano(), 10),
	}
	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, probTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set probability %s: %w", eventID, err)
	}
	return nil
}

// Get retrieves the latest probability and timestamp for an event. It returns
// domain.ErrNotFound when the key does not exist.
func (pc *ProbabilityCache) Get(ctx context.Context, eventID string) (domain.Prob, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, probKey(eventID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get probability %s: %w", eventID, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	pStr, ok := vals["p"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	p, err := strconv.ParseFloat(pStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse probability %s: %w", eventID, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", eventID, err)
	}

	return domain.Prob(p), time.Unix(0, tsNano), nil
}

// GetMany retrieves probabilities for multiple events using a pipeline.
// Events with no cached value are silently omitted from the result map.
func (pc *ProbabilityCache) GetMany(ctx context.Context, eventIDs []string) (map[string]domain.Prob, error) {
	if len(eventIDs) == 0 {
		return map[string]domain.Prob{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(eventIDs))
	for _, id := range eventIDs {
		cmds[id] = pipe.HGetAll(ctx, probKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get probabilities pipeline: %w", err)
	}

	result := make(map[string]domain.Prob, len(eventIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		pStr, ok := vals["p"]
		if !ok {
			continue
		}
		p, err := strconv.ParseFloat(pStr, 64)
		if err != nil {
			continue
		}
		result[id] = domain.Prob(p)
	}

	return result, nil
}

// Compile-time interface check.
var _ domain.ProbabilityCache = (*ProbabilityCache)(nil)
