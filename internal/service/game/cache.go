package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	appErr "holdem-service/pkg/errors"

	"github.com/redis/go-redis/v9"
)

// TableCache keeps one JSON snapshot per table in Redis. Writes are
// conditional on the version that was read.
type TableCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewTableCache(rdb *redis.Client, ttl time.Duration) *TableCache {
	return &TableCache{rdb: rdb, ttl: ttl}
}

func buildStateKey(tableID int64) string {
	return fmt.Sprintf("table:state:%d", tableID)
}

// Get returns nil without error on a cache miss.
func (c *TableCache) Get(ctx context.Context, tableID int64) (*TableState, error) {
	data, err := c.rdb.Get(ctx, buildStateKey(tableID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var state TableState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode table state %d: %w", tableID, err)
	}
	return &state, nil
}

// Save stores state if the cached version still equals expected and bumps
// state.Version. A lost race yields ErrStateConflict.
func (c *TableCache) Save(ctx context.Context, state *TableState, expected int64) error {
	key := buildStateKey(state.TableID)
	next := *state
	next.Version = expected + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return err
	}

	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		var version int64
		if err == nil {
			var head struct {
				Version int64 `json:"version"`
			}
			if err := json.Unmarshal(current, &head); err != nil {
				return err
			}
			version = head.Version
		}
		if version != expected {
			return appErr.ErrStateConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return appErr.ErrStateConflict
	}
	if err != nil {
		return err
	}
	state.Version = next.Version
	return nil
}

func (c *TableCache) Delete(ctx context.Context, tableID int64) error {
	return c.rdb.Del(ctx, buildStateKey(tableID)).Err()
}
