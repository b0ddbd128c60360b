package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nerrad567/gray-logic-access/internal/protocol"
)

// Redis key suffixes under the configured prefix.
const (
	pendingHashKey  = "pending"
	pendingIndexKey = "pending:by_time"
)

// RedisStore keeps pending commands in Redis so they survive a restart.
// Commands live in a hash keyed by message id; a sorted set scored by
// command timestamp (microseconds) drives sweeps.
type RedisStore struct {
	client goredis.Cmdable
	hash   string
	index  string
}

// record is the stored form; DeviceID is not part of the command's JSON.
type record struct {
	DeviceID string                `json:"device_id"`
	Command  *protocol.DoorCommand `json:"command"`
}

// NewRedisStore creates a store using keys under prefix (e.g. "accesscore:").
func NewRedisStore(client goredis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		hash:   prefix + pendingHashKey,
		index:  prefix + pendingIndexKey,
	}
}

// Put inserts or replaces cmd.
func (s *RedisStore) Put(ctx context.Context, cmd *protocol.DoorCommand) error {
	data, err := json.Marshal(record{DeviceID: cmd.DeviceID, Command: cmd})
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, s.hash, cmd.MessageID, data)
		pipe.ZAdd(ctx, s.index, goredis.Z{Score: score(cmd.Timestamp), Member: cmd.MessageID})
		return nil
	})
	return err
}

// Take removes and returns the command, or nil if it is not pending.
func (s *RedisStore) Take(ctx context.Context, messageID string) (*protocol.DoorCommand, error) {
	var get *goredis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		get = pipe.HGet(ctx, s.hash, messageID)
		pipe.HDel(ctx, s.hash, messageID)
		pipe.ZRem(ctx, s.index, messageID)
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, err
	}

	raw, err := get.Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

// TakeOlderThan removes and returns commands stamped before cutoff.
func (s *RedisStore) TakeOlderThan(ctx context.Context, cutoff time.Time) ([]*protocol.DoorCommand, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.index, &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMicro(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("reading expiry index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var values *goredis.SliceCmd
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		values = pipe.HMGet(ctx, s.hash, ids...)
		pipe.HDel(ctx, s.hash, ids...)
		pipe.ZRem(ctx, s.index, members(ids)...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var expired []*protocol.DoorCommand
	for _, v := range values.Val() {
		raw, ok := v.(string)
		if !ok {
			// Taken by a concurrent acknowledgment.
			continue
		}
		cmd, err := decode(raw)
		if err != nil {
			return expired, err
		}
		expired = append(expired, cmd)
	}
	sortByTimestamp(expired)
	return expired, nil
}

// List returns the pending commands, oldest first.
func (s *RedisStore) List(ctx context.Context) ([]*protocol.DoorCommand, error) {
	all, err := s.client.HGetAll(ctx, s.hash).Result()
	if err != nil {
		return nil, err
	}
	cmds := make([]*protocol.DoorCommand, 0, len(all))
	for _, raw := range all {
		cmd, err := decode(raw)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	sortByTimestamp(cmds)
	return cmds, nil
}

// Len returns the number of pending commands.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.HLen(ctx, s.hash).Result()
	return int(n), err
}

func decode(raw string) (*protocol.DoorCommand, error) {
	var r record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("decoding command: %w", err)
	}
	if r.Command == nil {
		return nil, errors.New("ledger: stored record has no command")
	}
	r.Command.DeviceID = r.DeviceID
	return r.Command, nil
}

func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}

func members(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
