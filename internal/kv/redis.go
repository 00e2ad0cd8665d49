package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisExecutor speaks RESP to a Redis server through go-redis.
type RedisExecutor struct {
	rdb redis.UniversalClient
}

func NewRedisExecutor(rdb redis.UniversalClient) *RedisExecutor {
	return &RedisExecutor{rdb: rdb}
}

func (e *RedisExecutor) Execute(ctx context.Context, cmd Command, args ...any) (any, error) {
	if !cmd.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
	res, err := e.rdb.Do(ctx, commandArgs(cmd, args)...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, classifyRedisError(cmd, err)
	}
	return res, nil
}

// ExecuteTx wraps the ops in MULTI/EXEC.
func (e *RedisExecutor) ExecuteTx(ctx context.Context, ops ...Op) ([]any, error) {
	for _, op := range ops {
		if !op.Cmd.valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, op.Cmd)
		}
	}

	queued := make([]*redis.Cmd, len(ops))
	_, err := e.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, op := range ops {
			queued[i] = pipe.Do(ctx, commandArgs(op.Cmd, op.Args)...)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		cmd := Command("multi")
		for i, c := range queued {
			if c != nil && c.Err() != nil && !errors.Is(c.Err(), redis.Nil) {
				cmd = ops[i].Cmd
				break
			}
		}
		return nil, classifyRedisError(cmd, err)
	}

	out := make([]any, len(queued))
	for i, c := range queued {
		out[i] = c.Val()
	}
	return out, nil
}

func classifyRedisError(cmd Command, err error) error {
	var rerr redis.Error
	if errors.As(err, &rerr) {
		return &CommandError{Cmd: cmd, Status: rerr.Error()}
	}
	return &TransportError{Cmd: cmd, Err: err}
}
