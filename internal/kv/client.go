package kv

import (
	"context"
	"encoding/json"
	"strconv"
)

// Client gives typed access to an Executor.
type Client struct {
	exec Executor
}

func NewClient(exec Executor) *Client {
	return &Client{exec: exec}
}

// Get returns the string stored at key; ok is false when the key is absent.
func (c *Client) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	res, err := c.exec.Execute(ctx, CmdGet, key)
	if err != nil || res == nil {
		return "", false, err
	}
	s, err := asString(CmdGet, res)
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

func (c *Client) Set(ctx context.Context, key, value string) error {
	_, err := c.exec.Execute(ctx, CmdSet, key, value)
	return err
}

// SetNX sets key only when it does not exist yet and reports whether it did.
func (c *Client) SetNX(ctx context.Context, key, value string) (bool, error) {
	res, err := c.exec.Execute(ctx, CmdSet, key, value, "NX")
	if err != nil {
		return false, err
	}
	return res != nil, nil
}

func (c *Client) Del(ctx context.Context, key string) error {
	_, err := c.exec.Execute(ctx, CmdDel, key)
	return err
}

// ZAdd adds member to the sorted set at key with the given score.
func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	_, err := c.exec.Execute(ctx, CmdZAdd, key, score, member)
	return err
}

// ZRange returns members between start and stop (inclusive, negative counts from the end)
// in ascending score order.
func (c *Client) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	res, err := c.exec.Execute(ctx, CmdZRange, key, start, stop)
	if err != nil {
		return nil, err
	}
	return asStrings(CmdZRange, res)
}

func (c *Client) SAdd(ctx context.Context, key, member string) error {
	_, err := c.exec.Execute(ctx, CmdSAdd, key, member)
	return err
}

func (c *Client) SRem(ctx context.Context, key, member string) error {
	_, err := c.exec.Execute(ctx, CmdSRem, key, member)
	return err
}

func (c *Client) SIsMember(ctx context.Context, key, member string) (bool, error) {
	res, err := c.exec.Execute(ctx, CmdSIsMember, key, member)
	if err != nil {
		return false, err
	}
	return asBool(CmdSIsMember, res)
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	res, err := c.exec.Execute(ctx, CmdSMembers, key)
	if err != nil {
		return nil, err
	}
	return asStrings(CmdSMembers, res)
}

// Atomic applies ops in one transaction when the executor supports it.
// Otherwise the ops run back to back and a failure part way leaves the
// earlier writes in place.
func (c *Client) Atomic(ctx context.Context, ops ...Op) error {
	if tx, ok := c.exec.(Transactor); ok {
		_, err := tx.ExecuteTx(ctx, ops...)
		return err
	}
	for _, op := range ops {
		if _, err := c.exec.Execute(ctx, op.Cmd, op.Args...); err != nil {
			return err
		}
	}
	return nil
}

// SupportsTransactions reports whether Atomic is really atomic.
func (c *Client) SupportsTransactions() bool {
	_, ok := c.exec.(Transactor)
	return ok
}

func asString(cmd Command, v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	}
	return "", unexpectedReply(cmd, v)
}

func asStrings(cmd Command, v any) ([]string, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, err := asString(cmd, item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, unexpectedReply(cmd, v)
}

func asBool(cmd Command, v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case int64:
		return b != 0, nil
	case int:
		return b != 0, nil
	case float64:
		return b != 0, nil
	case json.Number:
		n, err := b.Int64()
		if err != nil {
			return false, unexpectedReply(cmd, v)
		}
		return n != 0, nil
	case string:
		n, err := strconv.ParseInt(b, 10, 64)
		if err != nil {
			return false, unexpectedReply(cmd, v)
		}
		return n != 0, nil
	}
	return false, unexpectedReply(cmd, v)
}
