package kv

import "context"

// Command is one entry of the fixed vocabulary the store adapter accepts.
type Command string

const (
	CmdGet       Command = "get"
	CmdSet       Command = "set"
	CmdDel       Command = "del"
	CmdZAdd      Command = "zadd"
	CmdZRange    Command = "zrange"
	CmdSAdd      Command = "sadd"
	CmdSRem      Command = "srem"
	CmdSIsMember Command = "sismember"
	CmdSMembers  Command = "smembers"
)

func (c Command) valid() bool {
	switch c {
	case CmdGet, CmdSet, CmdDel, CmdZAdd, CmdZRange, CmdSAdd, CmdSRem, CmdSIsMember, CmdSMembers:
		return true
	}
	return false
}

// Executor runs a single command against the remote store.
// A nil result with a nil error means the key does not exist.
type Executor interface {
	Execute(ctx context.Context, cmd Command, args ...any) (any, error)
}

// Op is one queued command of a transaction.
type Op struct {
	Cmd  Command
	Args []any
}

// Transactor is implemented by executors that can apply several commands as one unit.
type Transactor interface {
	ExecuteTx(ctx context.Context, ops ...Op) ([]any, error)
}

func commandArgs(cmd Command, args []any) []any {
	out := make([]any, 0, len(args)+1)
	out = append(out, string(cmd))
	return append(out, args...)
}
