package kv

import (
	"errors"
	"fmt"
)

var ErrUnknownCommand = errors.New("kv: unknown command")

// TransportError means the store could not be reached or answered garbage.
type TransportError struct {
	Cmd Command
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("kv %s: transport: %v", e.Cmd, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// CommandError means the store answered but rejected the command.
type CommandError struct {
	Cmd    Command
	Status string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("kv %s: %s", e.Cmd, e.Status)
}

func unexpectedReply(cmd Command, v any) error {
	return &CommandError{Cmd: cmd, Status: fmt.Sprintf("unexpected reply of type %T", v)}
}
