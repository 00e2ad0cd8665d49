package chat

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConversation = errors.New("invalid conversation id")
	ErrNotParticipant      = errors.New("not a participant of this conversation")
	ErrNotFriends          = errors.New("participants are not friends")
)

// ValidationError reports stored or incoming data that does not have the Message shape.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid message: %s: %v", e.Reason, e.Err)
	}
	return "invalid message: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }
