package friend

import "errors"

var (
	ErrSelfRequest      = errors.New("cannot send a friend request to yourself")
	ErrDuplicateRequest = errors.New("friend request already sent")
	ErrAlreadyFriends   = errors.New("already friends")
	ErrNoSuchRequest    = errors.New("no pending friend request")
)
