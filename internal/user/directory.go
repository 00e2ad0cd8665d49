package user

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered to another user")
)

// Directory resolves users by id or email.
type Directory interface {
	Get(ctx context.Context, id string) (User, error)
	LookupEmail(ctx context.Context, email string) (string, error)
}

// Store is a Directory that can also record profiles.
type Store interface {
	Directory
	Save(ctx context.Context, u User) error
}
