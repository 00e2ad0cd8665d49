package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go-dm/internal/kv"
	"strings"
)

// KVDirectory reads users from the key-value store the way the identity
// provider's adapter lays them out: user:{id} holds the JSON record and
// user:email:{email} holds the id.
type KVDirectory struct {
	kv *kv.Client
}

func NewKVDirectory(c *kv.Client) *KVDirectory {
	return &KVDirectory{kv: c}
}

func userKey(id string) string { return "user:" + id }
func emailKey(email string) string { return "user:email:" + strings.ToLower(email) }

func (d *KVDirectory) Get(ctx context.Context, id string) (User, error) {
	raw, ok, err := d.kv.Get(ctx, userKey(id))
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, ErrNotFound
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return User{}, fmt.Errorf("decode user %s: %w", id, err)
	}
	return u, nil
}

func (d *KVDirectory) LookupEmail(ctx context.Context, email string) (string, error) {
	id, ok, err := d.kv.Get(ctx, emailKey(email))
	if err != nil {
		return "", err
	}
	if !ok || id == "" {
		return "", ErrNotFound
	}
	return id, nil
}

// Save writes both the record and the email index. An email held by another
// user is refused with ErrEmailTaken, and a changed email releases the old one.
func (d *KVDirectory) Save(ctx context.Context, u User) error {
	buf, err := json.Marshal(u)
	if err != nil {
		return err
	}
	prev, err := d.Get(ctx, u.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if u.Email != "" {
		if err := d.claimEmail(ctx, u); err != nil {
			return err
		}
	}

	ops := []kv.Op{{Cmd: kv.CmdSet, Args: []any{userKey(u.ID), string(buf)}}}
	if u.Email != "" {
		ops = append(ops, kv.Op{Cmd: kv.CmdSet, Args: []any{emailKey(u.Email), u.ID}})
	}
	if prev.Email != "" && !strings.EqualFold(prev.Email, u.Email) {
		ops = append(ops, kv.Op{Cmd: kv.CmdDel, Args: []any{emailKey(prev.Email)}})
	}
	return d.kv.Atomic(ctx, ops...)
}

// claimEmail takes the index entry for u's email unless another user holds it.
func (d *KVDirectory) claimEmail(ctx context.Context, u User) error {
	claimed, err := d.kv.SetNX(ctx, emailKey(u.Email), u.ID)
	if err != nil || claimed {
		return err
	}
	owner, err := d.LookupEmail(ctx, u.Email)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if owner != u.ID {
		return fmt.Errorf("%w: %s", ErrEmailTaken, u.Email)
	}
	return nil
}
