package friend

import (
	"context"
	"fmt"
	"go-dm/internal/kv"
	"go-dm/internal/user"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Notifier tells connected clients about friend graph changes. Calls happen after
// the write is committed and never fail it.
type Notifier interface {
	FriendRequestReceived(ctx context.Context, recipientID string, requester user.User)
	FriendRequestAccepted(ctx context.Context, acceptor, requester user.User)
}

// Graph keeps symmetric friendship sets (user:{id}:friends) and one-directional
// incoming request sets (user:{id}:incoming_friend_requests).
type Graph struct {
	kv       *kv.Client
	users    user.Directory
	notifier Notifier
	log      *zap.Logger
}

func NewGraph(c *kv.Client, users user.Directory, notifier Notifier, log *zap.Logger) *Graph {
	if !c.SupportsTransactions() {
		log.Warn("store has no transactions; accepting a friend request writes both memberships back to back")
	}
	return &Graph{kv: c, users: users, notifier: notifier, log: log}
}

func friendsKey(id string) string { return "user:" + id + ":friends" }
func requestsKey(id string) string { return "user:" + id + ":incoming_friend_requests" }

func (g *Graph) AreFriends(ctx context.Context, a, b string) (bool, error) {
	return g.kv.SIsMember(ctx, friendsKey(a), b)
}

func (g *Graph) HasRequest(ctx context.Context, recipientID, requesterID string) (bool, error) {
	return g.kv.SIsMember(ctx, requestsKey(recipientID), requesterID)
}

// RequestFriend records that requester wants to befriend recipientID.
func (g *Graph) RequestFriend(ctx context.Context, requester user.User, recipientID string) error {
	if requester.ID == recipientID {
		return ErrSelfRequest
	}

	pending, err := g.HasRequest(ctx, recipientID, requester.ID)
	if err != nil {
		return fmt.Errorf("check pending request: %w", err)
	}
	if pending {
		return ErrDuplicateRequest
	}

	friends, err := g.AreFriends(ctx, requester.ID, recipientID)
	if err != nil {
		return fmt.Errorf("check friendship: %w", err)
	}
	if friends {
		return ErrAlreadyFriends
	}

	if err := g.kv.SAdd(ctx, requestsKey(recipientID), requester.ID); err != nil {
		return err
	}

	g.notifier.FriendRequestReceived(ctx, recipientID, requester)
	return nil
}

// AcceptFriend turns the pending request from requesterID into a friendship.
// Both memberships and the request removal go through one transaction when the
// store supports it.
func (g *Graph) AcceptFriend(ctx context.Context, acceptor user.User, requesterID string) error {
	friends, err := g.AreFriends(ctx, acceptor.ID, requesterID)
	if err != nil {
		return fmt.Errorf("check friendship: %w", err)
	}
	if friends {
		return ErrAlreadyFriends
	}

	pending, err := g.HasRequest(ctx, acceptor.ID, requesterID)
	if err != nil {
		return fmt.Errorf("check pending request: %w", err)
	}
	if !pending {
		return ErrNoSuchRequest
	}

	requester, err := g.users.Get(ctx, requesterID)
	if err != nil {
		return fmt.Errorf("load requester: %w", err)
	}

	err = g.kv.Atomic(ctx,
		kv.Op{Cmd: kv.CmdSAdd, Args: []any{friendsKey(acceptor.ID), requesterID}},
		kv.Op{Cmd: kv.CmdSAdd, Args: []any{friendsKey(requesterID), acceptor.ID}},
		kv.Op{Cmd: kv.CmdSRem, Args: []any{requestsKey(acceptor.ID), requesterID}},
	)
	if err != nil {
		return err
	}

	g.notifier.FriendRequestAccepted(ctx, acceptor, requester)
	return nil
}

// DenyFriend drops the pending request from requesterID.
func (g *Graph) DenyFriend(ctx context.Context, recipientID, requesterID string) error {
	pending, err := g.HasRequest(ctx, recipientID, requesterID)
	if err != nil {
		return fmt.Errorf("check pending request: %w", err)
	}
	if !pending {
		return ErrNoSuchRequest
	}
	return g.kv.SRem(ctx, requestsKey(recipientID), requesterID)
}

func (g *Graph) Friends(ctx context.Context, id string) ([]user.User, error) {
	ids, err := g.kv.SMembers(ctx, friendsKey(id))
	if err != nil {
		return nil, err
	}
	return g.resolve(ctx, ids)
}

func (g *Graph) IncomingRequests(ctx context.Context, id string) ([]user.User, error) {
	ids, err := g.kv.SMembers(ctx, requestsKey(id))
	if err != nil {
		return nil, err
	}
	return g.resolve(ctx, ids)
}

// resolve looks the ids up concurrently; they do not depend on each other.
func (g *Graph) resolve(ctx context.Context, ids []string) ([]user.User, error) {
	out := make([]user.User, len(ids))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(16)
	for i, id := range ids {
		i, id := i, id // per-iteration copies for pre-1.22 loop semantics
		eg.Go(func() error {
			u, err := g.users.Get(ctx, id)
			if err != nil {
				return fmt.Errorf("load user %s: %w", id, err)
			}
			out[i] = u
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
