package realtime

import (
	"context"
	"go-dm/internal/chat"
	"go-dm/internal/user"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher triggers events on the broker. Every method is fire and forget:
// failures are logged and the peer sees the change on its next load.
type Publisher struct {
	redis redis.UniversalClient
	log   *zap.Logger
}

func NewPublisher(redisClient redis.UniversalClient, log *zap.Logger) *Publisher {
	return &Publisher{redis: redisClient, log: log}
}

// Publish sends payload as event on channel.
func (p *Publisher) Publish(ctx context.Context, channel, event string, payload Payload) {
	buf, err := encode(channel, event, payload)
	if err != nil {
		p.log.Warn("encode event failed", zap.String("channel", channel), zap.String("event", event), zap.Error(err))
		return
	}
	if err := p.redis.Publish(ctx, channel, buf).Err(); err != nil {
		p.log.Warn("publish failed", zap.String("channel", channel), zap.String("event", event), zap.Error(err))
	}
}

func (p *Publisher) publishTo(ctx context.Context, scope Scope, id, event string, payload Payload) {
	channel, err := ChannelFor(scope, id)
	if err != nil {
		p.log.Warn("cannot name channel", zap.Stringer("scope", scope), zap.String("id", id), zap.Error(err))
		return
	}
	p.Publish(ctx, channel, event, payload)
}

// MessageSent implements chat.Notifier.
func (p *Publisher) MessageSent(ctx context.Context, conversationKey string, msg chat.Message, sender user.User) {
	p.publishTo(ctx, ScopeConversation, conversationKey, EventMessageSent, MessageSent{Message: msg})
	p.publishTo(ctx, ScopeUserChats, msg.ReceiverID, EventMessageSent, SidebarMessage{
		Message:    msg,
		SenderName: sender.Name,
		SenderImg:  sender.Image,
	})
}

// FriendRequestReceived implements friend.Notifier.
func (p *Publisher) FriendRequestReceived(ctx context.Context, recipientID string, requester user.User) {
	p.publishTo(ctx, ScopeFriendRequests, recipientID, EventFriendRequestReceived, friendRequestFrom(requester))
}

// FriendRequestAccepted implements friend.Notifier. Both sides hear about it:
// the requester gains a friend and the acceptor's other sessions drop the request.
func (p *Publisher) FriendRequestAccepted(ctx context.Context, acceptor, requester user.User) {
	p.publishTo(ctx, ScopeFriendRequests, requester.ID, EventFriendRequestAccepted, FriendAccepted{friendRequestFrom(acceptor)})
	p.publishTo(ctx, ScopeFriendRequests, acceptor.ID, EventFriendRequestAccepted, FriendAccepted{friendRequestFrom(requester)})
}

func friendRequestFrom(u user.User) FriendRequest {
	return FriendRequest{
		SenderID:    u.ID,
		SenderName:  u.Name,
		SenderEmail: u.Email,
		SenderImg:   u.Image,
	}
}
