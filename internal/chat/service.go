package chat

import (
	"context"
	"fmt"
	"go-dm/internal/user"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FriendChecker is what the service needs from the friend graph.
type FriendChecker interface {
	AreFriends(ctx context.Context, a, b string) (bool, error)
}

// Notifier fans a committed message out to connected clients. It must not fail
// the send: the message is already durable when it is called.
type Notifier interface {
	MessageSent(ctx context.Context, conversationKey string, msg Message, sender user.User)
}

// Conversation is a validated history read.
type Conversation struct {
	Key      string    `json:"chatId"`
	Partner  user.User `json:"partner"`
	Messages []Message `json:"messages"`
}

type Service struct {
	repo     *Repository
	friends  FriendChecker
	users    user.Directory
	notifier Notifier
	log      *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewService(repo *Repository, friends FriendChecker, users user.Directory, notifier Notifier, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		friends:  friends,
		users:    users,
		notifier: notifier,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Send appends text from sender to the conversation chatID and notifies both sides.
func (s *Service) Send(ctx context.Context, sender user.User, chatID, text string) (Message, error) {
	partnerID, err := Partner(chatID, sender.ID)
	if err != nil {
		return Message{}, err
	}
	key := ConversationKey(sender.ID, partnerID)

	ok, err := s.friends.AreFriends(ctx, sender.ID, partnerID)
	if err != nil {
		return Message{}, fmt.Errorf("check friendship: %w", err)
	}
	if !ok {
		return Message{}, ErrNotFriends
	}

	msg := Message{
		ID:         s.newID(),
		SenderID:   sender.ID,
		ReceiverID: partnerID,
		Text:       strings.TrimSpace(text),
		Timestamp:  s.now().UnixMilli(),
	}
	if err := s.repo.Append(ctx, key, msg); err != nil {
		return Message{}, err
	}

	s.log.Debug("message appended",
		zap.String("chat_id", key),
		zap.String("message_id", msg.ID),
	)
	s.notifier.MessageSent(ctx, key, msg, sender)
	return msg, nil
}

// Conversation loads the full history of chatID for viewerID.
func (s *Service) Conversation(ctx context.Context, viewerID, chatID string) (*Conversation, error) {
	partnerID, err := Partner(chatID, viewerID)
	if err != nil {
		return nil, err
	}
	key := ConversationKey(viewerID, partnerID)

	partner, err := s.users.Get(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.repo.Range(ctx, key, 0, -1)
	if err != nil {
		return nil, err
	}
	return &Conversation{Key: key, Partner: partner, Messages: msgs}, nil
}
