package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"go-dm/internal/kv"
)

// Repository is the per-conversation message log. Each conversation is a sorted
// set scored by message timestamp.
type Repository struct {
	kv *kv.Client
}

func NewRepository(c *kv.Client) *Repository {
	return &Repository{kv: c}
}

func messagesKey(conversationKey string) string {
	return "chat:" + conversationKey + ":messages"
}

// Append validates msg and adds it to the log of conversationKey. Messages with
// equal timestamps are all kept since their encoded records differ by id.
func (r *Repository) Append(ctx context.Context, conversationKey string, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := msg.BelongsTo(conversationKey); err != nil {
		return err
	}

	buf, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return r.kv.ZAdd(ctx, messagesKey(conversationKey), float64(msg.Timestamp), string(buf))
}

// Range returns the records between start and stop inclusive in ascending
// timestamp order. One record that fails validation fails the whole read.
func (r *Repository) Range(ctx context.Context, conversationKey string, start, stop int64) ([]Message, error) {
	if _, _, err := ParseConversationKey(conversationKey); err != nil {
		return nil, err
	}

	raw, err := r.kv.ZRange(ctx, messagesKey(conversationKey), start, stop)
	if err != nil {
		return nil, err
	}

	msgs := make([]Message, 0, len(raw))
	for i, rec := range raw {
		m, err := ParseMessage([]byte(rec))
		if err != nil {
			return nil, fmt.Errorf("record %d of %s: %w", i, conversationKey, err)
		}
		if err := m.BelongsTo(conversationKey); err != nil {
			return nil, fmt.Errorf("record %d of %s: %w", i, conversationKey, err)
		}
		msgs = append(msgs, m)
	}
	if err := ValidateMessages(msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}
