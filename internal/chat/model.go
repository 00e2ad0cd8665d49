package chat

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Message is one entry of a conversation log. It is never changed after it is appended.
type Message struct {
	ID         string `json:"id" validate:"required"`
	SenderID   string `json:"senderId" validate:"required"`
	ReceiverID string `json:"receiverId" validate:"required,nefield=SenderID"`
	Text       string `json:"text" validate:"required,notblank"`
	Timestamp  int64  `json:"timestamp" validate:"gt=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Validate checks the Message shape.
func (m Message) Validate() error {
	if err := validate.Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ValidationError{Reason: verrs[0].Field() + " failed " + verrs[0].Tag(), Err: err}
		}
		return &ValidationError{Reason: "shape", Err: err}
	}
	return nil
}

// BelongsTo checks that sender and receiver are exactly the two participants of key.
func (m Message) BelongsTo(key string) error {
	a, b, err := ParseConversationKey(key)
	if err != nil {
		return err
	}
	if !(m.SenderID == a && m.ReceiverID == b) && !(m.SenderID == b && m.ReceiverID == a) {
		return &ValidationError{Reason: "participants do not match conversation " + key}
	}
	return nil
}

// ParseMessage decodes and validates one stored record.
func ParseMessage(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, &ValidationError{Reason: "decode", Err: err}
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// ValidateMessages checks an ordered collection: every element must be valid and
// ids must not repeat.
func ValidateMessages(msgs []Message) error {
	seen := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		if err := m.Validate(); err != nil {
			return err
		}
		if _, dup := seen[m.ID]; dup {
			return &ValidationError{Reason: "duplicate id " + m.ID}
		}
		seen[m.ID] = struct{}{}
	}
	return nil
}
