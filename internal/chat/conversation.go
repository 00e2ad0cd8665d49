package chat

import (
	"strings"
)

// Separator joins the two participant ids of a conversation key. User ids
// must not contain it.
const Separator = "--"

// ConversationKey returns the canonical key for the conversation between a and b.
// The result is the same for either argument order.
func ConversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + Separator + b
}

// ParseConversationKey splits a key back into its two participants, in the order
// they appear. Either order is accepted; ConversationKey gives the canonical one.
func ParseConversationKey(key string) (string, string, error) {
	parts := strings.Split(key, Separator)
	if len(parts) != 2 || !ValidUserID(parts[0]) || !ValidUserID(parts[1]) || parts[0] == parts[1] {
		return "", "", ErrInvalidConversation
	}
	return parts[0], parts[1], nil
}

// Partner returns the participant of key that is not viewer.
func Partner(key, viewer string) (string, error) {
	a, b, err := ParseConversationKey(key)
	if err != nil {
		return "", err
	}
	switch viewer {
	case a:
		return b, nil
	case b:
		return a, nil
	}
	return "", ErrNotParticipant
}

// ValidUserID reports whether id can take part in a conversation key.
func ValidUserID(id string) bool {
	return id != "" && !strings.Contains(id, Separator) && !strings.HasPrefix(id, "-") && !strings.HasSuffix(id, "-")
}
