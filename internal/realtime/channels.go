package realtime

import (
	"errors"
	"fmt"
	"go-dm/internal/chat"
	"strings"
)

// Scope says what a channel carries events for.
type Scope int

const (
	ScopeConversation Scope = iota + 1
	ScopeUserChats
	ScopeFriendRequests
)

func (s Scope) String() string {
	switch s {
	case ScopeConversation:
		return "conversation"
	case ScopeUserChats:
		return "user-chats"
	case ScopeFriendRequests:
		return "user-friend-requests"
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

var ErrBadChannel = errors.New("invalid channel")

const (
	chatsSuffix    = ":chats"
	requestsSuffix = ":incoming_friend_requests"
)

// Patterns covers every channel name ChannelFor can produce.
var Patterns = []string{"chat:*", "user:*"}

// ':' separates scope parts; the rest would be read as glob syntax by PSUBSCRIBE.
const reserved = ":*?[]\\"

// ChannelFor names the channel of one scope instance. For ScopeConversation id is
// a conversation key, otherwise a user id.
func ChannelFor(scope Scope, id string) (string, error) {
	if id == "" || strings.ContainsAny(id, reserved) {
		return "", fmt.Errorf("%w: %s id %q", ErrBadChannel, scope, id)
	}
	switch scope {
	case ScopeConversation:
		a, b, err := chat.ParseConversationKey(id)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrBadChannel, err)
		}
		// Either participant order names the same conversation, so the same channel.
		return "chat:" + chat.ConversationKey(a, b), nil
	case ScopeUserChats:
		return "user:" + id + chatsSuffix, nil
	case ScopeFriendRequests:
		return "user:" + id + requestsSuffix, nil
	}
	return "", fmt.Errorf("%w: unknown scope %d", ErrBadChannel, int(scope))
}

// ParseChannel is the inverse of ChannelFor. Only names ChannelFor produces are
// accepted, so a conversation channel must carry the canonical key.
func ParseChannel(name string) (Scope, string, error) {
	var (
		scope Scope
		id    string
	)
	switch {
	case strings.HasPrefix(name, "chat:"):
		scope, id = ScopeConversation, strings.TrimPrefix(name, "chat:")
	case strings.HasPrefix(name, "user:") && strings.HasSuffix(name, chatsSuffix):
		scope, id = ScopeUserChats, strings.TrimSuffix(strings.TrimPrefix(name, "user:"), chatsSuffix)
	case strings.HasPrefix(name, "user:") && strings.HasSuffix(name, requestsSuffix):
		scope, id = ScopeFriendRequests, strings.TrimSuffix(strings.TrimPrefix(name, "user:"), requestsSuffix)
	default:
		return 0, "", fmt.Errorf("%w: %q", ErrBadChannel, name)
	}

	if canonical, err := ChannelFor(scope, id); err != nil || canonical != name {
		return 0, "", fmt.Errorf("%w: %q", ErrBadChannel, name)
	}
	return scope, id, nil
}

// CanSubscribe reports whether viewerID may listen on channel: its own user
// channels and conversations it takes part in.
func CanSubscribe(viewerID, channel string) bool {
	scope, id, err := ParseChannel(channel)
	if err != nil {
		return false
	}
	if scope == ScopeConversation {
		_, err := chat.Partner(id, viewerID)
		return err == nil
	}
	return id == viewerID
}
