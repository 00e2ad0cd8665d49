package chatclient

import (
	"go-dm/internal/chat"
	"go-dm/internal/realtime"
)

// UnseenTracker counts messages that arrived for conversations the viewer is
// not looking at. Like MessageList it is advanced only through its methods,
// each returning a new value.
type UnseenTracker struct {
	viewerID string
	active   string
	entries  []realtime.SidebarMessage
}

func NewUnseenTracker(viewerID string) UnseenTracker {
	return UnseenTracker{viewerID: viewerID}
}

// Active is the conversation key being viewed, or "" when none is.
func (t UnseenTracker) Active() string { return t.active }

// Receive records m unless the viewer is looking at the conversation with its
// sender. The bool reports whether a notification should be shown.
func (t UnseenTracker) Receive(m realtime.SidebarMessage) (UnseenTracker, bool) {
	if m.ReceiverID != t.viewerID || m.SenderID == t.viewerID {
		return t, false
	}
	if t.active != "" && t.active == chat.ConversationKey(t.viewerID, m.SenderID) {
		return t, false
	}
	for _, e := range t.entries {
		if e.ID == m.ID {
			return t, false
		}
	}

	entries := make([]realtime.SidebarMessage, 0, len(t.entries)+1)
	entries = append(entries, t.entries...)
	entries = append(entries, m)
	return UnseenTracker{viewerID: t.viewerID, active: t.active, entries: entries}, true
}

// Navigate switches the active conversation to key and clears what was unseen
// from its partner. An empty or foreign key leaves no conversation active.
func (t UnseenTracker) Navigate(key string) UnseenTracker {
	partner, err := chat.Partner(key, t.viewerID)
	if err != nil {
		return UnseenTracker{viewerID: t.viewerID, entries: t.entries}
	}

	entries := make([]realtime.SidebarMessage, 0, len(t.entries))
	for _, e := range t.entries {
		if e.SenderID != partner {
			entries = append(entries, e)
		}
	}
	return UnseenTracker{viewerID: t.viewerID, active: chat.ConversationKey(t.viewerID, partner), entries: entries}
}

func (t UnseenTracker) Count(friendID string) int {
	n := 0
	for _, e := range t.entries {
		if e.SenderID == friendID {
			n++
		}
	}
	return n
}

// Counts maps each sender with unseen messages to how many there are.
func (t UnseenTracker) Counts() map[string]int {
	counts := make(map[string]int)
	for _, e := range t.entries {
		counts[e.SenderID]++
	}
	return counts
}

// Entries returns the unseen messages in arrival order.
func (t UnseenTracker) Entries() []realtime.SidebarMessage {
	return append([]realtime.SidebarMessage(nil), t.entries...)
}
