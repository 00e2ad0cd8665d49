package chatclient

import (
	"go-dm/internal/chat"
	"sort"
)

// MessageList is the live message list of one conversation view. It is kept in
// ascending timestamp order; messages with equal timestamps stay in arrival
// order. Values are never mutated: Append returns a new list.
type MessageList struct {
	msgs []chat.Message
	ids  map[string]struct{}
}

// NewMessageList seeds a list from a history read. Duplicate ids keep the first copy.
func NewMessageList(initial []chat.Message) MessageList {
	msgs := make([]chat.Message, 0, len(initial))
	ids := make(map[string]struct{}, len(initial))
	for _, m := range initial {
		if _, dup := ids[m.ID]; dup {
			continue
		}
		ids[m.ID] = struct{}{}
		msgs = append(msgs, m)
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp < msgs[j].Timestamp })
	return MessageList{msgs: msgs, ids: ids}
}

// Append merges m into the list. It reports false, and returns l unchanged,
// when a message with the same id is already present.
func (l MessageList) Append(m chat.Message) (MessageList, bool) {
	if _, dup := l.ids[m.ID]; dup {
		return l, false
	}

	// Usually the end; a late event lands after everything not newer than it.
	at := sort.Search(len(l.msgs), func(i int) bool { return l.msgs[i].Timestamp > m.Timestamp })

	msgs := make([]chat.Message, 0, len(l.msgs)+1)
	msgs = append(msgs, l.msgs[:at]...)
	msgs = append(msgs, m)
	msgs = append(msgs, l.msgs[at:]...)

	ids := make(map[string]struct{}, len(l.ids)+1)
	for id := range l.ids {
		ids[id] = struct{}{}
	}
	ids[m.ID] = struct{}{}

	return MessageList{msgs: msgs, ids: ids}, true
}

func (l MessageList) Len() int { return len(l.msgs) }

// Messages returns a copy in ascending timestamp order.
func (l MessageList) Messages() []chat.Message {
	return append([]chat.Message(nil), l.msgs...)
}

// Row is one rendered message.
type Row struct {
	chat.Message
	FromViewer bool
	// HasNextFromSameSender is set when the next newer message has the same
	// sender, so the two render as one group.
	HasNextFromSameSender bool
}

// Display returns the rows newest first, as a chat window renders them.
func (l MessageList) Display(viewerID string) []Row {
	rows := make([]Row, len(l.msgs))
	for i, m := range l.msgs {
		rows[len(l.msgs)-1-i] = Row{
			Message:               m,
			FromViewer:            m.SenderID == viewerID,
			HasNextFromSameSender: i+1 < len(l.msgs) && l.msgs[i+1].SenderID == m.SenderID,
		}
	}
	return rows
}
