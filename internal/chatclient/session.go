package chatclient

import (
	"context"
	"go-dm/internal/chat"
	"go-dm/internal/realtime"
	"sync"

	"go.uber.org/zap"
)

// Session holds the signed-in user's session-scoped subscriptions: incoming
// chat messages for the sidebar and friend request traffic. The fields from
// unseen on are owned by the subscriber's dispatch goroutine.
type Session struct {
	sub      *Subscriber
	viewerID string
	log      *zap.Logger
	channels []string
	unbind   []func()
	onNotify func(realtime.SidebarMessage)

	unseen   UnseenTracker
	requests []realtime.FriendRequest
	friends  []realtime.FriendRequest
	view     *View
}

// NewSession subscribes to viewerID's chats and friend request channels.
// onNotify, when set, runs on the dispatch goroutine for every message that
// lands in the unseen list.
func NewSession(ctx context.Context, sub *Subscriber, viewerID string, onNotify func(realtime.SidebarMessage), log *zap.Logger) (*Session, error) {
	chats, err := realtime.ChannelFor(realtime.ScopeUserChats, viewerID)
	if err != nil {
		return nil, err
	}
	requests, err := realtime.ChannelFor(realtime.ScopeFriendRequests, viewerID)
	if err != nil {
		return nil, err
	}

	s := &Session{
		sub:      sub,
		viewerID: viewerID,
		log:      log.With(zap.String("viewer_id", viewerID)),
		channels: []string{chats, requests},
		onNotify: onNotify,
		unseen:   NewUnseenTracker(viewerID),
	}
	s.unbind = []func(){
		sub.Bind(chats, realtime.EventMessageSent, s.onChatMessage),
		sub.Bind(requests, realtime.EventFriendRequestReceived, s.onFriendRequest),
		sub.Bind(requests, realtime.EventFriendRequestAccepted, s.onFriendAccepted),
	}

	for _, channel := range s.channels {
		if err := sub.Subscribe(ctx, channel); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Session) onChatMessage(ev realtime.Event) {
	m, ok := ev.Payload.(realtime.SidebarMessage)
	if !ok {
		return
	}
	next, notify := s.unseen.Receive(m)
	s.unseen = next
	if notify && s.onNotify != nil {
		s.onNotify(m)
	}
}

func (s *Session) onFriendRequest(ev realtime.Event) {
	fr, ok := ev.Payload.(realtime.FriendRequest)
	if !ok {
		return
	}
	s.requests = appendUnique(s.requests, fr)
}

func (s *Session) onFriendAccepted(ev realtime.Event) {
	fa, ok := ev.Payload.(realtime.FriendAccepted)
	if !ok {
		return
	}
	s.requests = without(s.requests, fa.SenderID)
	s.friends = appendUnique(s.friends, fa.FriendRequest)
}

func appendUnique(list []realtime.FriendRequest, fr realtime.FriendRequest) []realtime.FriendRequest {
	for _, existing := range list {
		if existing.SenderID == fr.SenderID {
			return list
		}
	}
	out := make([]realtime.FriendRequest, 0, len(list)+1)
	return append(append(out, list...), fr)
}

func without(list []realtime.FriendRequest, id string) []realtime.FriendRequest {
	out := make([]realtime.FriendRequest, 0, len(list))
	for _, fr := range list {
		if fr.SenderID != id {
			out = append(out, fr)
		}
	}
	return out
}

// UnseenCounts returns the per-friend unseen message counts.
func (s *Session) UnseenCounts(ctx context.Context) (map[string]int, error) {
	var counts map[string]int
	err := s.sub.Call(ctx, func() { counts = s.unseen.Counts() })
	return counts, err
}

// PendingRequests returns the friend requests received during the session.
func (s *Session) PendingRequests(ctx context.Context) ([]realtime.FriendRequest, error) {
	var out []realtime.FriendRequest
	err := s.sub.Call(ctx, func() { out = append(out, s.requests...) })
	return out, err
}

// NewFriends returns the friendships accepted during the session.
func (s *Session) NewFriends(ctx context.Context) ([]realtime.FriendRequest, error) {
	var out []realtime.FriendRequest
	err := s.sub.Call(ctx, func() { out = append(out, s.friends...) })
	return out, err
}

// Enter opens the conversation view for key, seeded with a history read. A
// view that is already open is closed first. The view lives until Close is
// called or ctx is done. key may name the participants in either order; the
// view keeps the canonical form.
func (s *Session) Enter(ctx context.Context, key string, initial []chat.Message) (*View, error) {
	partner, err := chat.Partner(key, s.viewerID)
	if err != nil {
		return nil, err
	}
	key = chat.ConversationKey(s.viewerID, partner)
	if err := chat.ValidateMessages(initial); err != nil {
		return nil, err
	}
	for _, m := range initial {
		if err := m.BelongsTo(key); err != nil {
			return nil, err
		}
	}
	channel, err := realtime.ChannelFor(realtime.ScopeConversation, key)
	if err != nil {
		return nil, err
	}

	var previous *View
	if err := s.sub.Call(ctx, func() { previous = s.view }); err != nil {
		return nil, err
	}
	if previous != nil {
		previous.Close()
	}

	v := &View{
		session: s,
		key:     key,
		channel: channel,
		list:    NewMessageList(initial),
		closed:  make(chan struct{}),
	}
	v.unbind = s.sub.Bind(channel, realtime.EventMessageSent, v.onMessage)

	if err := s.sub.Subscribe(ctx, channel); err != nil {
		v.unbind()
		if uerr := s.sub.Unsubscribe(channel); uerr != nil {
			s.log.Debug("unsubscribe failed", zap.String("channel", channel), zap.Error(uerr))
		}
		return nil, err
	}
	if err := s.sub.Call(ctx, func() {
		s.view = v
		s.unseen = s.unseen.Navigate(key)
	}); err != nil {
		v.Close()
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			v.Close()
		case <-v.closed:
		}
	}()
	return v, nil
}

// Close leaves the open view and drops the session subscriptions.
func (s *Session) Close() {
	var current *View
	if s.sub.Call(context.Background(), func() { current = s.view }) == nil && current != nil {
		current.Close()
	}
	for _, unbind := range s.unbind {
		unbind()
	}
	for _, channel := range s.channels {
		if err := s.sub.Unsubscribe(channel); err != nil {
			s.log.Debug("unsubscribe failed", zap.String("channel", channel), zap.Error(err))
		}
	}
}

// View is one open conversation. The message list is owned by the dispatch goroutine.
type View struct {
	session *Session
	key     string
	channel string
	unbind  func()

	list MessageList

	once   sync.Once
	closed chan struct{}
}

func (v *View) Key() string { return v.key }

func (v *View) onMessage(ev realtime.Event) {
	m, ok := ev.Payload.(realtime.MessageSent)
	if !ok {
		return
	}
	v.list, _ = v.list.Append(m.Message)
}

// Messages returns the live list in ascending timestamp order.
func (v *View) Messages(ctx context.Context) ([]chat.Message, error) {
	var out []chat.Message
	err := v.session.sub.Call(ctx, func() { out = v.list.Messages() })
	return out, err
}

// Rows returns the live list as rendered, newest first.
func (v *View) Rows(ctx context.Context) ([]Row, error) {
	var out []Row
	err := v.session.sub.Call(ctx, func() { out = v.list.Display(v.session.viewerID) })
	return out, err
}

// Done is closed once the view has been torn down.
func (v *View) Done() <-chan struct{} { return v.closed }

// Close unsubscribes from the conversation and unbinds its handler. It is safe
// to call more than once.
func (v *View) Close() {
	v.once.Do(func() {
		v.unbind()
		if err := v.session.sub.Unsubscribe(v.channel); err != nil {
			v.session.log.Debug("unsubscribe failed", zap.String("channel", v.channel), zap.Error(err))
		}
		s := v.session
		s.sub.Do(func() {
			if s.view == v {
				s.view = nil
				s.unseen = s.unseen.Navigate("")
			}
		})
		close(v.closed)
	})
}
