package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go-dm/internal/realtime"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

var (
	ErrClosed  = errors.New("subscriber closed")
	ErrRefused = errors.New("subscription refused")
)

// Handler receives a decoded event on the dispatch goroutine. It must not block.
type Handler func(realtime.Event)

type binding struct {
	id uint64
	fn Handler
}

// Subscriber is one realtime connection. Decoded events are handed to bound
// handlers one at a time, in arrival order, on a single dispatch goroutine.
type Subscriber struct {
	conn *websocket.Conn
	log  *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	subs    map[string]bool
	pending map[string][]chan error
	// abandoned holds channels whose subscribe frame went out but whose every
	// waiter gave up. Their confirmation is answered with an unsubscribe.
	abandoned map[string]bool
	handlers  map[string]map[string][]binding
	nextID    uint64

	queue chan func()
	done  chan struct{}
	once  sync.Once
	err   error
}

// Dial opens a realtime connection to the gateway at url, authenticated with token.
func Dial(ctx context.Context, url, token string, log *zap.Logger) (*Subscriber, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	s := &Subscriber{
		conn:      conn,
		log:       log,
		subs:      make(map[string]bool),
		pending:   make(map[string][]chan error),
		abandoned: make(map[string]bool),
		handlers:  make(map[string]map[string][]binding),
		queue:     make(chan func(), 256),
		done:      make(chan struct{}),
	}
	go s.readPump()
	go s.dispatch()
	return s, nil
}

// Done is closed when the connection is gone.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Err reports why the connection ended.
func (s *Subscriber) Err() error {
	<-s.done
	return s.err
}

func (s *Subscriber) Close() error {
	s.writeMu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	s.shutdown(ErrClosed)
	return nil
}

func (s *Subscriber) shutdown(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
		s.conn.Close()
	})
}

// Subscribe joins channel and waits for the gateway to confirm it. Subscribing
// to a channel that is already joined returns immediately. When ctx ends first
// the channel is not left joined: a late confirmation is undone.
func (s *Subscriber) Subscribe(ctx context.Context, channel string) error {
	s.mu.Lock()
	if s.subs[channel] {
		s.mu.Unlock()
		return nil
	}
	delete(s.abandoned, channel)
	wait := make(chan error, 1)
	s.pending[channel] = append(s.pending[channel], wait)
	first := len(s.pending[channel]) == 1
	s.mu.Unlock()

	if first {
		if err := s.write(realtime.ControlFrame{Op: realtime.OpSubscribe, Channel: channel}); err != nil {
			s.dropWaiter(channel, wait)
			return err
		}
	}

	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		if s.abandon(channel, wait) {
			return ctx.Err()
		}
		// Settled while we were giving up; the result is already on its way.
		return <-wait
	case <-s.done:
		return ErrClosed
	}
}

// Unsubscribe leaves channel. It is a no-op when the channel is not joined.
func (s *Subscriber) Unsubscribe(channel string) error {
	s.mu.Lock()
	if !s.subs[channel] {
		s.mu.Unlock()
		return nil
	}
	delete(s.subs, channel)
	s.mu.Unlock()
	return s.write(realtime.ControlFrame{Op: realtime.OpUnsubscribe, Channel: channel})
}

// Bind registers fn for event on channel. The returned func removes it and may
// be called more than once.
func (s *Subscriber) Bind(channel, event string, fn Handler) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	byEvent, ok := s.handlers[channel]
	if !ok {
		byEvent = make(map[string][]binding)
		s.handlers[channel] = byEvent
	}
	byEvent[event] = append(byEvent[event], binding{id: id, fn: fn})
	s.mu.Unlock()

	return func() { s.unbind(channel, event, id) }
}

func (s *Subscriber) unbind(channel, event string, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byEvent := s.handlers[channel]
	list := byEvent[event]
	for i, b := range list {
		if b.id == id {
			byEvent[event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(byEvent[event]) == 0 {
		delete(byEvent, event)
	}
	if len(byEvent) == 0 {
		delete(s.handlers, channel)
	}
}

// Do queues fn on the dispatch goroutine. It reports false once the connection is gone.
func (s *Subscriber) Do(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.queue <- fn:
		return true
	case <-s.done:
		return false
	}
}

// Call runs fn on the dispatch goroutine and waits for it. Handlers must not use it.
func (s *Subscriber) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !s.Do(func() { fn(); close(finished) }) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

func (s *Subscriber) dispatch() {
	for {
		select {
		case fn := <-s.queue:
			fn()
		case <-s.done:
			return
		}
	}
}

func (s *Subscriber) write(frame realtime.ControlFrame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("%s %s: %w", frame.Op, frame.Channel, err)
	}
	return nil
}

func (s *Subscriber) dropWaiter(channel string, wait chan error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeWaiterLocked(channel, wait)
}

// abandon withdraws wait from channel's pending subscribe. It reports false
// when the subscribe has already been settled. The last waiter to leave marks
// the channel abandoned.
func (s *Subscriber) abandon(channel string, wait chan error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.removeWaiterLocked(channel, wait) {
		return false
	}
	if _, ok := s.pending[channel]; !ok {
		s.abandoned[channel] = true
	}
	return true
}

func (s *Subscriber) removeWaiterLocked(channel string, wait chan error) bool {
	list := s.pending[channel]
	found := false
	for i, w := range list {
		if w == wait {
			s.pending[channel] = append(list[:i:i], list[i+1:]...)
			found = true
			break
		}
	}
	if len(s.pending[channel]) == 0 {
		delete(s.pending, channel)
	}
	return found
}

func (s *Subscriber) readPump() {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				err = ErrClosed
			}
			s.shutdown(err)
			return
		}
		// The gateway batches queued frames into one message.
		for _, line := range bytes.Split(raw, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var env realtime.Envelope
			if err := json.Unmarshal(line, &env); err != nil {
				s.log.Warn("dropping undecodable frame", zap.Error(err))
				continue
			}
			s.route(env)
		}
	}
}

func (s *Subscriber) route(env realtime.Envelope) {
	switch env.Event {
	case realtime.EventSubscribed:
		s.settle(env.Channel, nil)
		return
	case realtime.EventSubscriptionError:
		s.settle(env.Channel, fmt.Errorf("%w: %s", ErrRefused, env.Channel))
		return
	}

	ev, err := realtime.Decode(env)
	if err != nil {
		s.log.Warn("dropping invalid event",
			zap.String("channel", env.Channel),
			zap.String("event", env.Event),
			zap.Error(err),
		)
		return
	}

	s.Do(func() {
		s.mu.Lock()
		list := append([]binding(nil), s.handlers[ev.Channel][ev.Name]...)
		s.mu.Unlock()
		for _, b := range list {
			b.fn(ev)
		}
	})
}

func (s *Subscriber) settle(channel string, err error) {
	s.mu.Lock()
	waiters := s.pending[channel]
	delete(s.pending, channel)
	orphaned := s.abandoned[channel] && len(waiters) == 0
	delete(s.abandoned, channel)
	switch {
	case orphaned && err == nil:
		// Nobody wants it any more. The frame is written before mu is released
		// so a later subscribe to the same channel is ordered after it.
		if werr := s.write(realtime.ControlFrame{Op: realtime.OpUnsubscribe, Channel: channel}); werr != nil {
			s.log.Debug("unsubscribe failed", zap.String("channel", channel), zap.Error(werr))
		}
	case err == nil:
		s.subs[channel] = true
	}
	s.mu.Unlock()

	for _, w := range waiters {
		w <- err
	}
}
