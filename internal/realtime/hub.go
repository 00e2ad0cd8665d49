package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type subscription struct {
	client  *Client
	channel string
	join    bool
}

// Hub fans broker messages out to the websocket clients subscribed to their
// channel. Run is the only goroutine that touches the maps below.
type Hub struct {
	clients  map[*Client]bool
	channels map[string]map[*Client]bool

	broadcast  chan *redis.Message // From Redis -> Clients
	register   chan *Client
	unregister chan *Client
	subscribe  chan subscription

	redis redis.UniversalClient
	log   *zap.Logger

	ready chan struct{}
	done  chan struct{}
}

func NewHub(redisClient redis.UniversalClient, log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		channels:   make(map[string]map[*Client]bool),
		broadcast:  make(chan *redis.Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan subscription),
		redis:      redisClient,
		log:        log,
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Ready is closed once the broker subscription is live.
func (h *Hub) Ready() <-chan struct{} { return h.ready }

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			h.remove(client)

		case sub := <-h.subscribe:
			if !h.clients[sub.client] {
				continue
			}
			if sub.join {
				h.join(sub.client, sub.channel)
			} else {
				h.leave(sub.client, sub.channel)
			}

		case msg := <-h.broadcast:
			payload := []byte(msg.Payload)
			for client := range h.channels[msg.Channel] {
				select {
				case client.send <- payload:
				default:
					h.log.Warn("dropping slow client", zap.String("user_id", client.user.ID))
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) join(client *Client, channel string) {
	if !CanSubscribe(client.user.ID, channel) {
		h.reply(client, channel, EventSubscriptionError)
		return
	}
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[*Client]bool)
		h.channels[channel] = subs
	}
	subs[client] = true
	client.channels[channel] = true
	h.reply(client, channel, EventSubscribed)
}

// leave is a no-op for channels the client never joined.
func (h *Hub) leave(client *Client, channel string) {
	delete(client.channels, channel)
	if subs, ok := h.channels[channel]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
}

func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	for channel := range client.channels {
		h.leave(client, channel)
	}
	delete(h.clients, client)
	close(client.send)
}

func (h *Hub) reply(client *Client, channel, event string) {
	buf, _ := json.Marshal(Envelope{Channel: channel, Event: event})
	select {
	case client.send <- buf:
	default:
		h.remove(client)
	}
}

// enqueue hands a request to Run unless the hub has stopped.
func enqueue[T any](h *Hub, ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-h.done:
		return false
	}
}

// SubscribeToRedis feeds every message on the realtime channel patterns to Run.
func (h *Hub) SubscribeToRedis(ctx context.Context) error {
	pubsub := h.redis.PSubscribe(ctx, Patterns...)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %v: %w", Patterns, err)
	}
	close(h.ready)
	h.log.Info("listening for realtime events", zap.Strings("patterns", Patterns))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			select {
			case h.broadcast <- msg:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
