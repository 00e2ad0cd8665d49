package chat

import (
	"context"
	"errors"
	"go-dm/internal/kv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRepository(t *testing.T) (*miniredis.Miniredis, *Repository) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, NewRepository(kv.NewClient(kv.NewRedisExecutor(rdb)))
}

func msg(id, from, to, text string, ts int64) Message {
	return Message{ID: id, SenderID: from, ReceiverID: to, Text: text, Timestamp: ts}
}

func TestAppendThenRangeAscending(t *testing.T) {
	_, repo := newTestRepository(t)
	ctx := context.Background()
	key := ConversationKey("U2", "U1")

	in := []Message{
		msg("m3", "U2", "U1", "third", 3000),
		msg("m1", "U1", "U2", "hi", 1000),
		msg("m2", "U2", "U1", "hello", 2000),
	}
	for _, m := range in {
		if err := repo.Append(ctx, key, m); err != nil {
			t.Fatalf("append %s: %v", m.ID, err)
		}
	}

	got, err := repo.Range(ctx, key, 0, -1)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	want := []Message{in[1], in[2], in[0]}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}

	tail, err := repo.Range(ctx, key, -1, -1)
	if err != nil {
		t.Fatalf("range tail: %v", err)
	}
	if len(tail) != 1 || tail[0].ID != "m3" {
		t.Fatalf("expected last message m3, got %+v", tail)
	}
}

func TestAppendKeepsEqualTimestamps(t *testing.T) {
	_, repo := newTestRepository(t)
	ctx := context.Background()
	key := ConversationKey("U1", "U2")

	if err := repo.Append(ctx, key, msg("a", "U1", "U2", "same time", 5000)); err != nil {
		t.Fatalf("append a: %v", err)
	}
	if err := repo.Append(ctx, key, msg("b", "U2", "U1", "same time", 5000)); err != nil {
		t.Fatalf("append b: %v", err)
	}

	got, err := repo.Range(ctx, key, 0, -1)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both messages retained, got %+v", got)
	}
}

func TestAppendRejectsInvalid(t *testing.T) {
	_, repo := newTestRepository(t)
	ctx := context.Background()
	key := ConversationKey("U1", "U2")

	cases := map[string]Message{
		"empty text":     msg("m", "U1", "U2", "", 1),
		"blank text":     msg("m", "U1", "U2", "   ", 1),
		"no id":          msg("", "U1", "U2", "x", 1),
		"outsider":       msg("m", "U3", "U2", "x", 1),
		"self":           msg("m", "U1", "U1", "x", 1),
		"zero timestamp": msg("m", "U1", "U2", "x", 0),
	}
	for name, m := range cases {
		err := repo.Append(ctx, key, m)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", name, err)
		}
	}
}

func TestRangeFailsOnMalformedRecord(t *testing.T) {
	mr, repo := newTestRepository(t)
	ctx := context.Background()
	key := ConversationKey("U1", "U2")

	if err := repo.Append(ctx, key, msg("m1", "U1", "U2", "ok", 1000)); err != nil {
		t.Fatalf("append: %v", err)
	}

	bad := map[string]string{
		"not json":      `{broken`,
		"missing text":  `{"id":"m2","senderId":"U2","receiverId":"U1","timestamp":2000}`,
		"wrong type":    `{"id":"m2","senderId":"U2","receiverId":"U1","text":"x","timestamp":"2000"}`,
		"empty text":    `{"id":"m2","senderId":"U2","receiverId":"U1","text":"","timestamp":2000}`,
		"foreign users": `{"id":"m2","senderId":"U8","receiverId":"U9","text":"x","timestamp":2000}`,
	}
	for name, rec := range bad {
		mr.Del(messagesKey(key))
		if err := repo.Append(ctx, key, msg("m1", "U1", "U2", "ok", 1000)); err != nil {
			t.Fatalf("append: %v", err)
		}
		if _, err := mr.ZAdd(messagesKey(key), 2000, rec); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}

		got, err := repo.Range(ctx, key, 0, -1)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", name, err)
		}
		if got != nil {
			t.Fatalf("%s: expected no partial list, got %+v", name, got)
		}
	}
}

func TestRangeRejectsBadKey(t *testing.T) {
	_, repo := newTestRepository(t)
	if _, err := repo.Range(context.Background(), "lonely", 0, -1); !errors.Is(err, ErrInvalidConversation) {
		t.Fatalf("expected ErrInvalidConversation, got %v", err)
	}
}

func TestRangeEmptyConversation(t *testing.T) {
	_, repo := newTestRepository(t)
	got, err := repo.Range(context.Background(), ConversationKey("x", "y"), 0, -1)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty history, got %+v", got)
	}
}
