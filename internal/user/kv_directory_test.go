package user

import (
	"context"
	"errors"
	"go-dm/internal/kv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestDirectory(t *testing.T) (*miniredis.Miniredis, *KVDirectory) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, NewKVDirectory(kv.NewClient(kv.NewRedisExecutor(rdb)))
}

func TestKVDirectorySaveAndLookup(t *testing.T) {
	_, d := newTestDirectory(t)
	ctx := context.Background()

	u := User{ID: "u1", Name: "Ada", Email: "Ada@example.com", Image: "https://img/ada.png"}
	if err := d.Save(ctx, u); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := d.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != u {
		t.Fatalf("expected %+v, got %+v", u, got)
	}

	id, err := d.LookupEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if id != "u1" {
		t.Fatalf("expected u1, got %s", id)
	}
}

func TestKVDirectoryNotFound(t *testing.T) {
	_, d := newTestDirectory(t)
	ctx := context.Background()

	if _, err := d.Get(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := d.LookupEmail(ctx, "ghost@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestKVDirectoryCorruptRecord(t *testing.T) {
	mr, d := newTestDirectory(t)
	mr.Set("user:bad", "{not json")

	if _, err := d.Get(context.Background(), "bad"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestKVDirectoryEmailChangeReleasesOldEmail(t *testing.T) {
	mr, d := newTestDirectory(t)
	ctx := context.Background()

	if err := d.Save(ctx, User{ID: "u1", Name: "Ada", Email: "ada@old.example"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := d.Save(ctx, User{ID: "u1", Name: "Ada", Email: "ada@new.example"}); err != nil {
		t.Fatalf("save new email: %v", err)
	}

	if mr.Exists("user:email:ada@old.example") {
		t.Fatalf("old email index left behind")
	}
	if _, err := d.LookupEmail(ctx, "ada@old.example"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for the old email, got %v", err)
	}
	if id, err := d.LookupEmail(ctx, "ADA@new.example"); err != nil || id != "u1" {
		t.Fatalf("new email: %q %v", id, err)
	}

	// Case-only changes keep the same index entry.
	if err := d.Save(ctx, User{ID: "u1", Name: "Ada", Email: "Ada@New.example"}); err != nil {
		t.Fatalf("save case change: %v", err)
	}
	if id, err := d.LookupEmail(ctx, "ada@new.example"); err != nil || id != "u1" {
		t.Fatalf("case change dropped the index: %q %v", id, err)
	}

	// The released email is free for someone else.
	if err := d.Save(ctx, User{ID: "u2", Name: "Bob", Email: "ada@old.example"}); err != nil {
		t.Fatalf("save u2: %v", err)
	}
}

func TestKVDirectoryEmailIsUnique(t *testing.T) {
	mr, d := newTestDirectory(t)
	ctx := context.Background()

	if err := d.Save(ctx, User{ID: "u1", Name: "Ada", Email: "ada@example.com"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	err := d.Save(ctx, User{ID: "u2", Name: "Mallory", Email: "ADA@example.com"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if mr.Exists("user:u2") {
		t.Fatalf("refused user was stored")
	}
	if id, err := d.LookupEmail(ctx, "ada@example.com"); err != nil || id != "u1" {
		t.Fatalf("email taken over: %q %v", id, err)
	}
	if err := d.Save(ctx, User{ID: "u1", Name: "Ada L", Email: "ada@example.com"}); err != nil {
		t.Fatalf("owner saving again: %v", err)
	}
}
