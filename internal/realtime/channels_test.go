package realtime

import (
	"errors"
	"testing"
)

func TestChannelNames(t *testing.T) {
	cases := []struct {
		scope Scope
		id    string
		want  string
	}{
		{ScopeConversation, "U1--U2", "chat:U1--U2"},
		{ScopeUserChats, "U2", "user:U2:chats"},
		{ScopeFriendRequests, "U2", "user:U2:incoming_friend_requests"},
	}
	for _, tc := range cases {
		got, err := ChannelFor(tc.scope, tc.id)
		if err != nil {
			t.Fatalf("%s %s: %v", tc.scope, tc.id, err)
		}
		if got != tc.want {
			t.Fatalf("%s %s: expected %s, got %s", tc.scope, tc.id, tc.want, got)
		}

		scope, id, err := ParseChannel(got)
		if err != nil {
			t.Fatalf("parse %s: %v", got, err)
		}
		if scope != tc.scope || id != tc.id {
			t.Fatalf("parse %s: got (%s, %s)", got, scope, id)
		}
	}
}

func TestChannelForRejectsReserved(t *testing.T) {
	cases := []struct {
		scope Scope
		id    string
	}{
		{ScopeUserChats, ""},
		{ScopeUserChats, "a:chats"},
		{ScopeFriendRequests, "x*"},
		{ScopeFriendRequests, "x?"},
		{ScopeUserChats, "[ab]"},
		{ScopeConversation, "single"},
		{ScopeConversation, "a:b--c"},
		{Scope(42), "u"},
	}
	for _, tc := range cases {
		if _, err := ChannelFor(tc.scope, tc.id); !errors.Is(err, ErrBadChannel) {
			t.Fatalf("%s %q: expected ErrBadChannel, got %v", tc.scope, tc.id, err)
		}
	}
}

func TestConversationChannelIsCanonical(t *testing.T) {
	for _, key := range []string{"U1--U2", "U2--U1"} {
		got, err := ChannelFor(ScopeConversation, key)
		if err != nil {
			t.Fatalf("%s: %v", key, err)
		}
		if got != "chat:U1--U2" {
			t.Fatalf("%s: expected chat:U1--U2, got %s", key, got)
		}
	}
	if _, err := ChannelFor(ScopeConversation, "a---b"); !errors.Is(err, ErrBadChannel) {
		t.Fatalf("expected ErrBadChannel for a---b, got %v", err)
	}
}

func TestParseChannelRejects(t *testing.T) {
	for _, name := range []string{"", "general-chat", "user:U1", "user:U1:friends", "user:a:b:chats", "chat:solo", "chat:U2--U1", "chat:a---b"} {
		if _, _, err := ParseChannel(name); !errors.Is(err, ErrBadChannel) {
			t.Fatalf("%q: expected ErrBadChannel, got %v", name, err)
		}
	}
}

func TestCanSubscribe(t *testing.T) {
	cases := []struct {
		viewer  string
		channel string
		want    bool
	}{
		{"U1", "chat:U1--U2", true},
		{"U2", "chat:U1--U2", true},
		{"U3", "chat:U1--U2", false},
		{"U1", "chat:U2--U1", false},
		{"U2", "chat:U2--U1", false},
		{"U1", "user:U1:chats", true},
		{"U1", "user:U2:chats", false},
		{"U2", "user:U2:incoming_friend_requests", true},
		{"U1", "user:U2:incoming_friend_requests", false},
		{"U1", "bogus", false},
	}
	for _, tc := range cases {
		if got := CanSubscribe(tc.viewer, tc.channel); got != tc.want {
			t.Fatalf("CanSubscribe(%s, %s)=%v, want %v", tc.viewer, tc.channel, got, tc.want)
		}
	}
}
