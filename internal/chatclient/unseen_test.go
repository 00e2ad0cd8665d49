package chatclient

import (
	"go-dm/internal/chat"
	"go-dm/internal/realtime"
	"testing"
)

func sidebar(id, from, to string) realtime.SidebarMessage {
	return realtime.SidebarMessage{Message: msg(id, from, to, 1000), SenderName: from}
}

func TestUnseenCounts(t *testing.T) {
	tr := NewUnseenTracker("V").Navigate(chat.ConversationKey("V", "Z"))

	for _, m := range []realtime.SidebarMessage{
		sidebar("1", "X", "V"),
		sidebar("2", "Y", "V"),
		sidebar("3", "X", "V"),
	} {
		var notify bool
		tr, notify = tr.Receive(m)
		if !notify {
			t.Fatalf("message %s should notify", m.ID)
		}
	}

	want := map[string]int{"X": 2, "Y": 1, "Z": 0}
	for friend, n := range want {
		if got := tr.Count(friend); got != n {
			t.Fatalf("count for %s: expected %d, got %d", friend, n, got)
		}
	}

	tr = tr.Navigate(chat.ConversationKey("X", "V"))
	if tr.Count("X") != 0 || tr.Count("Y") != 1 {
		t.Fatalf("after navigating to X: %v", tr.Counts())
	}
	if tr.Active() != "V--X" {
		t.Fatalf("unexpected active conversation %q", tr.Active())
	}
}

func TestUnseenSkipsActiveConversation(t *testing.T) {
	tr := NewUnseenTracker("V").Navigate("V--X")

	tr, notify := tr.Receive(sidebar("1", "X", "V"))
	if notify || tr.Count("X") != 0 {
		t.Fatalf("message from the open conversation should not count")
	}

	tr = tr.Navigate("")
	tr, notify = tr.Receive(sidebar("2", "X", "V"))
	if !notify || tr.Count("X") != 1 {
		t.Fatalf("message after leaving should count")
	}
}

func TestUnseenIgnoresDuplicatesAndStrays(t *testing.T) {
	tr := NewUnseenTracker("V")
	tr, _ = tr.Receive(sidebar("1", "X", "V"))
	tr, notify := tr.Receive(sidebar("1", "X", "V"))
	if notify || tr.Count("X") != 1 {
		t.Fatalf("duplicate id should be ignored")
	}

	tr, notify = tr.Receive(sidebar("2", "X", "W"))
	if notify || len(tr.Entries()) != 1 {
		t.Fatalf("message for another user should be ignored")
	}
}

func TestNavigateForeignConversation(t *testing.T) {
	tr := NewUnseenTracker("V").Navigate("V--X")
	tr, _ = tr.Receive(sidebar("1", "Y", "V"))

	tr = tr.Navigate("A--B")
	if tr.Active() != "" {
		t.Fatalf("foreign key should leave nothing active, got %q", tr.Active())
	}
	if tr.Count("Y") != 1 {
		t.Fatalf("foreign key should not clear anything")
	}
}
