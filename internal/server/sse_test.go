package server

import (
	"testing"
)

func TestMatchTopicPattern(t *testing.T) {
	for _, tc := range []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"scuttle.message.appended", "scuttle.message.appended", true},
		{"scuttle.message.appended", "scuttle.batch.appended", false},
		{"scuttle.*.appended", "scuttle.message.appended", true},
		{"scuttle.*.appended", "scuttle.indexes.rebuilt", false},
		{"scuttle.>", "scuttle.message.appended", true},
		{"scuttle.>", "scuttle", false},
		{"*", "scuttle", true},
		{"*", "scuttle.message", false},
		{">", "scuttle.message.appended", true},
	} {
		if got := matchTopicPattern(tc.pattern, tc.topic); got != tc.want {
			t.Errorf("matchTopicPattern(%q, %q) = %v, want %v", tc.pattern, tc.topic, got, tc.want)
		}
	}
}

func TestSSEHubBroadcast(t *testing.T) {
	hub := newSSEHub()

	all := hub.subscribe(nil)
	defer hub.unsubscribe(all)
	filtered := hub.subscribe([]string{"scuttle.indexes.>"})
	defer hub.unsubscribe(filtered)

	hub.broadcast("scuttle.message.appended", []byte(`{"flume_seq":0}`))
	hub.broadcast("scuttle.indexes.rebuilt", []byte(`{}`))

	// The unfiltered client sees both events.
	if got := len(all.ch); got != 2 {
		t.Errorf("unfiltered client received %d events, want 2", got)
	}
	// The filtered client only sees the rebuild.
	if got := len(filtered.ch); got != 1 {
		t.Fatalf("filtered client received %d events, want 1", got)
	}
	evt := <-filtered.ch
	if evt.Topic != "scuttle.indexes.rebuilt" {
		t.Errorf("filtered client got topic %q", evt.Topic)
	}
}

func TestSSEHubEventsSince(t *testing.T) {
	hub := newSSEHub()

	hub.broadcast("scuttle.message.appended", []byte(`{"n":1}`))
	hub.broadcast("scuttle.message.appended", []byte(`{"n":2}`))
	hub.broadcast("scuttle.message.appended", []byte(`{"n":3}`))

	replay := hub.eventsSince(1)
	if len(replay) != 2 {
		t.Fatalf("got %d events, want 2", len(replay))
	}
	if replay[0].ID != 2 || replay[1].ID != 3 {
		t.Errorf("replay IDs = %d, %d; want 2, 3", replay[0].ID, replay[1].ID)
	}

	if got := hub.eventsSince(3); len(got) != 0 {
		t.Errorf("eventsSince(latest) returned %d events, want 0", len(got))
	}
}

func TestSSEHubSlowClientDoesNotBlock(t *testing.T) {
	hub := newSSEHub()
	c := hub.subscribe(nil)
	defer hub.unsubscribe(c)

	// Overflow the client's buffered channel; broadcast must not block.
	for i := 0; i < 100; i++ {
		hub.broadcast("scuttle.message.appended", []byte(`{}`))
	}
	if got := len(c.ch); got != cap(c.ch) {
		t.Errorf("client buffer holds %d events, want full buffer of %d", got, cap(c.ch))
	}
}
