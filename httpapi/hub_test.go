package httpapi

import (
	"errors"
	"testing"
	"time"

	"pkt.systems/mdsurface/schema"
)

func TestHubRejectsSurfaceKinds(t *testing.T) {
	hub := NewHub(4, nil)
	err := hub.Send(schema.EditMessage("x"))
	if !errors.Is(err, schema.ErrMalformedMessage) {
		t.Fatalf("expected malformed error, got %v", err)
	}
	if got := hub.Replay(0); len(got) != 0 {
		t.Fatalf("rejected message entered history: %+v", got)
	}
}

func TestHubHistoryIsBounded(t *testing.T) {
	hub := NewHub(2, nil)
	for _, content := range []string{"a", "b", "c"} {
		if err := hub.Send(schema.UpdateMessage(schema.Snapshot{Content: content}, schema.DefaultEditorOptions(), schema.ThemeLight)); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	events := hub.Replay(0)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Seq != 2 || events[0].Message.Content != "b" || events[1].Message.Content != "c" {
		t.Fatalf("unexpected history %+v", events)
	}
	if after := hub.Replay(2); len(after) != 1 || after[0].Seq != 3 {
		t.Fatalf("unexpected replay after 2: %+v", after)
	}
}

func TestHubFanout(t *testing.T) {
	hub := NewHub(8, nil)
	first, unsubFirst, seq := hub.Subscribe()
	second, unsubSecond, _ := hub.Subscribe()
	defer unsubSecond()
	if seq != 0 {
		t.Fatalf("expected seq 0, got %d", seq)
	}
	if hub.Subscribers() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", hub.Subscribers())
	}
	if err := hub.Send(schema.ThemeMessage(schema.ThemeDark)); err != nil {
		t.Fatalf("send: %v", err)
	}
	for _, ch := range []<-chan StreamEvent{first, second} {
		select {
		case event := <-ch:
			if event.Seq != 1 || event.Message.Theme != schema.ThemeDark {
				t.Fatalf("unexpected event %+v", event)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event")
		}
	}
	unsubFirst()
	unsubFirst()
	if hub.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.Subscribers())
	}
	if _, ok := <-first; ok {
		t.Fatalf("expected closed channel after unsubscribe")
	}
}

func TestHubDeliverDispatchesToHost(t *testing.T) {
	hub := NewHub(8, nil)
	var got []schema.Message
	unsubscribe := hub.OnMessage(func(msg schema.Message) { got = append(got, msg) })
	hub.Deliver(schema.ReadyMessage())
	unsubscribe()
	hub.Deliver(schema.SaveMessage("x"))
	if len(got) != 1 || got[0].Kind != schema.KindReady {
		t.Fatalf("unexpected delivered messages %+v", got)
	}
}
