package events

import (
	"testing"
	"time"

	"github.com/jmylchreest/tvget/internal/models"
)

func TestBus_DeliversEventsInOrder(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.TaskStarted(1)
	b.MetadataFetched(1, models.Metadata{Title: "T"})
	b.ProgressUpdated(1, ProgressRecord{Percent: 50})
	b.DownloadFinished(1, true, "complete", "/tmp/out.mp4")

	wantKinds := []Kind{KindTaskStarted, KindMetadataFetched, KindProgressUpdated, KindDownloadFinished}
	for _, want := range wantKinds {
		select {
		case ev := <-sub.Events:
			if ev.Kind != want {
				t.Fatalf("expected kind %s, got %s", want, ev.Kind)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %s", want)
		}
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()
	b.Unsubscribe(sub)

	_, ok := <-sub.Events
	if ok {
		t.Fatalf("expected channel to be closed after Unsubscribe")
	}
}

func TestBus_MultipleSubscribersAllReceive(t *testing.T) {
	b := NewBus()
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	defer b.Unsubscribe(sub1)
	defer b.Unsubscribe(sub2)

	b.TaskStarted(42)

	for _, sub := range []*Subscriber{sub1, sub2} {
		select {
		case ev := <-sub.Events:
			if ev.TaskID != 42 {
				t.Fatalf("expected task id 42, got %d", ev.TaskID)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event")
		}
	}
}

func TestBus_NonTerminalEventDroppedWhenChannelFull(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for i := 0; i < 200; i++ {
		b.ProgressUpdated(1, ProgressRecord{Percent: float64(i)})
	}

	// Should not block or panic; channel capacity is 100, extras are dropped.
	if len(sub.Events) == 0 {
		t.Fatalf("expected some buffered events to remain")
	}
}
