package notify

import (
	"context"
	"testing"
	"time"
)

func TestMemoryQueueFanOut(t *testing.T) {
	queue := NewMemoryQueue(4)
	first := queue.Subscribe()
	second := queue.Subscribe()
	defer first.Close()
	defer second.Close()

	event := Event{
		Type:       EventTypeUploadComplete,
		UserID:     "user-1",
		Message:    "Video published",
		OccurredAt: time.Now().UTC(),
	}
	if err := queue.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, sub := range []Subscription{first, second} {
		select {
		case got := <-sub.Events():
			if got.UserID != "user-1" || got.Type != EventTypeUploadComplete {
				t.Fatalf("unexpected event: %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestMemoryQueueRequiresEventType(t *testing.T) {
	queue := NewMemoryQueue(1)
	if err := queue.Publish(context.Background(), Event{UserID: "user-1"}); err == nil {
		t.Fatal("expected error for missing event type")
	}
}

func TestMemoryQueueClosedSubscriptionUnregisters(t *testing.T) {
	queue := NewMemoryQueue(1)
	sub := queue.Subscribe()
	sub.Close()
	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected closed channel")
	}
	if err := queue.Publish(context.Background(), Event{Type: EventTypeUploadComplete}); err != nil {
		t.Fatalf("publish after close: %v", err)
	}
}
