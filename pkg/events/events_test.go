package events

import (
	"testing"
	"time"
)

func receive(t *testing.T, sub *Subscription) *Event {
	t.Helper()
	select {
	case event := <-sub.C:
		return event
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
		return nil
	}
}

// TestPublishReachesSubscribers tests unfiltered delivery and stamping
func TestPublishReachesSubscribers(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	sub := b.Subscribe()
	b.Publish(New(EventDocumentAdded, "svc1"))

	event := receive(t, sub)
	if event.Type != EventDocumentAdded {
		t.Errorf("type = %s", event.Type)
	}
	if event.Subject != "svc1" {
		t.Errorf("subject = %s", event.Subject)
	}
	if event.ID == "" {
		t.Error("event has no ID")
	}
	if event.Timestamp.IsZero() {
		t.Error("event has no timestamp")
	}
}

// TestCategoryFiltering tests that subscriptions only see their categories
func TestCategoryFiltering(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	services := b.Subscribe(CategoryService)
	documents := b.Subscribe(CategoryDocument, CategoryTemplate)

	b.Publish(New(EventDocumentRemoved, "doc1"))
	b.Publish(New(EventServicePublished, "conf1"))
	b.Publish(New(EventTemplateAdded, "tpl1"))

	if event := receive(t, services); event.Type != EventServicePublished {
		t.Errorf("service feed got %s", event.Type)
	}
	select {
	case event := <-services.C:
		t.Errorf("service feed got extra event %s", event.Type)
	default:
	}

	if event := receive(t, documents); event.Type != EventDocumentRemoved {
		t.Errorf("document feed got %s first", event.Type)
	}
	if event := receive(t, documents); event.Type != EventTemplateAdded {
		t.Errorf("document feed got %s second", event.Type)
	}
}

// TestEventTypeCategory tests the category derivation
func TestEventTypeCategory(t *testing.T) {
	tests := []struct {
		eventType EventType
		want      Category
	}{
		{EventDocumentAdded, CategoryDocument},
		{EventDocumentPatched, CategoryDocument},
		{EventTemplateRemoved, CategoryTemplate},
		{EventServiceUnpublished, CategoryService},
	}

	for _, tt := range tests {
		if got := tt.eventType.Category(); got != tt.want {
			t.Errorf("%s.Category() = %s, want %s", tt.eventType, got, tt.want)
		}
	}
}

// TestUnsubscribe tests removal and channel closure
func TestUnsubscribe(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	sub := b.Subscribe()
	if b.SubscriberCount() != 1 {
		t.Fatalf("count = %d", b.SubscriberCount())
	}
	b.Unsubscribe(sub)
	if b.SubscriberCount() != 0 {
		t.Fatalf("count = %d after unsubscribe", b.SubscriberCount())
	}
	if _, open := <-sub.C; open {
		t.Error("channel still open after unsubscribe")
	}

	// A second unsubscribe is a no-op, not a double close.
	b.Unsubscribe(sub)
}

// TestCloseTerminatesFeeds tests broker shutdown semantics
func TestCloseTerminatesFeeds(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()

	b.Close()
	if _, open := <-sub.C; open {
		t.Error("channel still open after close")
	}

	// Publishing after close is discarded, not a panic.
	b.Publish(New(EventDocumentAdded, "late"))

	late := b.Subscribe()
	if _, open := <-late.C; open {
		t.Error("subscription on a closed broker is not closed")
	}
}

// TestSlowSubscriberDropsEvents tests the lag bound
func TestSlowSubscriberDropsEvents(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	sub := b.Subscribe()
	for i := 0; i < subscriptionBuffer+10; i++ {
		b.Publish(New(EventDocumentAdded, "doc"))
	}

	drained := 0
	for {
		select {
		case <-sub.C:
			drained++
			continue
		default:
		}
		break
	}
	if drained != subscriptionBuffer {
		t.Errorf("drained %d events, want %d", drained, subscriptionBuffer)
	}
}
