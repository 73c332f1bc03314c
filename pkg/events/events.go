package events

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Category groups event types by the entity they concern. Subscribers
// filter on categories, so a DNS-SD republisher can watch service events
// without draining every document mutation.
type Category string

const (
	CategoryDocument Category = "document"
	CategoryTemplate Category = "template"
	CategoryService  Category = "service"
)

// EventType identifies one kind of configuration change. The text form is
// "<category>.<action>".
type EventType string

const (
	EventDocumentAdded      EventType = "document.added"
	EventDocumentPatched    EventType = "document.patched"
	EventDocumentRemoved    EventType = "document.removed"
	EventTemplateAdded      EventType = "template.added"
	EventTemplateRemoved    EventType = "template.removed"
	EventServicePublished   EventType = "service.published"
	EventServiceUnpublished EventType = "service.unpublished"
)

// Category extracts the category prefix of an event type.
func (t EventType) Category() Category {
	name, _, _ := strings.Cut(string(t), ".")
	return Category(name)
}

// Event records one configuration change.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Subject   string // document, template, or service instance name
	Metadata  map[string]string
}

// New creates an event for a subject.
func New(eventType EventType, subject string) *Event {
	return &Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Subject: subject,
	}
}

// subscriptionBuffer bounds how far a subscriber may lag before events are
// dropped for it.
const subscriptionBuffer = 32

// Subscription is one subscriber's filtered event feed. Events arrive on
// C; a subscription that stops draining loses events rather than blocking
// publishers.
type Subscription struct {
	C <-chan *Event

	ch         chan *Event
	categories map[Category]bool
}

func (s *Subscription) wants(event *Event) bool {
	return s.categories == nil || s.categories[event.Type.Category()]
}

// Broker fans configuration events out to subscriptions. Delivery happens
// on the publisher's goroutine; there is no internal queue to drain on
// shutdown.
type Broker struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a feed for the given categories; no categories
// means every event. Subscribing to a closed broker yields a subscription
// whose channel is already closed.
func (b *Broker) Subscribe(categories ...Category) *Subscription {
	ch := make(chan *Event, subscriptionBuffer)
	sub := &Subscription{C: ch, ch: ch}
	if len(categories) > 0 {
		sub.categories = make(map[Category]bool, len(categories))
		for _, category := range categories {
			sub.categories[category] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// Publish stamps and delivers an event to every matching subscription. A
// full subscription drops the event.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		if !sub.wants(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Close shuts the broker down, closing every subscription channel. Later
// publishes are discarded.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
