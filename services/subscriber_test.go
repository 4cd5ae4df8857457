package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvmnet/go-dvm/models"
)

func TestExactlyOnceDelivery(t *testing.T) {
	pool, subscriber, metricService := newSubscriberFixture(t)

	received := make(chan *models.Event, 8)
	handle, err := subscriber.Subscribe(context.Background(), []string{"wss://one", "wss://two"},
		&models.Filter{Kinds: []int{models.KindJobStatus}},
		func(event *models.Event) error {
			received <- event
			return nil
		})
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer handle.Cancel()

	// The same logical event arrives from both relays under one transport id.
	duplicated := testEvent("event-1", models.KindJobStatus, "worker")
	pool.Deliver("wss://one", duplicated)
	pool.Deliver("wss://two", duplicated)
	other := testEvent("event-2", models.KindJobStatus, "worker")
	pool.Deliver("wss://two", other)

	events, err := waitForEvents(received, 2)
	if err != nil {
		t.Fatalf("Expected 2 deliveries: %v", err)
	}
	Assert(t, "event-1", events[0].Id, "First-arrival order violated")
	Assert(t, "event-2", events[1].Id, "First-arrival order violated")

	select {
	case extra := <-received:
		t.Errorf("Received duplicate delivery of %s", extra.Id)
	case <-time.After(50 * time.Millisecond):
	}
	Assert(t, 1, metricService.CountOf(models.MetricName_DedupHit), "Incorrect dedup hit count")
}

func TestHandlerErrorsAreContained(t *testing.T) {
	pool, subscriber, _ := newSubscriberFixture(t)

	received := make(chan *models.Event, 8)
	handle, err := subscriber.Subscribe(context.Background(), []string{"wss://one"},
		&models.Filter{Kinds: []int{models.KindJobStatus}},
		func(event *models.Event) error {
			if event.Id == "poison" {
				return errors.New("undecryptable")
			}
			received <- event
			return nil
		})
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer handle.Cancel()

	pool.Deliver("wss://one", testEvent("poison", models.KindJobStatus, "worker"))
	pool.Deliver("wss://one", testEvent("healthy", models.KindJobStatus, "worker"))

	events, err := waitForEvents(received, 1)
	if err != nil {
		t.Fatalf("Subscription did not survive a handler error: %v", err)
	}
	Assert(t, "healthy", events[0].Id, "Wrong event delivered after handler error")
}

func TestEndOfStoredFiresOncePerSubscription(t *testing.T) {
	pool, subscriber, _ := newSubscriberFixture(t)

	fired := make(chan struct{}, 4)
	handle, err := subscriber.SubscribeWithOpts(context.Background(), []string{"wss://one", "wss://two"},
		&models.Filter{Kinds: []int{models.KindAnnouncement}},
		func(event *models.Event) error { return nil },
		SubscribeOpts{OnEndOfStored: func() { fired <- struct{}{} }})
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer handle.Cancel()

	// One relay alone must not trigger the callback.
	pool.subs[0].deliver(models.RelayMessage{Relay: "wss://one", EndOfStored: true})
	select {
	case <-fired:
		t.Fatal("End-of-stored fired before all relays were drained")
	case <-time.After(50 * time.Millisecond):
	}

	pool.subs[0].deliver(models.RelayMessage{Relay: "wss://two", EndOfStored: true})
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("End-of-stored never fired")
	}

	// Redundant signals stay silent.
	pool.subs[0].deliver(models.RelayMessage{Relay: "wss://one", EndOfStored: true})
	select {
	case <-fired:
		t.Fatal("End-of-stored fired twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelIsIdempotentAndReentrant(t *testing.T) {
	pool, subscriber, _ := newSubscriberFixture(t)

	var handle *Handle
	cancelled := make(chan struct{})
	handle, err := subscriber.Subscribe(context.Background(), []string{"wss://one"},
		&models.Filter{Kinds: []int{models.KindJobStatus}},
		func(event *models.Event) error {
			// Cancelling from inside the delivery callback must not deadlock.
			handle.Cancel()
			close(cancelled)
			return nil
		})
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	pool.Deliver("wss://one", testEvent("event-1", models.KindJobStatus, "worker"))
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("Delivery callback never ran")
	}

	handle.Cancel()
	handle.Cancel()
	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("Delivery loop never exited after cancel")
	}
}
