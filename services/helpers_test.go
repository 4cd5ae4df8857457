package services

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/dvmnet/go-dvm/common/dedup"
	"github.com/dvmnet/go-dvm/common/loggers"
	"github.com/dvmnet/go-dvm/models"
)

func Assert(t *testing.T, expected, actual any, msg string) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Errorf("%s: expected %v, actual %v", msg, expected, actual)
	}
}

var errTimedOutWaiting = errors.New("timed out waiting for events")

func waitForJobEvents(ch chan JobEvent, n int) ([]JobEvent, error) {
	events := make([]JobEvent, 0, n)
	for i := 0; i < n; i++ {
		select {
		case event := <-ch:
			events = append(events, event)
		case <-time.After(2 * time.Second):
			return events, errTimedOutWaiting
		}
	}
	return events, nil
}

func waitForEvents(ch chan *models.Event, n int) ([]*models.Event, error) {
	events := make([]*models.Event, 0, n)
	for i := 0; i < n; i++ {
		select {
		case event := <-ch:
			events = append(events, event)
		case <-time.After(2 * time.Second):
			return events, errTimedOutWaiting
		}
	}
	return events, nil
}

// waitForSubscription blocks until the pool has at least one open
// subscription, so concurrent deliveries cannot race the subscribe call.
func waitForSubscription(t *testing.T, pool *FakeRelayPool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		pool.lock.Lock()
		subscribed := len(pool.subs) > 0
		pool.lock.Unlock()
		if subscribed {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Error("No subscription was ever opened")
}

func newSubscriberFixture(t *testing.T) (*FakeRelayPool, *DedupSubscriber, *MockMetricService) {
	t.Helper()
	pool := &FakeRelayPool{}
	store, err := dedup.NewStore(128)
	if err != nil {
		t.Fatalf("Failed to create dedup store: %v", err)
	}
	metricService := NewMockMetricService()
	return pool, NewDedupSubscriber(loggers.NewTestLogger(), pool, store, metricService), metricService
}
