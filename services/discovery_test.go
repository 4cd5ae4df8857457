package services

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/dvmnet/go-dvm/models"
)

func newDiscoveryFixture(t *testing.T) (*FakeRelayPool, *DiscoveryService, *MockMetricService) {
	t.Helper()
	pool, subscriber, metricService := newSubscriberFixture(t)
	service := NewDiscoveryService(subscriber.logger, subscriber, metricService, "video-transcode", []string{"wss://one", "wss://two"})
	return pool, service, metricService
}

func announcement(id, pubkey string, age time.Duration, extraTags ...models.Tag) *models.Event {
	tags := append([]models.Tag{{models.TagService, "video-transcode"}}, extraTags...)
	event := testEvent(id, models.KindAnnouncement, pubkey, tags...)
	event.CreatedAt = time.Now().Add(-age).Unix()
	return event
}

func TestDiscoverDropsStaleAnnouncements(t *testing.T) {
	pool, service, metricService := newDiscoveryFixture(t)

	go func() {
		waitForSubscription(t, pool)
		// Just past the cutoff is dropped, just inside it is kept.
		pool.Deliver("wss://one", announcement("stale", "worker-stale", time.Hour+time.Second))
		pool.Deliver("wss://one", announcement("fresh", "worker-fresh", time.Hour-time.Second))
		pool.DeliverEndOfStored()
	}()

	announcements, err := service.Discover(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(announcements) != 1 {
		t.Fatalf("Expected 1 announcement, got %d", len(announcements))
	}
	Assert(t, "worker-fresh", announcements[0].Pubkey, "Wrong announcement survived")
	Assert(t, 1, metricService.CountOf(models.MetricName_DiscoveryStale), "Incorrect stale count")
}

func TestDiscoverMergesByFreshness(t *testing.T) {
	pool, service, _ := newDiscoveryFixture(t)

	now := time.Now().Unix()
	go func() {
		waitForSubscription(t, pool)
		// Two announcements from the same worker; the one claiming a later
		// last-seen wins regardless of arrival order.
		pool.Deliver("wss://one", announcement("newer", "worker-a", 0,
			models.Tag{models.TagLastSeen, strconv.FormatInt(now-10, 10)},
			models.Tag{models.TagName, "transcoder A v2"}))
		pool.Deliver("wss://two", announcement("older", "worker-a", 0,
			models.Tag{models.TagLastSeen, strconv.FormatInt(now-300, 10)},
			models.Tag{models.TagName, "transcoder A v1"}))
		pool.Deliver("wss://one", announcement("other", "worker-b", 30*time.Minute))
		pool.DeliverEndOfStored()
	}()

	announcements, err := service.Discover(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(announcements) != 2 {
		t.Fatalf("Expected 2 announcements, got %d", len(announcements))
	}
	// Newest first.
	Assert(t, "worker-a", announcements[0].Pubkey, "Incorrect ordering")
	Assert(t, "transcoder A v2", announcements[0].Name, "Freshness merge kept the wrong announcement")
	Assert(t, now-10, announcements[0].LastSeen, "last-seen tag should override created_at")
	Assert(t, "worker-b", announcements[1].Pubkey, "Incorrect ordering")
}

func TestDiscoverIgnoresOtherServices(t *testing.T) {
	pool, service, _ := newDiscoveryFixture(t)

	go func() {
		waitForSubscription(t, pool)
		other := testEvent("other-service", models.KindAnnouncement, "worker-x",
			models.Tag{models.TagService, "image-resize"})
		// Bypass the pool's filter matching to exercise the parser's own check.
		pool.lock.Lock()
		subs := append([]*FakeRelaySubscription{}, pool.subs...)
		pool.lock.Unlock()
		for _, sub := range subs {
			sub.deliver(models.RelayMessage{Relay: "wss://one", Event: other})
		}
		pool.DeliverEndOfStored()
	}()

	announcements, err := service.Discover(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	Assert(t, 0, len(announcements), "Announcement for another service leaked through")
}

func TestDiscoverParsesCapabilities(t *testing.T) {
	pool, service, _ := newDiscoveryFixture(t)

	go func() {
		waitForSubscription(t, pool)
		pool.Deliver("wss://one", announcement("full", "worker-a", 0,
			models.Tag{models.TagName, "transcoder A"},
			models.Tag{models.TagAbout, "fast mp4/hls transcodes"},
			models.Tag{models.TagOperator, "operator-pubkey"},
			models.Tag{models.TagKind, "5204"},
			models.Tag{models.TagKind, "5205"},
			models.Tag{models.TagKind, "not-a-kind"},
			models.Tag{models.TagOutput, "mp4"},
			models.Tag{models.TagOutput, "hls"},
			models.Tag{models.TagRelays, "wss://a", "wss://b"}))
		pool.DeliverEndOfStored()
	}()

	announcements, err := service.Discover(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(announcements) != 1 {
		t.Fatalf("Expected 1 announcement, got %d", len(announcements))
	}
	found := announcements[0]
	Assert(t, "transcoder A", found.Name, "Incorrect name")
	Assert(t, "fast mp4/hls transcodes", found.About, "Incorrect about")
	Assert(t, "operator-pubkey", found.Operator, "Incorrect operator")
	Assert(t, []int{5204, 5205}, found.SupportedKinds, "Incorrect supported kinds")
	Assert(t, []string{"mp4", "hls"}, found.OutputModes, "Incorrect output modes")
	Assert(t, []string{"wss://a", "wss://b"}, found.Relays, "Incorrect relays")
}

func TestDiscoverEndsOnBudget(t *testing.T) {
	pool, service, _ := newDiscoveryFixture(t)

	// No relay ever signals end-of-stored; only the budget can end the sweep.
	go func() {
		waitForSubscription(t, pool)
		pool.Deliver("wss://one", announcement("only", "worker-a", 0))
	}()

	start := time.Now()
	announcements, err := service.Discover(context.Background(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Discover ran past its budget: %v", elapsed)
	}
	Assert(t, 1, len(announcements), "Partial results should still be returned on budget expiry")
}

func TestDiscoverHonorsContextCancellation(t *testing.T) {
	_, service, _ := newDiscoveryFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := service.Discover(ctx, time.Minute); err == nil {
		t.Fatal("Expected a context error")
	}
}

func TestDiscoverManyWorkers(t *testing.T) {
	pool, service, _ := newDiscoveryFixture(t)

	go func() {
		waitForSubscription(t, pool)
		for i := 0; i < 25; i++ {
			pool.Deliver("wss://one", announcement(
				fmt.Sprintf("id-%d", i), fmt.Sprintf("worker-%d", i), time.Duration(i)*time.Minute))
		}
		pool.DeliverEndOfStored()
	}()

	announcements, err := service.Discover(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(announcements) != 25 {
		t.Fatalf("Expected 25 announcements, got %d", len(announcements))
	}
	for i := 1; i < len(announcements); i++ {
		if announcements[i-1].LastSeen < announcements[i].LastSeen {
			t.Fatalf("Announcements out of order at index %d", i)
		}
	}
}
