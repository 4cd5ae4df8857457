package services

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dvmnet/go-dvm/models"
)

// DiscoveryService collects worker announcements from the default relay set,
// drops stale ones, and keeps the freshest announcement per publisher.
type DiscoveryService struct {
	logger        models.Logger
	subscriber    *DedupSubscriber
	metricService models.MetricService
	serviceId     string
	relays        []string
	staleCutoff   time.Duration
}

func NewDiscoveryService(logger models.Logger, subscriber *DedupSubscriber, metricService models.MetricService, serviceId string, relays []string) *DiscoveryService {
	if len(serviceId) == 0 {
		serviceId = models.DefaultServiceId
	}
	if len(relays) == 0 {
		relays = models.DefaultRelays
	}
	return &DiscoveryService{logger, subscriber, metricService, serviceId, relays, models.DefaultStaleCutoff}
}

// Discover returns announcements merged by publisher, newest first. It ends
// when every contacted relay has signalled end-of-stored-events or when the
// budget elapses, whichever comes first.
func (s *DiscoveryService) Discover(ctx context.Context, budget time.Duration) ([]*models.Announcement, error) {
	if budget <= 0 {
		budget = models.DefaultDiscoveryBudget
	}
	var lock sync.Mutex
	byPublisher := make(map[string]*models.Announcement)

	// Both termination paths funnel through one guard so the result is
	// produced exactly once.
	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }

	filter := &models.Filter{
		Kinds: []int{models.KindAnnouncement},
		Tags:  map[string][]string{models.TagService: {s.serviceId}},
	}
	handler := func(event *models.Event) error {
		announcement := s.parseAnnouncement(event)
		if announcement == nil {
			return nil
		}
		lock.Lock()
		defer lock.Unlock()
		if existing, found := byPublisher[announcement.Pubkey]; !found || announcement.LastSeen > existing.LastSeen {
			byPublisher[announcement.Pubkey] = announcement
		}
		return nil
	}
	handle, err := s.subscriber.SubscribeWithOpts(ctx, s.relays, filter, handler, SubscribeOpts{OnEndOfStored: finish})
	if err != nil {
		return nil, err
	}
	defer handle.Cancel()

	timer := time.NewTimer(budget)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	lock.Lock()
	defer lock.Unlock()
	announcements := make([]*models.Announcement, 0, len(byPublisher))
	for _, announcement := range byPublisher {
		announcements = append(announcements, announcement)
	}
	sort.Slice(announcements, func(i, j int) bool {
		return announcements[i].LastSeen > announcements[j].LastSeen
	})
	s.metricService.Distribution(ctx, models.MetricName_DiscoveryWorkers, len(announcements))
	return announcements, nil
}

// parseAnnouncement returns nil for announcements that are stale, mismatched,
// or otherwise unusable. Timestamps are author-controlled and only ever used
// for recency filtering.
func (s *DiscoveryService) parseAnnouncement(event *models.Event) *models.Announcement {
	if event.Kind != models.KindAnnouncement {
		return nil
	}
	if event.CreatedAt < time.Now().Add(-s.staleCutoff).Unix() {
		s.metricService.Count(context.Background(), models.MetricName_DiscoveryStale, 1)
		s.logger.Debugf("discovery: dropping stale announcement %s from %s", event.Id, event.Pubkey)
		return nil
	}
	if serviceId, _ := event.TagValue(models.TagService); serviceId != s.serviceId {
		return nil
	}
	announcement := &models.Announcement{
		Pubkey:   event.Pubkey,
		LastSeen: event.CreatedAt,
	}
	announcement.Name, _ = event.TagValue(models.TagName)
	announcement.About, _ = event.TagValue(models.TagAbout)
	announcement.Operator, _ = event.TagValue(models.TagOperator)
	if lastSeen, found := event.TagValue(models.TagLastSeen); found {
		if parsed, err := strconv.ParseInt(lastSeen, 10, 64); err == nil {
			announcement.LastSeen = parsed
		}
	}
	for _, value := range event.TagValues(models.TagKind) {
		if kind, err := strconv.Atoi(value); err == nil {
			announcement.SupportedKinds = append(announcement.SupportedKinds, kind)
		}
	}
	announcement.OutputModes = event.TagValues(models.TagOutput)
	for _, tag := range event.Tags {
		if tag.Name() == models.TagRelays && len(tag) > 1 {
			announcement.Relays = append(announcement.Relays, tag[1:]...)
		}
	}
	return announcement
}
