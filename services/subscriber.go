package services

import (
	"context"
	"sync"
	"time"

	"github.com/dvmnet/go-dvm/models"
)

// MessageHandler processes one deduplicated event. A returned error is logged
// and contained; it never tears down the subscription.
type MessageHandler func(event *models.Event) error

// SubscribeOpts tunes optional subscription behavior.
type SubscribeOpts struct {
	// OnEndOfStored fires once, after every contacted relay has signalled
	// end-of-stored-events.
	OnEndOfStored func()
}

// Handle cancels a subscription. Cancel is idempotent, non-blocking, and safe
// to invoke from within the subscription's own delivery callback.
type Handle struct {
	once sync.Once
	stop func()
	done chan struct{}
}

func (h *Handle) Cancel() {
	h.once.Do(h.stop)
}

// Done closes once the delivery loop has drained and exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// DedupSubscriber replicates one logical subscription across a relay set and
// delivers each event id exactly once, in first-arrival order. The filter is
// always pinned to since=now; there is no backlog replay.
type DedupSubscriber struct {
	logger        models.Logger
	pool          models.RelayPool
	dedupStore    models.DedupStore
	metricService models.MetricService
}

func NewDedupSubscriber(logger models.Logger, pool models.RelayPool, dedupStore models.DedupStore, metricService models.MetricService) *DedupSubscriber {
	return &DedupSubscriber{logger, pool, dedupStore, metricService}
}

func (s *DedupSubscriber) Subscribe(ctx context.Context, relays []string, filter *models.Filter, onMessage MessageHandler) (*Handle, error) {
	return s.SubscribeWithOpts(ctx, relays, filter, onMessage, SubscribeOpts{})
}

func (s *DedupSubscriber) SubscribeWithOpts(ctx context.Context, relays []string, filter *models.Filter, onMessage MessageHandler, opts SubscribeOpts) (*Handle, error) {
	since := time.Now().Unix()
	filter.Since = &since

	relaySub, err := s.pool.Subscribe(ctx, relays, filter)
	if err != nil {
		return nil, err
	}
	handle := &Handle{stop: relaySub.Close, done: make(chan struct{})}
	go s.run(relaySub, relays, onMessage, opts, handle)
	return handle, nil
}

func (s *DedupSubscriber) run(relaySub models.RelaySubscription, relays []string, onMessage MessageHandler, opts SubscribeOpts, handle *Handle) {
	defer close(handle.done)
	ctx := context.Background()
	storedEnded := make(map[string]struct{}, len(relays))
	endOfStoredFired := false
	for msg := range relaySub.Messages() {
		if msg.EndOfStored {
			storedEnded[msg.Relay] = struct{}{}
			if !endOfStoredFired && len(storedEnded) >= len(relays) && opts.OnEndOfStored != nil {
				endOfStoredFired = true
				opts.OnEndOfStored()
			}
			continue
		}
		if msg.Event == nil {
			continue
		}
		if !s.dedupStore.RecordIfNew(msg.Event.Id) {
			s.metricService.Count(ctx, models.MetricName_DedupHit, 1)
			continue
		}
		if err := onMessage(msg.Event); err != nil {
			// Per-message decode failures are contained here; the
			// subscription keeps going.
			s.logger.Warnf("subscriber: dropping event %s from %s: %v", msg.Event.Id, msg.Relay, err)
		}
	}
}
