package services

import (
	"context"
	"time"

	"github.com/dvmnet/go-dvm/models"
)

// EventPublisher assembles, signs, and fans out events. Every publish targets
// the union of the caller's relays and the process-wide default set so that
// requests stay reachable even when a counterparty advertises an incomplete
// relay list.
type EventPublisher struct {
	logger        models.Logger
	pool          models.RelayPool
	signer        models.Signer
	metricService models.MetricService
	defaultRelays []string
}

func NewEventPublisher(logger models.Logger, pool models.RelayPool, signer models.Signer, metricService models.MetricService, defaultRelays []string) *EventPublisher {
	if len(defaultRelays) == 0 {
		defaultRelays = models.DefaultRelays
	}
	return &EventPublisher{logger, pool, signer, metricService, defaultRelays}
}

// Publish builds an event of the given kind, obtains a signature (which may
// suspend on user interaction), and broadcasts it. Per-relay failures are the
// pool's concern; only an all-relay failure propagates.
func (p *EventPublisher) Publish(ctx context.Context, kind int, content string, tags []models.Tag, relays []string) (*models.Event, error) {
	event := &models.Event{
		Kind:      kind,
		CreatedAt: time.Now().Unix(),
		Tags:      tags,
		Content:   content,
	}
	if err := p.signer.SignEvent(ctx, event); err != nil {
		return nil, err
	}
	if err := p.pool.Publish(ctx, p.mergeRelays(relays), event); err != nil {
		return nil, err
	}
	p.metricService.Count(ctx, models.MetricName_EventPublished, 1)
	p.logger.Debugf("publisher: published kind %d event %s", kind, event.Id)
	return event, nil
}

func (p *EventPublisher) DefaultRelays() []string {
	return p.defaultRelays
}

func (p *EventPublisher) mergeRelays(relays []string) []string {
	merged := make([]string, 0, len(relays)+len(p.defaultRelays))
	seen := make(map[string]struct{}, len(relays)+len(p.defaultRelays))
	for _, url := range append(append([]string{}, relays...), p.defaultRelays...) {
		if _, found := seen[url]; found {
			continue
		}
		seen[url] = struct{}{}
		merged = append(merged, url)
	}
	return merged
}
