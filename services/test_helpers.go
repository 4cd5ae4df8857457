package services

import (
	"context"
	"sync"
	"time"

	"github.com/dvmnet/go-dvm/models"
)

type FakeRelaySubscription struct {
	relays []string
	filter *models.Filter
	ch     chan models.RelayMessage

	closeLock sync.Mutex
	closed    bool
}

func (f *FakeRelaySubscription) Messages() <-chan models.RelayMessage {
	return f.ch
}

func (f *FakeRelaySubscription) Close() {
	f.closeLock.Lock()
	defer f.closeLock.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.ch)
}

func (f *FakeRelaySubscription) deliver(msg models.RelayMessage) {
	f.closeLock.Lock()
	defer f.closeLock.Unlock()
	if f.closed {
		return
	}
	f.ch <- msg
}

type FakeRelayPool struct {
	lock       sync.Mutex
	published  []*models.Event
	subs       []*FakeRelaySubscription
	publishErr error
}

func (f *FakeRelayPool) Publish(ctx context.Context, relays []string, event *models.Event) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, event)
	return nil
}

func (f *FakeRelayPool) Subscribe(ctx context.Context, relays []string, filter *models.Filter) (models.RelaySubscription, error) {
	sub := &FakeRelaySubscription{
		relays: relays,
		filter: filter,
		ch:     make(chan models.RelayMessage, models.DefaultSubscriptionBuffer),
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *FakeRelayPool) Published() []*models.Event {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]*models.Event{}, f.published...)
}

// Deliver pushes an event to every matching subscription as if it arrived from
// the given relay. The since constraint is deliberately ignored: authors
// control created_at, so skewed timestamps do arrive in practice.
func (f *FakeRelayPool) Deliver(relay string, event *models.Event) {
	f.lock.Lock()
	subs := append([]*FakeRelaySubscription{}, f.subs...)
	f.lock.Unlock()
	for _, sub := range subs {
		unpinned := *sub.filter
		unpinned.Since = nil
		if unpinned.Matches(event) {
			sub.deliver(models.RelayMessage{Relay: relay, Event: event})
		}
	}
}

// DeliverEndOfStored signals end-of-stored-events from every relay of every
// open subscription.
func (f *FakeRelayPool) DeliverEndOfStored() {
	f.lock.Lock()
	subs := append([]*FakeRelaySubscription{}, f.subs...)
	f.lock.Unlock()
	for _, sub := range subs {
		for _, relay := range sub.relays {
			sub.deliver(models.RelayMessage{Relay: relay, EndOfStored: true})
		}
	}
}

// FakeSigner signs with a canned signature and carries configurable cipher
// capabilities. A nil cipher means the capability is absent.
type FakeSigner struct {
	pubkey string
	nip04  models.Cipher
	nip44  models.Cipher
}

func (f *FakeSigner) GetPublicKey(ctx context.Context) (string, error) {
	return f.pubkey, nil
}

func (f *FakeSigner) SignEvent(ctx context.Context, event *models.Event) error {
	event.Pubkey = f.pubkey
	if event.CreatedAt == 0 {
		event.CreatedAt = time.Now().Unix()
	}
	id, err := event.ComputeId()
	if err != nil {
		return err
	}
	event.Id = id
	event.Sig = "fakesig"
	return nil
}

func (f *FakeSigner) Nip04() (models.Cipher, bool) {
	return f.nip04, f.nip04 != nil
}

func (f *FakeSigner) Nip44() (models.Cipher, bool) {
	return f.nip44, f.nip44 != nil
}

// recordingCipher wraps a cipher and remembers whether it was used.
type recordingCipher struct {
	inner models.Cipher
	used  bool
}

func (r *recordingCipher) Encrypt(ctx context.Context, counterparty, plaintext string) (string, error) {
	r.used = true
	if r.inner == nil {
		return plaintext, nil
	}
	return r.inner.Encrypt(ctx, counterparty, plaintext)
}

func (r *recordingCipher) Decrypt(ctx context.Context, counterparty, ciphertext string) (string, error) {
	r.used = true
	if r.inner == nil {
		return ciphertext, nil
	}
	return r.inner.Decrypt(ctx, counterparty, ciphertext)
}

type MockMetricService struct {
	lock          sync.Mutex
	counts        map[models.MetricName]int
	distributions map[models.MetricName][]int
}

func NewMockMetricService() *MockMetricService {
	return &MockMetricService{
		counts:        make(map[models.MetricName]int),
		distributions: make(map[models.MetricName][]int),
	}
}

func (m *MockMetricService) Count(ctx context.Context, name models.MetricName, val int) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.counts[name] += val
	return nil
}

func (m *MockMetricService) Distribution(ctx context.Context, name models.MetricName, val int) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.distributions[name] = append(m.distributions[name], val)
	return nil
}

func (m *MockMetricService) Shutdown(ctx context.Context) {}

func (m *MockMetricService) CountOf(name models.MetricName) int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.counts[name]
}

type MockNotifier struct {
	lock   sync.Mutex
	alerts []string
}

func (m *MockNotifier) SendAlert(title, desc, content string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.alerts = append(m.alerts, title)
	return nil
}

// testEvent builds a minimal already-"signed" event for fake delivery.
func testEvent(id string, kind int, pubkey string, tags ...models.Tag) *models.Event {
	if tags == nil {
		tags = []models.Tag{}
	}
	return &models.Event{
		Id:        id,
		Kind:      kind,
		Pubkey:    pubkey,
		CreatedAt: time.Now().Unix(),
		Tags:      tags,
		Sig:       "fakesig",
	}
}
