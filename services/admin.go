package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abevier/tsk/futures"
	"github.com/google/uuid"

	"github.com/dvmnet/go-dvm/models"
)

// AdminService is the RPC correlator. Each outstanding call is a future keyed
// by its payload correlation id; one persistent subscription per DVM dispatches
// decrypted responses to whichever call is awaiting that id. Responses are
// correlated on the payload id only, never the transport event id, since one
// logical response can be redelivered under different transport ids.
type AdminService struct {
	logger        models.Logger
	signer        models.Signer
	publisher     *EventPublisher
	subscriber    *DedupSubscriber
	envelope      *Envelope
	metricService models.MetricService

	callLock sync.Mutex
	pending  map[string]*futures.Future[*models.AdminResponse]

	subLock   sync.Mutex
	subs      map[string]*Handle
	observers map[string]func(*models.AdminResponse)
}

func NewAdminService(logger models.Logger, signer models.Signer, publisher *EventPublisher, subscriber *DedupSubscriber, envelope *Envelope, metricService models.MetricService) *AdminService {
	return &AdminService{
		logger:        logger,
		signer:        signer,
		publisher:     publisher,
		subscriber:    subscriber,
		envelope:      envelope,
		metricService: metricService,
		pending:       make(map[string]*futures.Future[*models.AdminResponse]),
		subs:          make(map[string]*Handle),
		observers:     make(map[string]func(*models.AdminResponse)),
	}
}

// Call sends one admin command and blocks until the correlated response
// arrives or the timeout elapses. The three outcomes stay distinct: a result,
// an AdminError carrying the remote error field, or ErrTimeout.
func (s *AdminService) Call(ctx context.Context, dvmPubkey, method string, params map[string]any, relays []string, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = models.DefaultRpcTimeout
	}
	if err := s.ensureSubscription(ctx, dvmPubkey, relays); err != nil {
		return nil, err
	}
	request := &models.AdminRequest{Id: uuid.NewString(), Method: method, Params: params}
	future := futures.New[*models.AdminResponse]()
	s.callLock.Lock()
	s.pending[request.Id] = future
	s.callLock.Unlock()
	// The entry is removed on every exit path so that a late response or a
	// stale timer can never double-report.
	defer s.forget(request.Id)

	started := time.Now()
	if err := s.send(ctx, dvmPubkey, request, relays); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	response, err := future.Get(callCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			s.metricService.Count(ctx, models.MetricName_AdminCallTimeout, 1)
			return nil, fmt.Errorf("%s: %w", method, models.ErrTimeout)
		}
		return nil, err
	}
	s.metricService.Distribution(ctx, models.MetricName_AdminCallLatencyMs, int(time.Since(started).Milliseconds()))
	if len(response.Error) > 0 {
		s.metricService.Count(ctx, models.MetricName_AdminCallError, 1)
		return nil, &models.AdminError{Method: method, Message: response.Error}
	}
	s.metricService.Count(ctx, models.MetricName_AdminCallCompleted, 1)
	return response.Result, nil
}

// Fire publishes a command without awaiting any specific response id. Pair it
// with Observe for passive polling.
func (s *AdminService) Fire(ctx context.Context, dvmPubkey, method string, params map[string]any, relays []string) error {
	if err := s.ensureSubscription(ctx, dvmPubkey, relays); err != nil {
		return err
	}
	request := &models.AdminRequest{Id: uuid.NewString(), Method: method, Params: params}
	return s.send(ctx, dvmPubkey, request, relays)
}

// Observe registers a callback for responses from the given DVM that match no
// outstanding call. It shares the decrypt-and-parse pipeline with Call.
func (s *AdminService) Observe(dvmPubkey string, observer func(*models.AdminResponse)) {
	s.subLock.Lock()
	defer s.subLock.Unlock()
	s.observers[dvmPubkey] = observer
}

// Close tears down all persistent subscriptions. Idempotent.
func (s *AdminService) Close() {
	s.subLock.Lock()
	defer s.subLock.Unlock()
	for dvmPubkey, handle := range s.subs {
		handle.Cancel()
		delete(s.subs, dvmPubkey)
	}
}

func (s *AdminService) send(ctx context.Context, dvmPubkey string, request *models.AdminRequest, relays []string) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return err
	}
	ciphertext, err := s.envelope.Encrypt(ctx, dvmPubkey, string(payload))
	if err != nil {
		return err
	}
	tags := []models.Tag{{models.TagRecipient, dvmPubkey}}
	_, err = s.publisher.Publish(ctx, models.KindAdminRpc, ciphertext, tags, relays)
	return err
}

func (s *AdminService) ensureSubscription(ctx context.Context, dvmPubkey string, relays []string) error {
	s.subLock.Lock()
	defer s.subLock.Unlock()
	if _, found := s.subs[dvmPubkey]; found {
		return nil
	}
	operator, err := s.signer.GetPublicKey(ctx)
	if err != nil {
		return err
	}
	filter := &models.Filter{
		Kinds:   []int{models.KindAdminRpc},
		Authors: []string{dvmPubkey},
		Tags:    map[string][]string{models.TagRecipient: {operator}},
	}
	handle, err := s.subscriber.Subscribe(ctx, s.publisher.mergeRelays(relays), filter, s.handleResponse(dvmPubkey))
	if err != nil {
		return err
	}
	s.subs[dvmPubkey] = handle
	return nil
}

func (s *AdminService) handleResponse(dvmPubkey string) MessageHandler {
	return func(event *models.Event) error {
		ctx := context.Background()
		plaintext, err := s.envelope.Decrypt(ctx, dvmPubkey, event.Content)
		if err != nil {
			s.metricService.Count(ctx, models.MetricName_DecryptFailure, 1)
			return err
		}
		response := new(models.AdminResponse)
		if err = json.Unmarshal([]byte(plaintext), response); err != nil {
			s.metricService.Count(ctx, models.MetricName_MalformedPayload, 1)
			return &models.MalformedPayloadError{Err: err}
		}
		s.callLock.Lock()
		future, found := s.pending[response.Id]
		if found {
			delete(s.pending, response.Id)
		}
		s.callLock.Unlock()
		if !found {
			// Response to an already-completed or timed-out call; drop it,
			// never resurrect the call.
			s.metricService.Count(ctx, models.MetricName_AdminOrphanResponse, 1)
			s.subLock.Lock()
			observer := s.observers[dvmPubkey]
			s.subLock.Unlock()
			if observer != nil {
				observer(response)
			} else {
				s.logger.Debugf("admin: ignoring response %s with no outstanding call", response.Id)
			}
			return nil
		}
		future.Complete(response)
		return nil
	}
}

func (s *AdminService) forget(id string) {
	s.callLock.Lock()
	defer s.callLock.Unlock()
	delete(s.pending, id)
}
