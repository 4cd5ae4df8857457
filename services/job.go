package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-playground/validator"

	"github.com/dvmnet/go-dvm/models"
)

// JobSubmission references a published job request. RequestId is the
// correlation key for every subsequent status and result message.
type JobSubmission struct {
	RequestId string
	Event     *models.Event
}

// JobEvent is one tracked delivery: either a status update or the terminal
// result.
type JobEvent struct {
	Status *models.StatusUpdate
	Result *models.JobResult
}

// JobService publishes job requests and tracks their status/result streams.
type JobService struct {
	logger        models.Logger
	publisher     *EventPublisher
	subscriber    *DedupSubscriber
	envelope      *Envelope
	metricService models.MetricService
	notifier      models.Notifier
	validate      *validator.Validate
}

func NewJobService(logger models.Logger, publisher *EventPublisher, subscriber *DedupSubscriber, envelope *Envelope, metricService models.MetricService, notifier models.Notifier) *JobService {
	return &JobService{logger, publisher, subscriber, envelope, metricService, notifier, validator.New()}
}

// Submit publishes a job request. When the signer supports encryption the
// parameters travel as an encrypted JSON blob with only the recipient and an
// "encrypted" marker public; otherwise they are carried as plaintext tags.
// Some operators and relays require visible routing metadata, others require
// full parameter confidentiality, so both modes exist.
func (s *JobService) Submit(ctx context.Context, dvmPubkey string, params *models.JobParams, relays []string) (*JobSubmission, error) {
	if err := s.validate.Struct(params); err != nil {
		return nil, fmt.Errorf("invalid job params: %w", err)
	}
	var content string
	tags := []models.Tag{{models.TagRecipient, dvmPubkey}}
	if s.envelope.Supported() {
		payload, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		if content, err = s.envelope.Encrypt(ctx, dvmPubkey, string(payload)); err != nil {
			return nil, err
		}
		tags = append(tags, models.Tag{models.TagEncrypted})
	} else {
		tags = append(tags, plaintextParamTags(params)...)
	}
	event, err := s.publisher.Publish(ctx, models.KindJobRequest, content, tags, relays)
	if err != nil {
		return nil, err
	}
	s.metricService.Count(ctx, models.MetricName_JobSubmitted, 1)
	s.logger.Infof("job: submitted request %s to %s", event.Id, dvmPubkey)
	return &JobSubmission{RequestId: event.Id, Event: event}, nil
}

// Track follows the status and result stream of one submitted job. Status
// updates are delivered in arrival order; the first well-formed result wins
// and later results are dropped. A status of "error" is terminal for the
// caller, but the tracker does not auto-cancel: termination policy belongs to
// the caller via the returned handle. Calling Track twice for the same
// reference id yields two independent handles; cancel the old one first.
func (s *JobService) Track(ctx context.Context, referenceId, dvmPubkey string, relays []string, onEvent func(JobEvent)) (*Handle, error) {
	filter := &models.Filter{
		Kinds:   []int{models.KindJobStatus, models.KindJobResult},
		Authors: []string{dvmPubkey},
		Tags:    map[string][]string{models.TagReference: {referenceId}},
	}
	var resultLock sync.Mutex
	resultSeen := false
	handler := func(event *models.Event) error {
		switch event.Kind {
		case models.KindJobStatus:
			status, err := s.parseStatus(event, dvmPubkey)
			if err != nil {
				return err
			}
			s.metricService.Count(ctx, models.MetricName_JobStatusReceived, 1)
			if status.Terminal() {
				s.alert(referenceId, status)
			}
			onEvent(JobEvent{Status: status})
		case models.KindJobResult:
			resultLock.Lock()
			if resultSeen {
				resultLock.Unlock()
				s.metricService.Count(ctx, models.MetricName_JobResultDuplicate, 1)
				s.logger.Debugf("job: dropping extra result for %s (event %s)", referenceId, event.Id)
				return nil
			}
			result, err := s.parseResult(event, dvmPubkey)
			if err != nil {
				resultLock.Unlock()
				return err
			}
			resultSeen = true
			resultLock.Unlock()
			s.metricService.Count(ctx, models.MetricName_JobResultReceived, 1)
			onEvent(JobEvent{Result: result})
		}
		return nil
	}
	return s.subscriber.Subscribe(ctx, s.publisher.mergeRelays(relays), filter, handler)
}

func (s *JobService) parseStatus(event *models.Event, dvmPubkey string) (*models.StatusUpdate, error) {
	content, err := s.content(event, dvmPubkey)
	if err != nil {
		return nil, err
	}
	status := new(models.StatusUpdate)
	if err = json.Unmarshal([]byte(content), status); err == nil && len(status.Status) > 0 {
		return status, nil
	}
	// Some workers put the status in a tag instead of the content.
	if value, found := event.TagValue(models.TagStatus); found {
		return &models.StatusUpdate{Status: models.JobStatus(value), Message: content}, nil
	}
	s.metricService.Count(context.Background(), models.MetricName_MalformedPayload, 1)
	return nil, &models.MalformedPayloadError{Err: fmt.Errorf("status event %s has no parseable status", event.Id)}
}

// parseResult attempts the structured tagged union first and falls back to the
// legacy single-URL tag representation, surfaced as an HLS result with an
// empty stream list to preserve the caller contract.
func (s *JobService) parseResult(event *models.Event, dvmPubkey string) (*models.JobResult, error) {
	content, err := s.content(event, dvmPubkey)
	if err != nil {
		return nil, err
	}
	result := new(models.JobResult)
	if err = json.Unmarshal([]byte(content), result); err == nil {
		return result, nil
	}
	for _, tag := range event.Tags {
		if tag.Name() == models.TagInput && len(tag) >= 3 && tag[2] == "url" {
			return &models.JobResult{
				Type: models.ResultType_Hls,
				Hls:  &models.HlsResult{MasterPlaylist: tag[1], StreamPlaylists: []models.StreamPlaylist{}},
			}, nil
		}
	}
	s.metricService.Count(context.Background(), models.MetricName_MalformedPayload, 1)
	return nil, &models.MalformedPayloadError{Err: fmt.Errorf("result event %s has no parseable result", event.Id)}
}

func (s *JobService) content(event *models.Event, dvmPubkey string) (string, error) {
	if !event.HasTag(models.TagEncrypted) {
		return event.Content, nil
	}
	content, err := s.envelope.Decrypt(context.Background(), dvmPubkey, event.Content)
	if err != nil {
		s.metricService.Count(context.Background(), models.MetricName_DecryptFailure, 1)
		return "", err
	}
	return content, nil
}

func (s *JobService) alert(referenceId string, status *models.StatusUpdate) {
	if s.notifier == nil {
		return
	}
	title := fmt.Sprintf("Job %s failed", referenceId)
	if err := s.notifier.SendAlert(title, status.Message, string(status.Status)); err != nil {
		s.logger.Warnf("job: error sending alert for %s: %v", referenceId, err)
	}
}

func plaintextParamTags(params *models.JobParams) []models.Tag {
	tags := []models.Tag{
		{models.TagInput, params.VideoUrl, "url"},
		{models.TagParam, "output", string(params.Output)},
	}
	if len(params.Resolution) > 0 {
		tags = append(tags, models.Tag{models.TagParam, "resolution", params.Resolution})
	}
	if len(params.Codec) > 0 {
		tags = append(tags, models.Tag{models.TagParam, "codec", params.Codec})
	}
	for _, resolution := range params.StreamResolutions {
		tags = append(tags, models.Tag{models.TagParam, "stream_resolution", resolution})
	}
	if params.EncryptOutput {
		tags = append(tags, models.Tag{models.TagParam, "encrypt_output", "true"})
	}
	return tags
}
