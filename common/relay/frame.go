package relay

import (
	"encoding/json"
	"fmt"

	"github.com/dvmnet/go-dvm/models"
)

const (
	frameType_Event  = "EVENT"
	frameType_Req    = "REQ"
	frameType_Close  = "CLOSE"
	frameType_Eose   = "EOSE"
	frameType_Ok     = "OK"
	frameType_Notice = "NOTICE"
)

// frame is one parsed wire message from a relay.
type frame struct {
	Type    string
	SubId   string
	Event   *models.Event
	Message string
}

func parseFrame(data []byte) (*frame, error) {
	elements := make([]json.RawMessage, 0, 3)
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, fmt.Errorf("malformed relay frame: %w", err)
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("empty relay frame")
	}
	parsed := new(frame)
	if err := json.Unmarshal(elements[0], &parsed.Type); err != nil {
		return nil, fmt.Errorf("malformed relay frame type: %w", err)
	}
	switch parsed.Type {
	case frameType_Event:
		if len(elements) < 3 {
			return nil, fmt.Errorf("event frame missing elements")
		}
		if err := json.Unmarshal(elements[1], &parsed.SubId); err != nil {
			return nil, err
		}
		event := new(models.Event)
		if err := json.Unmarshal(elements[2], event); err != nil {
			return nil, fmt.Errorf("malformed event in frame: %w", err)
		}
		parsed.Event = event
	case frameType_Eose:
		if len(elements) < 2 {
			return nil, fmt.Errorf("eose frame missing subscription id")
		}
		if err := json.Unmarshal(elements[1], &parsed.SubId); err != nil {
			return nil, err
		}
	case frameType_Notice:
		if len(elements) > 1 {
			_ = json.Unmarshal(elements[1], &parsed.Message)
		}
	case frameType_Ok:
		if len(elements) > 1 {
			_ = json.Unmarshal(elements[1], &parsed.Message)
		}
	default:
		return nil, fmt.Errorf("unknown relay frame type %q", parsed.Type)
	}
	return parsed, nil
}
