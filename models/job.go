package models

import (
	"encoding/json"
	"fmt"
)

type JobStatus string

const (
	JobStatus_Processing      JobStatus = "processing"
	JobStatus_Success         JobStatus = "success"
	JobStatus_Error           JobStatus = "error"
	JobStatus_PaymentRequired JobStatus = "payment-required"
	JobStatus_Partial         JobStatus = "partial"
)

type OutputMode string

const (
	OutputMode_Mp4 OutputMode = "mp4"
	OutputMode_Hls OutputMode = "hls"
)

// JobParams describes one transcoding job submission.
type JobParams struct {
	VideoUrl          string     `json:"url" validate:"required,uri"`
	Output            OutputMode `json:"output" validate:"required,oneof=mp4 hls"`
	Resolution        string     `json:"resolution,omitempty"`
	Codec             string     `json:"codec,omitempty"`
	StreamResolutions []string   `json:"stream_resolutions,omitempty"`
	EncryptOutput     bool       `json:"encrypt_output,omitempty"`
}

// StatusUpdate is one job feedback message. Multiple updates may arrive per
// job; later ones do not invalidate earlier ones.
type StatusUpdate struct {
	Status  JobStatus `json:"status"`
	Message string    `json:"message,omitempty"`
	Eta     int       `json:"eta,omitempty"` // seconds
}

func (s *StatusUpdate) Terminal() bool {
	return s.Status == JobStatus_Error
}

type ResultType string

const (
	ResultType_Mp4 ResultType = "mp4"
	ResultType_Hls ResultType = "hls"
)

type Mp4Result struct {
	Urls       []string `json:"urls"`
	Resolution string   `json:"resolution"`
	SizeBytes  int64    `json:"size_bytes"`
}

type StreamPlaylist struct {
	Url        string `json:"url"`
	Resolution string `json:"resolution"`
	SizeBytes  int64  `json:"size_bytes"`
}

type HlsResult struct {
	MasterPlaylist  string           `json:"master_playlist"`
	StreamPlaylists []StreamPlaylist `json:"stream_playlists"`
	TotalSizeBytes  int64            `json:"total_size_bytes"`
	EncryptionKey   string           `json:"encryption_key,omitempty"`
}

// JobResult is a tagged union discriminated by an explicit "type" field.
// Exactly one of Mp4/Hls is populated.
type JobResult struct {
	Type ResultType
	Mp4  *Mp4Result
	Hls  *HlsResult
}

func (r *JobResult) UnmarshalJSON(data []byte) error {
	var head struct {
		Type ResultType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	switch head.Type {
	case ResultType_Mp4:
		mp4 := new(Mp4Result)
		if err := json.Unmarshal(data, mp4); err != nil {
			return err
		}
		r.Type = ResultType_Mp4
		r.Mp4 = mp4
	case ResultType_Hls:
		hls := new(HlsResult)
		if err := json.Unmarshal(data, hls); err != nil {
			return err
		}
		r.Type = ResultType_Hls
		r.Hls = hls
	default:
		return fmt.Errorf("unknown result type %q", head.Type)
	}
	return nil
}

func (r JobResult) MarshalJSON() ([]byte, error) {
	switch r.Type {
	case ResultType_Mp4:
		return marshalWithType(r.Type, r.Mp4)
	case ResultType_Hls:
		return marshalWithType(r.Type, r.Hls)
	}
	return nil, fmt.Errorf("unknown result type %q", r.Type)
}

func marshalWithType(resultType ResultType, body any) ([]byte, error) {
	fields := make(map[string]any)
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal(encoded, &fields); err != nil {
		return nil, err
	}
	fields["type"] = resultType
	return json.Marshal(fields)
}
