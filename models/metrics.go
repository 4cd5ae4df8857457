package models

type MetricName string

// Counts
const (
	MetricName_AdminCallCompleted  MetricName = "admin_call_completed"
	MetricName_AdminCallError      MetricName = "admin_call_error"
	MetricName_AdminCallTimeout    MetricName = "admin_call_timeout"
	MetricName_AdminOrphanResponse MetricName = "admin_orphan_response"
	MetricName_DecryptFailure      MetricName = "decrypt_failure"
	MetricName_DedupHit            MetricName = "dedup_hit"
	MetricName_DiscoveryStale      MetricName = "discovery_stale_announcement"
	MetricName_EventPublished      MetricName = "event_published"
	MetricName_JobResultDuplicate  MetricName = "job_result_duplicate"
	MetricName_JobResultReceived   MetricName = "job_result_received"
	MetricName_JobStatusReceived   MetricName = "job_status_received"
	MetricName_JobSubmitted        MetricName = "job_submitted"
	MetricName_MalformedPayload    MetricName = "malformed_payload"
)

// Distributions
const (
	MetricName_AdminCallLatencyMs MetricName = "admin_call_latency_ms"
	MetricName_DiscoveryWorkers   MetricName = "discovery_workers"
)

const MetricsCallerName = "go-dvm"
