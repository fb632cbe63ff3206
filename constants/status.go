package constants

// JobStatus is the canonical lifecycle label for batch ingestion jobs.
type JobStatus string

// Stable values (log these exact strings).
const (
	JobStatusQueued    JobStatus = "QUEUED"    // waiting for a worker
	JobStatusRunning   JobStatus = "RUNNING"   // in progress
	JobStatusCompleted JobStatus = "COMPLETED" // record stored
	JobStatusFailed    JobStatus = "FAILED"    // terminal failure, nothing stored
)
