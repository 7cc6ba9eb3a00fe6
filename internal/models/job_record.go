package models

import "time"

// Job ledger states.
const (
	JobSubmitted = "submitted"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// JobRecord is one row of the job ledger, keyed by queue message ID.
type JobRecord struct {
	MessageID    string     `json:"message_id"`
	State        string     `json:"state"`
	Stage        string     `json:"stage,omitempty"`
	Hostname     string     `json:"hostname,omitempty"`
	SceneBucket  string     `json:"scene_bucket"`
	SceneKey     string     `json:"scene_key"`
	SceneIndex   *int       `json:"scene_index,omitempty"`
	OutputBucket string     `json:"output_bucket"`
	OutputKey    string     `json:"output_key"`
	ReceiveCount int        `json:"receive_count"`
	ErrorText    *string    `json:"error_text,omitempty"`
	ExitCode     *int       `json:"exit_code,omitempty"`
	ReceivedAt   *time.Time `json:"received_at,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	UploadedAt   *time.Time `json:"uploaded_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
