package model

import "time"

// BackupStatus moves pending -> uploading -> completed|failed.
type BackupStatus string

const (
	BackupPending   BackupStatus = "pending"
	BackupUploading BackupStatus = "uploading"
	BackupCompleted BackupStatus = "completed"
	BackupFailed    BackupStatus = "failed"
)

// Backup is one encrypted database snapshot. S3Key is the object name in
// the configured bucket.
type Backup struct {
	ID           int64        `json:"id"`
	S3Key        string       `json:"s3_key"`
	SizeBytes    int64        `json:"size_bytes"`
	Status       BackupStatus `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}
