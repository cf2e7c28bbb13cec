package stores

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// CheckStatus is the outcome of the last update check for a dependency.
type CheckStatus string

const (
	CheckStatusPending  CheckStatus = "pending"
	CheckStatusUpToDate CheckStatus = "up_to_date"
	CheckStatusUpdate   CheckStatus = "update_available"
	CheckStatusSkipped  CheckStatus = "skipped"
)

// CheckRecord is the persisted state of one dependency's update check.
type CheckRecord struct {
	Key           string      `json:"key"`
	LastCheckedAt time.Time   `json:"last_checked_at"`
	Status        CheckStatus `json:"status"`
	Latest        string      `json:"latest,omitempty"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// PassStatus is the state of a generation pass.
type PassStatus string

const (
	PassStatusRunning   PassStatus = "running"
	PassStatusSucceeded PassStatus = "succeeded"
	PassStatusFailed    PassStatus = "failed"
)

// Pass is one recorded generation pass.
type Pass struct {
	ID          string     `json:"id"`
	Project     string     `json:"project"`
	ProjectDir  string     `json:"project_dir"`
	Status      PassStatus `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ErrorKind   *string    `json:"error_kind,omitempty"`
	Error       *string    `json:"error,omitempty"`
}
