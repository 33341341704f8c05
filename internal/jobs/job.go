package jobs

import (
	"errors"
	"time"
)

// Sentinel errors for job lookups and transitions.
var (
	// ErrJobNotFound means no job exists with the given id.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotPending means a claim lost the race: the job already left
	// the pending state.
	ErrJobNotPending = errors.New("job is not pending")

	// ErrJobFinished means the job reached a terminal state and cannot
	// change anymore.
	ErrJobFinished = errors.New("job already finished")

	// ErrQueueFull means the scheduler queue cannot accept more work.
	ErrQueueFull = errors.New("job queue is full")
)

// CancelledReason is the error string recorded on jobs stopped by a caller.
const CancelledReason = "cancelled"

// Status is an analysis job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Summary carries the aggregate counts of a completed analysis.
type Summary struct {
	TotalSigns      int `json:"total_signs"`
	TotalIntervals  int `json:"total_intervals"`
	FreeCount       int `json:"free_count"`
	RestrictedCount int `json:"restricted_count"`
	SkippedSigns    int `json:"skipped_signs"`
}

// Job is one asynchronous area analysis. Progress only moves forward while
// running; terminal jobs never change again.
type Job struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	CenterLat    float64    `json:"center_lat"`
	CenterLon    float64    `json:"center_lon"`
	RadiusKm     float64    `json:"radius_km"`
	AsOf         *time.Time `json:"as_of,omitempty"`
	Status       Status     `json:"status"`
	Progress     int        `json:"progress"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Summary      *Summary   `json:"summary,omitempty"`
	ResultHandle string     `json:"result_handle,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// clone copies the job, including nested pointers, so snapshots never alias
// registry state.
func (j *Job) clone() *Job {
	copied := *j
	if j.AsOf != nil {
		t := *j.AsOf
		copied.AsOf = &t
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		copied.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		copied.CompletedAt = &t
	}
	if j.Summary != nil {
		s := *j.Summary
		copied.Summary = &s
	}
	return &copied
}
