// Package syncengine runs background jobs that pull listings from the
// provider and refresh local state.
package syncengine

import (
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/mls-sync/mls"
)

type JobType string

const (
	JobFull        JobType = "full"
	JobIncremental JobType = "incremental"
	JobProperties  JobType = "targeted-property"
	JobSearch      JobType = "targeted-search"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is a unit of sync work. Fields past the identifiers are filled in as
// the worker progresses; callers see copies, never the live struct.
type Job struct {
	ID        string    `json:"id"`
	Type      JobType   `json:"type"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	RecordsProcessed int    `json:"records_processed"`
	RecordsAdded     int    `json:"records_added"`
	RecordsUpdated   int    `json:"records_updated"`
	RecordsSkipped   int    `json:"records_skipped"`
	Error            string `json:"error,omitempty"`

	// Inputs, by job type.
	Criteria   *mls.SearchCriteria `json:"criteria,omitempty"`
	Since      *time.Time          `json:"since,omitempty"`
	ListingIDs []string            `json:"listing_ids,omitempty"`
}

func newJob(t JobType) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Type:      t,
		Status:    JobPending,
		CreatedAt: time.Now().UTC(),
	}
}
