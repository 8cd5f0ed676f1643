package mining

import "time"

type Status string

const (
	StatusRunning   Status = "running"
	StatusFailed    Status = "failed"
	StatusSucceeded Status = "succeeded"
)

func (s Status) Terminal() bool {
	return s == StatusFailed || s == StatusSucceeded
}

const (
	CommentNoData      = "no data available"
	CommentInterrupted = "execution interrupted"
	CommentDataAccess  = "data access failed"
	CommentRowLimit    = "row limit exceeded"
	CommentInvalid     = "invalid task definition"
	CommentEnqueue     = "enqueue failed"
	CommentInternal    = "internal error"
)

// Task is the persisted record of one submitted computation.
//
// Result is a JSON document and is set only when Status is StatusSucceeded.
// Comment stays empty while the task is running.
type Task struct {
	ID          string
	Kind        Kind
	SourceLabel string
	Description string
	CreatedAt   time.Time

	Status  Status
	Comment string
	Result  []byte

	// execution input, resolved at submission
	Table Table
	Range TimeRange
}
