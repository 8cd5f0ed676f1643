package mining

import "errors"

var (
	ErrUnknownKind      = errors.New("unknown task kind")
	ErrUnknownSource    = errors.New("unknown data source")
	ErrColumnNotAllowed = errors.New("column not allowed")
	ErrInvalidRange     = errors.New("invalid time range")
	ErrEmptyResultSet   = errors.New("no data available")
	ErrRowLimitExceeded = errors.New("row limit exceeded")
	ErrDataAccess       = errors.New("data access fault")
	ErrTaskNotFound     = errors.New("task not found")
	ErrNoDocument       = errors.New("algorithm returned no document")
)
