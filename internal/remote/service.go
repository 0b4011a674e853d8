// Package remote speaks to the task service: cursor-based fetches of
// projects, sections, and tasks, and batched command dispatch with
// per-command outcomes.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/vaultsync/vaultsync/internal/model"
)

// Command types understood by the service.
const (
	CmdItemAdd        = "item_add"
	CmdItemUpdate     = "item_update"
	CmdItemComplete   = "item_complete"
	CmdItemUncomplete = "item_uncomplete"
)

// Service is the remote task service.
type Service interface {
	// Fetch returns remote state. With full=true (or an empty cursor) the
	// service returns everything; otherwise only changes since the cursor.
	Fetch(ctx context.Context, cursor string, full bool) (*FetchResult, error)

	// Dispatch sends one batch of commands and returns per-command
	// outcomes. A returned error means transport failure: no command in the
	// batch has a known outcome.
	Dispatch(ctx context.Context, commands []Command) (*DispatchResult, error)
}

// FetchResult is one fetch's payload.
type FetchResult struct {
	Projects   []model.Project
	Sections   []model.Section
	Tasks      []model.Task
	FullSync   bool
	NextCursor string
}

// Command is one outbound mutation. UUID is the batch-local correlation id;
// TempID is set only for creations.
type Command struct {
	Type   string
	UUID   string
	TempID string
	Args   map[string]any
}

// CommandStatus is the per-command outcome of a dispatch.
type CommandStatus struct {
	OK           bool
	ErrorCode    int
	ErrorMessage string
}

// DispatchResult maps correlation ids to outcomes.
type DispatchResult struct {
	Status        map[string]CommandStatus
	TempIDMapping map[string]string
	NextCursor    string
}

// TransportError wraps a network or protocol level failure of a fetch or
// dispatch. The whole call failed; no partial results exist.
type TransportError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
