// Package queue turns detected local edits into batched remote commands: it
// coalesces intents per entity, debounces them behind one shared timer, and
// dispatches the whole pending set as a single batch, applying confirmed
// outcomes back through the engine.
package queue

import (
	"github.com/vaultsync/vaultsync/internal/model"
)

// IntentKind classifies a detected local change.
type IntentKind int

const (
	// IntentUpdate carries changed scalar fields of an existing task.
	IntentUpdate IntentKind = iota
	// IntentComplete marks a task done.
	IntentComplete
	// IntentUncomplete reopens a task.
	IntentUncomplete
	// IntentCreate registers a locally created task under a temporary id.
	IntentCreate
)

// String returns a human-readable representation of the intent kind.
func (k IntentKind) String() string {
	switch k {
	case IntentUpdate:
		return "update"
	case IntentComplete:
		return "complete"
	case IntentUncomplete:
		return "uncomplete"
	case IntentCreate:
		return "create"
	default:
		return "unknown"
	}
}

// Intent is one pending local change keyed by entity id (a temporary id for
// creations).
type Intent struct {
	Kind    IntentKind
	ID      string
	Changes model.Changes
	// Create holds the prospective task for IntentCreate; Path is the vault
	// document the creation came from, re-associated once the real id is
	// known.
	Create *model.Task
	Path   string
}

// mergeIntent coalesces a newer intent onto an older pending one for the
// same id. Precedence: complete overwrites update and uncomplete;
// uncomplete overwrites update; updates merge field-by-field with the newer
// fields winning; updates and completion toggles fold into a pending
// create. Returns the intent to keep pending.
func mergeIntent(older, newer *Intent) *Intent {
	switch older.Kind {
	case IntentCreate:
		// The task does not exist remotely yet; fold edits into the
		// creation. A completion toggle flips the prospective task's flag;
		// the queue dispatches the completion itself once the creation is
		// confirmed and the real id is known.
		switch newer.Kind {
		case IntentUpdate:
			newer.Changes.Apply(older.Create)
		case IntentComplete:
			older.Create.Completed = true
		case IntentUncomplete:
			older.Create.Completed = false
		}
		return older

	case IntentComplete:
		if newer.Kind == IntentUncomplete {
			return newer
		}
		// complete outranks update; a second complete is a no-op.
		return older

	case IntentUncomplete:
		if newer.Kind == IntentComplete || newer.Kind == IntentUncomplete {
			return newer
		}
		// uncomplete outranks update.
		return older

	default: // IntentUpdate
		if newer.Kind == IntentUpdate {
			older.Changes.Merge(&newer.Changes)
			return older
		}
		return newer
	}
}
