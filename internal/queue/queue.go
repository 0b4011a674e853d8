package queue

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/vaultsync/vaultsync/internal/model"
	"github.com/vaultsync/vaultsync/internal/remote"
)

// State is the scheduler's single-slot state.
type State int

const (
	// StateIdle means nothing is pending and no drain is running.
	StateIdle State = iota
	// StateArmed means intents are pending and the debounce timer is live.
	StateArmed
	// StateDraining means a dispatch is in flight.
	StateDraining
	// StateArmedWhileDraining means intents arrived during a drain; a new
	// debounce window is armed as soon as the drain completes.
	StateArmedWhileDraining
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateDraining:
		return "draining"
	case StateArmedWhileDraining:
		return "armed-while-draining"
	default:
		return "unknown"
	}
}

// Applier applies confirmed command outcomes to local state. Implemented by
// the reconciliation engine.
type Applier interface {
	ApplyComplete(id string) error
	ApplyUncomplete(id string) error
	ApplyUpdate(id string, ch model.Changes) error
	ApplyCreate(tempID, realID, docPath string) error
	ApplyCursor(next string) error
}

// Config holds queue configuration.
type Config struct {
	// Debounce is how long the queue waits after the last enqueue before
	// dispatching.
	Debounce time.Duration

	// OnReject is invoked once per rejected command. Optional.
	OnReject func(Intent, remote.CommandStatus)

	// OnTransportFailure is invoked when a whole batch fails without
	// per-command outcomes. The batch stays pending. Optional.
	OnTransportFailure func(batchSize int, err error)

	// Logger for queue activity.
	Logger *log.Logger
}

// Queue debounces and coalesces intents and dispatches them as one batch.
type Queue struct {
	svc     remote.Service
	applier Applier
	cfg     Config
	ctx     context.Context

	mu        sync.Mutex
	state     State
	pending   map[string]*Intent
	timer     *time.Timer
	drainDone chan struct{}
	nextUUID  int
}

// New creates a queue. ctx bounds timer-fired dispatches; cancelling it
// stops future automatic drains. If cfg.Logger is nil, a default logger
// writing to stderr is used.
func New(ctx context.Context, svc remote.Service, applier Applier, cfg Config) *Queue {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[queue] ", log.LstdFlags)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	return &Queue{
		svc:     svc,
		applier: applier,
		cfg:     cfg,
		ctx:     ctx,
		state:   StateIdle,
		pending: make(map[string]*Intent),
	}
}

// Enqueue adds an intent, coalescing it onto any pending intent for the
// same id, and (re)arms the shared debounce timer. Never blocks on I/O.
func (q *Queue) Enqueue(in Intent) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if prior, ok := q.pending[in.ID]; ok {
		q.pending[in.ID] = mergeIntent(prior, &in)
	} else {
		q.pending[in.ID] = &in
	}

	switch q.state {
	case StateIdle:
		q.state = StateArmed
		q.timer = time.AfterFunc(q.cfg.Debounce, q.timerFired)
	case StateArmed:
		q.timer.Reset(q.cfg.Debounce)
	case StateDraining:
		// Deferred: re-armed the moment the in-flight drain completes.
		q.state = StateArmedWhileDraining
	case StateArmedWhileDraining:
		// Already deferred.
	}
}

// Pending returns the number of coalesced intents waiting to dispatch.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// State returns the scheduler state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Stop cancels the debounce timer. Pending intents stay queued.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.timer != nil {
		q.timer.Stop()
	}
	if q.state == StateArmed {
		q.state = StateIdle
	}
}

// Flush dispatches the pending set immediately, waiting first for any drain
// already in flight. Returns the dispatch error, if any; pending intents
// survive a transport failure.
func (q *Queue) Flush(ctx context.Context) error {
	for {
		q.mu.Lock()
		switch q.state {
		case StateDraining, StateArmedWhileDraining:
			done := q.drainDone
			q.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return nil
		}
		if q.timer != nil {
			q.timer.Stop()
		}
		batch := q.takeBatchLocked()
		q.mu.Unlock()
		if err := q.drain(ctx, batch); err != nil {
			return err
		}
		// Applying a creation can enqueue a follow-up command; keep
		// draining until the queue is quiet.
	}
}

// timerFired is the debounce timer callback.
func (q *Queue) timerFired() {
	q.mu.Lock()
	if q.state != StateArmed || len(q.pending) == 0 {
		// A Flush raced the timer; nothing to do.
		if q.state == StateArmed {
			q.state = StateIdle
		}
		q.mu.Unlock()
		return
	}
	batch := q.takeBatchLocked()
	q.mu.Unlock()

	if err := q.drain(q.ctx, batch); err != nil {
		q.cfg.Logger.Printf("Dispatch failed: %v", err)
	}
}

// takeBatchLocked moves the whole pending set into a drain batch and
// transitions to Draining. Caller holds the lock.
func (q *Queue) takeBatchLocked() map[string]*Intent {
	batch := q.pending
	q.pending = make(map[string]*Intent)
	q.state = StateDraining
	q.drainDone = make(chan struct{})
	return batch
}

// drain sends one batch and applies the outcomes. On transport failure the
// batch is folded back into the pending set with any newer intents winning.
func (q *Queue) drain(ctx context.Context, batch map[string]*Intent) error {
	defer q.finishDrain()

	ids := make([]string, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	commands := make([]remote.Command, 0, len(batch))
	byUUID := make(map[string]*Intent, len(batch))
	q.mu.Lock()
	for _, id := range ids {
		in := batch[id]
		q.nextUUID++
		uuid := fmt.Sprintf("cmd-%d", q.nextUUID)
		commands = append(commands, q.command(in, uuid))
		byUUID[uuid] = in
	}
	q.mu.Unlock()

	q.cfg.Logger.Printf("Dispatching %d commands", len(commands))
	res, err := q.svc.Dispatch(ctx, commands)
	if err != nil {
		q.restoreBatch(batch)
		if q.cfg.OnTransportFailure != nil {
			q.cfg.OnTransportFailure(len(batch), err)
		}
		return err
	}

	for _, cmd := range commands {
		in := byUUID[cmd.UUID]
		status, ok := res.Status[cmd.UUID]
		if !ok {
			status = remote.CommandStatus{ErrorCode: -1, ErrorMessage: "no status returned for command"}
		}
		if !status.OK {
			q.cfg.Logger.Printf("Command %s for %s rejected: %d %s", in.Kind, in.ID, status.ErrorCode, status.ErrorMessage)
			if q.cfg.OnReject != nil {
				q.cfg.OnReject(*in, status)
			}
			continue
		}
		if err := q.apply(in, res); err != nil {
			q.cfg.Logger.Printf("Warning: failed to apply %s result for %s: %v", in.Kind, in.ID, err)
		}
	}

	// The dispatch response carries the next sync token; persisting it
	// spares the next incremental pass re-fetching what this batch pushed.
	if res.NextCursor != "" {
		if err := q.applier.ApplyCursor(res.NextCursor); err != nil {
			q.cfg.Logger.Printf("Warning: failed to persist cursor after dispatch: %v", err)
		}
	}
	return nil
}

// finishDrain releases the drain slot and re-arms if intents accumulated
// while the drain was in flight.
func (q *Queue) finishDrain() {
	q.mu.Lock()
	defer q.mu.Unlock()
	close(q.drainDone)
	if q.state == StateArmedWhileDraining && len(q.pending) > 0 {
		q.state = StateArmed
		q.timer = time.AfterFunc(q.cfg.Debounce, q.timerFired)
		return
	}
	q.state = StateIdle
}

// restoreBatch puts a failed batch back into the pending set. An intent
// enqueued during the drain is newer and wins the merge.
func (q *Queue) restoreBatch(batch map[string]*Intent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, old := range batch {
		if cur, ok := q.pending[id]; ok {
			q.pending[id] = mergeIntent(old, cur)
		} else {
			q.pending[id] = old
		}
	}
}

// command renders one intent as a wire command.
func (q *Queue) command(in *Intent, uuid string) remote.Command {
	switch in.Kind {
	case IntentComplete:
		return remote.Command{Type: remote.CmdItemComplete, UUID: uuid, Args: map[string]any{"id": in.ID}}
	case IntentUncomplete:
		return remote.Command{Type: remote.CmdItemUncomplete, UUID: uuid, Args: map[string]any{"id": in.ID}}
	case IntentCreate:
		t := in.Create
		args := map[string]any{"content": t.Content}
		if t.Description != "" {
			args["description"] = t.Description
		}
		if t.ProjectID != "" {
			args["project_id"] = t.ProjectID
		}
		if t.SectionID != "" {
			args["section_id"] = t.SectionID
		}
		if t.Priority != 0 {
			args["priority"] = t.Priority
		}
		if t.Due != nil && t.Due.String != "" {
			args["due_string"] = t.Due.String
		}
		if len(t.Labels) > 0 {
			args["labels"] = t.Labels
		}
		return remote.Command{Type: remote.CmdItemAdd, UUID: uuid, TempID: in.ID, Args: args}
	default:
		args := in.Changes.Args()
		args["id"] = in.ID
		return remote.Command{Type: remote.CmdItemUpdate, UUID: uuid, Args: args}
	}
}

// apply routes one accepted outcome to the engine.
func (q *Queue) apply(in *Intent, res *remote.DispatchResult) error {
	switch in.Kind {
	case IntentComplete:
		return q.applier.ApplyComplete(in.ID)
	case IntentUncomplete:
		return q.applier.ApplyUncomplete(in.ID)
	case IntentCreate:
		realID, ok := res.TempIDMapping[in.ID]
		if !ok {
			return fmt.Errorf("no temp id mapping for %s", in.ID)
		}
		if err := q.applier.ApplyCreate(in.ID, realID, in.Path); err != nil {
			return err
		}
		if in.Create != nil && in.Create.Completed {
			// item_add registers the task active; the completion goes out
			// as its own command under the real id.
			q.Enqueue(Intent{Kind: IntentComplete, ID: realID})
		}
		return nil
	default:
		return q.applier.ApplyUpdate(in.ID, in.Changes)
	}
}
