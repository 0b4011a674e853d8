package engine

import (
	"fmt"
	"time"

	"github.com/vaultsync/vaultsync/internal/model"
)

// The Apply* methods are the command queue's result-application step. They
// run between queue drains, never concurrently with a reconciliation pass,
// and mutate cache, index, and tree exactly the way a pass would have.

// ApplyComplete handles an accepted "complete": the cached task flips to
// completed and its document relocates to the done bucket, leaving the
// index.
func (e *Engine) ApplyComplete(id string) error {
	t, ok := e.store.Task(id)
	if !ok {
		return fmt.Errorf("completed task %s is not in the snapshot cache", id)
	}
	t.Completed = true
	if t.CompletedAt.IsZero() {
		t.CompletedAt = time.Now().UTC()
	}
	if err := e.store.UpsertTask(t); err != nil {
		return err
	}
	refresh := func(model.Record) (model.Record, error) {
		return model.NewTaskRecord(&t), nil
	}
	return e.bucketRelocate(model.KindTask, id, model.BucketDone, refresh)
}

// ApplyUncomplete handles an accepted "uncomplete": only the cache entry is
// patched. The document stays where it is; the next reconciliation pass
// sees an active task without an index entry and recreates it at its
// canonical location.
func (e *Engine) ApplyUncomplete(id string) error {
	t, ok := e.store.Task(id)
	if !ok {
		return fmt.Errorf("uncompleted task %s is not in the snapshot cache", id)
	}
	t.Completed = false
	t.CompletedAt = time.Time{}
	return e.store.UpsertTask(t)
}

// ApplyUpdate handles an accepted "update": only the changed fields are
// patched into the cache entry.
func (e *Engine) ApplyUpdate(id string, ch model.Changes) error {
	t, ok := e.store.Task(id)
	if !ok {
		return fmt.Errorf("updated task %s is not in the snapshot cache", id)
	}
	ch.Apply(&t)
	return e.store.UpsertTask(t)
}

// ApplyCreate handles an accepted "create": the real id is written into the
// originating document, indexed, and cached. docPath is where the detector
// saw the new document; the index may also hold a temp-id entry from an
// earlier partial application.
func (e *Engine) ApplyCreate(tempID, realID, docPath string) error {
	if docPath == "" {
		p, ok := e.idx.Get(model.KindTask, tempID)
		if !ok {
			return fmt.Errorf("created task %s has no known document", tempID)
		}
		docPath = p
	}

	var created *model.Task
	err := e.tree.WriteRecord(docPath, func(rec model.Record) (model.Record, error) {
		tr, ok := rec.(*model.TaskRecord)
		if !ok {
			tr = &model.TaskRecord{Schema: model.SchemaVersion, Kind: model.KindTask}
		}
		tr.ID = realID
		created = tr.Task()
		return tr, nil
	})
	if err != nil {
		return fmt.Errorf("failed to re-associate %s with %s: %w", docPath, realID, err)
	}

	e.idx.Remove(model.KindTask, tempID)
	e.idx.Set(model.KindTask, realID, docPath)
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}
	// item_add registers the task active regardless of local flags; the
	// cache must say what the remote accepted. A pending completion is
	// confirmed by its own follow-up command.
	created.Completed = false
	created.CompletedAt = time.Time{}
	return e.store.UpsertTask(*created)
}

// ApplyCursor persists the sync token a dispatch returned, so the next
// incremental pass starts past the changes the batch just pushed.
func (e *Engine) ApplyCursor(next string) error {
	return e.store.SetCursor(next)
}
