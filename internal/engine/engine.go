// Package engine implements the reconciliation engine: one sync pass merges
// freshly fetched remote state into the snapshot cache, walks the entity
// hierarchy top-down, and moves the vault to match, keeping the identity
// index consistent along the way.
//
// A pass is resilient the same way a full file sync is: per-entity failures
// are logged and skipped, never aborting the pass. Only a fetch-level
// failure aborts, and it leaves cursor, cache, and index untouched so the
// next attempt retries from the same point.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/vaultsync/vaultsync/internal/index"
	"github.com/vaultsync/vaultsync/internal/model"
	"github.com/vaultsync/vaultsync/internal/remote"
	"github.com/vaultsync/vaultsync/internal/resolve"
	"github.com/vaultsync/vaultsync/internal/state"
	"github.com/vaultsync/vaultsync/internal/vault"
)

// Stats counts what one pass did to the vault.
type Stats struct {
	Created   int
	Updated   int
	Relocated int
	Removed   int
	Skipped   int
	Failed    int
}

// Engine orchestrates reconciliation passes.
type Engine struct {
	tree   vault.Tree
	svc    remote.Service
	store  *state.Store
	idx    *index.Index
	res    *resolve.Resolver
	logger *log.Logger
	notify Notifier
}

// New creates an engine. If logger is nil, a default logger writing to
// stderr is used; if notify is nil, notifications are discarded.
func New(tree vault.Tree, svc remote.Service, store *state.Store, idx *index.Index, res *resolve.Resolver, logger *log.Logger, notify Notifier) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	if notify == nil {
		notify = NopNotifier{}
	}
	return &Engine{
		tree:   tree,
		svc:    svc,
		store:  store,
		idx:    idx,
		res:    res,
		logger: logger,
		notify: notify,
	}
}

// passContext carries the folders resolved so far in one pass, so sections
// and tasks can nest under the location their parent actually ended up at.
type passContext struct {
	projectFolders map[string]string
	sectionFolders map[string]string
}

// RunPass performs one reconciliation pass. With full=false the pass is
// incremental from the persisted cursor; it escalates to full when no
// cursor exists, when any per-kind index is empty (an uninitialized mirror
// must not be diffed against), or when the server answers with a full
// payload anyway.
func (e *Engine) RunPass(ctx context.Context, full bool) (*Stats, error) {
	cursor := e.store.Cursor()
	if cursor == "" {
		full = true
	}

	if !full && (e.idx.Empty(model.KindProject) || e.idx.Empty(model.KindSection) || e.idx.Empty(model.KindTask)) {
		e.logger.Printf("Index has an empty kind; escalating to full pass")
		if err := e.idx.Rebuild(e.tree, e.res.IsBucketPath); err != nil {
			err = fmt.Errorf("failed to rebuild index: %w", err)
			e.notify.PassFailed(full, err)
			return nil, err
		}
		full = true
	}

	e.notify.PassStarted(full)
	e.logger.Printf("Starting %s pass", passName(full))

	fetched, err := e.svc.Fetch(ctx, cursor, full)
	if err != nil {
		e.logger.Printf("Fetch failed: %v", err)
		e.notify.PassFailed(full, err)
		return nil, err
	}
	if fetched.FullSync {
		full = true
	}

	// Last-known completion flags, consulted by the cleanup sweep for ids
	// the merged cache no longer knows.
	prevCompleted := make(map[string]bool)
	if full {
		for _, entry := range e.idx.Entries() {
			if entry.Ref.Kind == model.KindTask {
				if t, ok := e.store.Task(entry.Ref.ID); ok {
					prevCompleted[entry.Ref.ID] = t.Completed
				}
			}
		}
	}

	if err := e.merge(fetched, full); err != nil {
		err = fmt.Errorf("failed to merge snapshot: %w", err)
		e.notify.PassFailed(full, err)
		return nil, err
	}

	stats := &Stats{}
	pc := &passContext{
		projectFolders: make(map[string]string),
		sectionFolders: make(map[string]string),
	}

	for _, p := range e.passProjects(fetched) {
		e.processProject(p, pc, stats)
	}
	for _, s := range e.passSections(fetched) {
		e.processSection(s, pc, stats)
	}
	for _, t := range e.passTasks(fetched) {
		e.processTask(t, pc, stats)
	}

	if full {
		e.cleanupSweep(prevCompleted, stats)
	}

	if err := e.store.SetCursor(fetched.NextCursor); err != nil {
		err = fmt.Errorf("failed to persist cursor: %w", err)
		e.notify.PassFailed(full, err)
		return nil, err
	}

	e.logger.Printf("%s pass complete: created=%d updated=%d relocated=%d removed=%d skipped=%d failed=%d",
		passName(full), stats.Created, stats.Updated, stats.Relocated, stats.Removed, stats.Skipped, stats.Failed)
	e.notify.PassSucceeded(full, *stats)
	return stats, nil
}

func passName(full bool) string {
	if full {
		return "full"
	}
	return "incremental"
}

// merge folds the fetched payload into the snapshot cache: a full payload
// replaces the cache outright, an incremental one upserts by id.
func (e *Engine) merge(fetched *remote.FetchResult, full bool) error {
	if full {
		return e.store.ReplaceAll(fetched.Projects, fetched.Sections, fetched.Tasks)
	}
	for _, p := range fetched.Projects {
		if err := e.store.UpsertProject(p); err != nil {
			return err
		}
	}
	for _, s := range fetched.Sections {
		if err := e.store.UpsertSection(s); err != nil {
			return err
		}
	}
	for _, t := range fetched.Tasks {
		if err := e.store.UpsertTask(t); err != nil {
			return err
		}
	}
	return nil
}

// passProjects returns the projects this pass must process, sorted by id
// for deterministic ordering. A full payload covers the whole remote state,
// an incremental one only the delta; either way the payload is exactly the
// set to walk.
func (e *Engine) passProjects(fetched *remote.FetchResult) []model.Project {
	out := append([]model.Project(nil), fetched.Projects...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (e *Engine) passSections(fetched *remote.FetchResult) []model.Section {
	out := append([]model.Section(nil), fetched.Sections...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (e *Engine) passTasks(fetched *remote.FetchResult) []model.Task {
	out := append([]model.Task(nil), fetched.Tasks...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// cleanupSweep handles hard deletes the remote never flags in-band: any id
// still indexed but absent from the freshly replaced cache is relocated to
// its terminal bucket based on the flags it last had.
func (e *Engine) cleanupSweep(prevCompleted map[string]bool, stats *Stats) {
	for _, entry := range e.idx.Entries() {
		if e.store.Has(entry.Ref.Kind, entry.Ref.ID) {
			continue
		}
		bucket := model.BucketTrashed
		if entry.Ref.Kind == model.KindTask && prevCompleted[entry.Ref.ID] {
			bucket = model.BucketDone
		}
		e.logger.Printf("Sweep: %s %s gone from remote, relocating to %s", entry.Ref.Kind, entry.Ref.ID, bucket)
		if err := e.bucketRelocate(entry.Ref.Kind, entry.Ref.ID, bucket, nil); err != nil {
			e.logger.Printf("Warning: sweep failed for %s %s: %v", entry.Ref.Kind, entry.Ref.ID, err)
			stats.Failed++
			continue
		}
		stats.Removed++
	}
}
