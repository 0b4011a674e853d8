// Package detect observes local vault edits and translates them into
// mutation intents for the command queue. It only reads the index and the
// snapshot cache; the queue's result step and the engine do all mutation.
package detect

import (
	"fmt"
	"log"
	"os"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/vaultsync/vaultsync/internal/index"
	"github.com/vaultsync/vaultsync/internal/model"
	"github.com/vaultsync/vaultsync/internal/queue"
	"github.com/vaultsync/vaultsync/internal/state"
	"github.com/vaultsync/vaultsync/internal/vault"
)

// Detector diffs edited documents against the snapshot cache and emits
// intents. While the reconciliation engine is mid-pass the detector is
// paused, so the engine's own writes are never misread as user edits.
type Detector struct {
	tree   vault.Tree
	idx    *index.Index
	store  *state.Store
	sink   func(queue.Intent)
	logger *log.Logger

	paused  atomic.Bool
	tempSeq atomic.Int64
	due     *when.Parser
}

// New creates a detector that feeds intents into sink. If logger is nil, a
// default logger writing to stderr is used.
func New(tree vault.Tree, idx *index.Index, store *state.Store, sink func(queue.Intent), logger *log.Logger) *Detector {
	if logger == nil {
		logger = log.New(os.Stderr, "[detect] ", log.LstdFlags)
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Detector{
		tree:   tree,
		idx:    idx,
		store:  store,
		sink:   sink,
		logger: logger,
		due:    w,
	}
}

// Pause makes the detector discard events until Resume. Called around every
// reconciliation pass and result-application step.
func (d *Detector) Pause() { d.paused.Store(true) }

// Resume re-enables event handling.
func (d *Detector) Resume() { d.paused.Store(false) }

// Paused reports whether events are currently discarded.
func (d *Detector) Paused() bool { return d.paused.Load() }

// HandleEvent inspects one vault event and emits at most one intent.
func (d *Detector) HandleEvent(ev vault.Event) {
	if d.paused.Load() {
		return
	}
	if ev.Op == vault.OpDelete {
		// Local deletions are not pushed; a rename surfaces again as a
		// create on the new path.
		return
	}

	rec, err := d.tree.ReadRecord(ev.Path)
	if err != nil {
		// Foreign or half-written document: not ours to track.
		return
	}

	tr, ok := rec.(*model.TaskRecord)
	if !ok {
		// Project and section index documents are mirror-owned; edits to
		// them are reconciled, not pushed.
		return
	}

	id, known := d.resolveID(ev.Path, tr)
	if !known {
		if ev.Op == vault.OpCreate {
			d.handleCreate(ev.Path, tr)
		}
		return
	}

	cached, ok := d.store.Task(id)
	if !ok {
		d.logger.Printf("Warning: document %s resolves to task %s with no cache entry, ignoring", ev.Path, id)
		return
	}

	// Completion toggle outranks everything else; at most one of the two
	// fires per notification.
	if tr.Completed && !cached.Completed {
		d.sink(queue.Intent{Kind: queue.IntentComplete, ID: id})
		return
	}
	if !tr.Completed && cached.Completed {
		d.sink(queue.Intent{Kind: queue.IntentUncomplete, ID: id})
		return
	}

	changes := d.diff(tr, &cached, docName(ev.Path))
	if changes.Empty() {
		return
	}
	d.sink(queue.Intent{Kind: queue.IntentUpdate, ID: id, Changes: changes})
}

// resolveID maps a document to its task id: by reverse lookup first, then by
// the record's own id for documents the user has renamed or moved (the
// index still points at the old path).
func (d *Detector) resolveID(p string, tr *model.TaskRecord) (string, bool) {
	if ref, ok := d.idx.ReverseLookup(p); ok {
		if ref.Kind != model.KindTask {
			return "", false
		}
		return ref.ID, true
	}
	if tr.ID != "" && d.store.Has(model.KindTask, tr.ID) {
		return tr.ID, true
	}
	return "", false
}

// handleCreate turns a brand-new task document without a remote id into a
// create intent under a temporary id. The temp id is indexed at the new
// path so the accepted creation can re-associate the document.
func (d *Detector) handleCreate(p string, tr *model.TaskRecord) {
	if tr.ID != "" {
		// Carries an id the cache doesn't know; next pass sorts it out.
		return
	}
	content := tr.Content
	if content == "" {
		content = docName(p)
	}
	if content == "" {
		return
	}

	t := model.Task{
		Content:     content,
		Description: tr.Description,
		ProjectID:   tr.Project,
		SectionID:   tr.Section,
		Priority:    tr.Priority,
		Labels:      tr.Labels,
	}
	if t.ProjectID == "" && t.SectionID == "" {
		d.inferParent(p, &t)
	}
	if tr.DueString != "" {
		t.Due = &model.Due{String: tr.DueString, Date: d.parseDue(tr.DueString)}
	}

	tempID := fmt.Sprintf("tmp-%d-%d", time.Now().Unix(), d.tempSeq.Add(1))
	d.logger.Printf("New local task %q at %s (temp id %s)", content, p, tempID)
	d.sink(queue.Intent{Kind: queue.IntentCreate, ID: tempID, Path: p, Create: &t})
}

// inferParent fills project/section ids from the enclosing folder's index
// document, so a document dropped into a project folder lands in that
// project remotely.
func (d *Detector) inferParent(p string, t *model.Task) {
	dir := path.Dir(p)
	for dir != "." && dir != "/" {
		indexDoc := path.Join(dir, path.Base(dir)+vault.DocExt)
		if ref, ok := d.idx.ReverseLookup(indexDoc); ok {
			switch ref.Kind {
			case model.KindSection:
				t.SectionID = ref.ID
				if s, ok := d.store.Section(ref.ID); ok {
					t.ProjectID = s.ProjectID
				}
			case model.KindProject:
				t.ProjectID = ref.ID
			}
			return
		}
		dir = path.Dir(dir)
	}
}

// diff compares tracked scalar fields against the cache and folds every
// difference into one sparse patch.
func (d *Detector) diff(tr *model.TaskRecord, cached *model.Task, name string) model.Changes {
	var ch model.Changes

	// A blank content field on a renamed document means the new document
	// name is the content.
	content := tr.Content
	if content == "" {
		content = name
	}
	if content != "" && content != cached.Content {
		ch.Content = model.Ptr(content)
	}

	if tr.Description != cached.Description {
		ch.Description = model.Ptr(tr.Description)
	}

	if tr.Priority != 0 && tr.Priority != cached.Priority {
		if !model.PriorityValid(tr.Priority) {
			d.logger.Printf("Warning: task %s has out-of-range priority %d, not sending", cached.ID, tr.Priority)
		} else {
			ch.Priority = model.Ptr(tr.Priority)
		}
	}

	if tr.DueString != cached.DueString() {
		ch.DueString = model.Ptr(tr.DueString)
		if tr.DueString != "" {
			if date := d.parseDue(tr.DueString); date != "" {
				ch.DueDate = model.Ptr(date)
			} else {
				d.logger.Printf("Warning: due string %q for task %s did not parse locally; the service may reject it", tr.DueString, cached.ID)
			}
		}
	}

	if !equalLabels(tr.Labels, cached.Labels) {
		labels := append([]string(nil), tr.Labels...)
		ch.Labels = &labels
	}

	return ch
}

// parseDue resolves a human due string ("tomorrow", "every friday 5pm") to
// a YYYY-MM-DD date, or "" when it doesn't parse.
func (d *Detector) parseDue(s string) string {
	text := strings.TrimPrefix(strings.ToLower(s), "every ")
	r, err := d.due.Parse(text, time.Now())
	if err != nil || r == nil {
		return ""
	}
	return r.Time.Format("2006-01-02")
}

// docName returns a document's name without folder or extension.
func docName(p string) string {
	return strings.TrimSuffix(path.Base(p), vault.DocExt)
}

func equalLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
