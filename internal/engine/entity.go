package engine

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/vaultsync/vaultsync/internal/model"
	"github.com/vaultsync/vaultsync/internal/resolve"
	"github.com/vaultsync/vaultsync/internal/vault"
)

// folderOwner returns an ownership probe for folders of the given kind: a
// folder is owned by whichever id has its index document indexed.
func (e *Engine) folderOwner(kind model.Kind) func(string) string {
	return func(folder string) string {
		return e.idx.Owner(kind, e.res.IndexDoc(folder))
	}
}

// docOwner returns an ownership probe for plain documents of the given kind.
func (e *Engine) docOwner(kind model.Kind) func(string) string {
	return func(p string) string {
		return e.idx.Owner(kind, p)
	}
}

func noOwner(string) string { return "" }

func (e *Engine) processProject(p model.Project, pc *passContext, stats *Stats) {
	if bucket := p.Bucket(); bucket != model.BucketActive {
		if err := e.bucketRelocate(model.KindProject, p.ID, bucket, nil); err != nil {
			e.logger.Printf("Warning: failed to relocate project %s to %s: %v", p.ID, bucket, err)
			stats.Failed++
			return
		}
		e.dropTrashed(model.KindProject, p.ID, bucket)
		stats.Removed++
		return
	}

	folder := e.res.ProjectFolder(&p)
	if folder == "" {
		e.logger.Printf("Warning: project %s has an unsanitizable name %q, skipping", p.ID, p.Name)
		stats.Skipped++
		return
	}
	folder = resolve.Disambiguate(e.tree, e.folderOwner(model.KindProject), p.ID, folder)

	if !e.renameFolderIfMoved(model.KindProject, p.ID, folder, stats) {
		return
	}

	if e.ensureDoc(model.KindProject, p.ID, e.res.IndexDoc(folder), model.NewProjectRecord(&p), stats) {
		pc.projectFolders[p.ID] = folder
	}
}

func (e *Engine) processSection(s model.Section, pc *passContext, stats *Stats) {
	if bucket := s.Bucket(); bucket != model.BucketActive {
		if err := e.bucketRelocate(model.KindSection, s.ID, bucket, nil); err != nil {
			e.logger.Printf("Warning: failed to relocate section %s to %s: %v", s.ID, bucket, err)
			stats.Failed++
			return
		}
		e.dropTrashed(model.KindSection, s.ID, bucket)
		stats.Removed++
		return
	}

	parentFolder, ok := e.projectFolderFor(pc, s.ProjectID)
	if !ok {
		e.logger.Printf("Warning: section %s has no resolvable project %s, skipping", s.ID, s.ProjectID)
		stats.Skipped++
		return
	}

	folder := e.res.SectionFolder(&s, parentFolder)
	if folder == "" {
		e.logger.Printf("Warning: section %s has an unsanitizable name %q, skipping", s.ID, s.Name)
		stats.Skipped++
		return
	}
	folder = resolve.Disambiguate(e.tree, e.folderOwner(model.KindSection), s.ID, folder)

	if !e.renameFolderIfMoved(model.KindSection, s.ID, folder, stats) {
		return
	}

	if e.ensureDoc(model.KindSection, s.ID, e.res.IndexDoc(folder), model.NewSectionRecord(&s), stats) {
		pc.sectionFolders[s.ID] = folder
	}
}

func (e *Engine) processTask(t model.Task, pc *passContext, stats *Stats) {
	switch bucket := t.Bucket(); bucket {
	case model.BucketTrashed:
		if err := e.bucketRelocate(model.KindTask, t.ID, bucket, nil); err != nil {
			e.logger.Printf("Warning: failed to relocate task %s to trash: %v", t.ID, err)
			stats.Failed++
			return
		}
		e.dropTrashed(model.KindTask, t.ID, bucket)
		stats.Removed++
		return
	case model.BucketDone:
		// Completed tasks get a full metadata refresh on their way out.
		refresh := func(model.Record) (model.Record, error) {
			return model.NewTaskRecord(&t), nil
		}
		if err := e.bucketRelocate(model.KindTask, t.ID, bucket, refresh); err != nil {
			e.logger.Printf("Warning: failed to relocate task %s to done: %v", t.ID, err)
			stats.Failed++
			return
		}
		stats.Removed++
		return
	}

	parentFolder := ""
	if t.SectionID != "" {
		if f, ok := e.sectionFolderFor(pc, t.SectionID); ok {
			parentFolder = f
		}
	}
	if parentFolder == "" && t.ProjectID != "" {
		if f, ok := e.projectFolderFor(pc, t.ProjectID); ok {
			parentFolder = f
		}
	}

	canonical := e.res.TaskDoc(&t, parentFolder)
	if canonical == "" {
		e.logger.Printf("Warning: task %s has unsanitizable content, skipping", t.ID)
		stats.Skipped++
		return
	}
	canonical = resolve.Disambiguate(e.tree, e.docOwner(model.KindTask), t.ID, canonical)

	e.ensureDoc(model.KindTask, t.ID, canonical, model.NewTaskRecord(&t), stats)
}

// dropTrashed removes a trashed entity's snapshot row. Done and Archive
// keep their rows (an uncomplete or unarchive needs the last known state);
// a trashed entity is gone for good and its snapshot is dead weight.
func (e *Engine) dropTrashed(kind model.Kind, id string, bucket model.Bucket) {
	if bucket != model.BucketTrashed {
		return
	}
	if err := e.store.Delete(kind, id); err != nil {
		e.logger.Printf("Warning: failed to drop trashed %s %s from cache: %v", kind, id, err)
	}
}

// renameFolderIfMoved detects a rename: the indexed path's enclosing folder
// differs from the freshly resolved canonical folder. The folder is moved
// and every indexed descendant path is rewritten to the new prefix.
// Returns false when the move failed and the entity should be abandoned for
// this pass.
func (e *Engine) renameFolderIfMoved(kind model.Kind, id, folder string, stats *Stats) bool {
	prior, ok := e.idx.Get(kind, id)
	if !ok {
		return true
	}
	oldFolder := path.Dir(prior)
	if oldFolder == "." || oldFolder == folder {
		return true
	}
	if !e.tree.Exists(oldFolder) {
		// Index is stale; drop it and treat the entity as new.
		e.logger.Printf("Warning: indexed folder %s for %s %s is gone, reindexing", oldFolder, kind, id)
		e.idx.Remove(kind, id)
		return true
	}
	if err := e.tree.RenameOrMove(oldFolder, folder); err != nil {
		e.logger.Printf("Warning: failed to rename %s folder %s -> %s: %v", kind, oldFolder, folder, err)
		stats.Failed++
		return false
	}
	n := e.idx.CascadeRename(oldFolder, folder)
	e.logger.Printf("Renamed %s folder %s -> %s (%d index entries cascaded)", kind, oldFolder, folder, n)
	stats.Relocated++
	return true
}

// ensureDoc resolves or creates the canonical document for an entity and
// leaves the index pointing at it. Returns false when a tree operation
// failed and the entity was abandoned for this pass.
func (e *Engine) ensureDoc(kind model.Kind, id, canonical string, rec model.Record, stats *Stats) bool {
	write := func(p string) bool {
		err := e.tree.WriteRecord(p, func(model.Record) (model.Record, error) {
			return rec, nil
		})
		if err != nil {
			e.logger.Printf("Warning: failed to write %s %s at %s: %v", kind, id, p, err)
			stats.Failed++
			return false
		}
		e.idx.Set(kind, id, p)
		return true
	}

	if prior, ok := e.idx.Get(kind, id); ok {
		if e.tree.Exists(prior) {
			p := prior
			if prior != canonical {
				if err := e.tree.RenameOrMove(prior, canonical); err != nil {
					e.logger.Printf("Warning: failed to move %s %s to %s: %v", kind, id, canonical, err)
					// Keep the document where it is; refresh metadata in place.
				} else {
					p = canonical
				}
			}
			if write(p) {
				stats.Updated++
				return true
			}
			return false
		}
		// Indexed path points at nothing: stale entry, treat as new.
		e.logger.Printf("Warning: index entry for %s %s points at missing %s, dropping", kind, id, prior)
		e.idx.Remove(kind, id)
	}

	if e.tree.Exists(canonical) {
		if owner := e.idx.Owner(kind, canonical); owner == "" || owner == id {
			if write(canonical) {
				stats.Updated++
				return true
			}
			return false
		}
	}

	if err := e.tree.Create(canonical, rec); err != nil {
		e.logger.Printf("Warning: failed to create %s %s at %s: %v", kind, id, canonical, err)
		stats.Failed++
		return false
	}
	e.idx.Set(kind, id, canonical)
	stats.Created++
	return true
}

// bucketRelocate moves an entity out of the active hierarchy into a
// lifecycle bucket and drops it from the index. For projects and sections
// the enclosing folder is relocated when its name matches the entity's
// index document; otherwise only the document moves. mark overrides the
// default flag-marking metadata mutation.
func (e *Engine) bucketRelocate(kind model.Kind, id string, bucket model.Bucket, mark func(model.Record) (model.Record, error)) error {
	prior, ok := e.idx.Get(kind, id)
	if !ok {
		// Never mirrored (or already relocated): nothing to move.
		return nil
	}
	if mark == nil {
		mark = markBucket(bucket)
	}

	if !e.tree.Exists(prior) {
		e.idx.Remove(kind, id)
		return nil
	}

	folder := path.Dir(prior)
	docName := strings.TrimSuffix(path.Base(prior), vault.DocExt)
	if kind != model.KindTask && folder != "." && path.Base(folder) == docName {
		// The folder is this entity's own; relocate it wholesale.
		dest := resolve.Disambiguate(e.tree, noOwner, "", e.res.BucketPath(bucket, folder))
		if err := e.tree.RenameOrMove(folder, dest); err != nil {
			if sderr := e.tree.SoftDelete(folder); sderr != nil {
				return fmt.Errorf("failed to relocate folder %s: %w", folder, err)
			}
			e.idx.DropPrefix(folder)
			e.idx.Remove(kind, id)
			return nil
		}
		e.idx.DropPrefix(folder)
		e.idx.Remove(kind, id)
		moved := path.Join(dest, path.Base(prior))
		if err := e.tree.WriteRecord(moved, mark); err != nil {
			e.logger.Printf("Warning: failed to mark %s %s after relocation: %v", kind, id, err)
		}
		return nil
	}

	dest := resolve.Disambiguate(e.tree, noOwner, "", e.res.BucketPath(bucket, path.Base(prior)))
	if err := e.tree.RenameOrMove(prior, dest); err != nil {
		if sderr := e.tree.SoftDelete(prior); sderr != nil {
			return fmt.Errorf("failed to relocate %s: %w", prior, err)
		}
		e.idx.Remove(kind, id)
		return nil
	}
	e.idx.Remove(kind, id)
	if err := e.tree.WriteRecord(dest, mark); err != nil {
		e.logger.Printf("Warning: failed to mark %s %s after relocation: %v", kind, id, err)
	}
	return nil
}

// projectFolderFor resolves the current folder of an active project: first
// from this pass's resolutions, then from the index, then from the cache's
// canonical location.
func (e *Engine) projectFolderFor(pc *passContext, id string) (string, bool) {
	if f, ok := pc.projectFolders[id]; ok {
		return f, true
	}
	if doc, ok := e.idx.Get(model.KindProject, id); ok {
		return path.Dir(doc), true
	}
	if p, ok := e.store.Project(id); ok && p.Bucket() == model.BucketActive {
		if f := e.res.ProjectFolder(&p); f != "" {
			return f, true
		}
	}
	return "", false
}

// sectionFolderFor is projectFolderFor for sections.
func (e *Engine) sectionFolderFor(pc *passContext, id string) (string, bool) {
	if f, ok := pc.sectionFolders[id]; ok {
		return f, true
	}
	if doc, ok := e.idx.Get(model.KindSection, id); ok {
		return path.Dir(doc), true
	}
	if s, ok := e.store.Section(id); ok && s.Bucket() == model.BucketActive {
		if parent, ok := e.projectFolderFor(pc, s.ProjectID); ok {
			if f := e.res.SectionFolder(&s, parent); f != "" {
				return f, true
			}
		}
	}
	return "", false
}

// markBucket returns the metadata mutation matching a bucket transition:
// trashed marks deleted, archived marks archived, done marks completed.
func markBucket(bucket model.Bucket) func(model.Record) (model.Record, error) {
	return func(rec model.Record) (model.Record, error) {
		if rec == nil {
			return nil, fmt.Errorf("document has no record to mark")
		}
		switch r := rec.(type) {
		case *model.ProjectRecord:
			switch bucket {
			case model.BucketTrashed:
				r.Deleted = true
			case model.BucketArchived:
				r.Archived = true
			}
		case *model.SectionRecord:
			switch bucket {
			case model.BucketTrashed:
				r.Deleted = true
			case model.BucketArchived:
				r.Archived = true
			}
		case *model.TaskRecord:
			switch bucket {
			case model.BucketTrashed:
				r.Deleted = true
			case model.BucketDone:
				r.Completed = true
				if r.CompletedAt == nil {
					now := time.Now().UTC()
					r.CompletedAt = &now
				}
			}
		}
		return rec, nil
	}
}
