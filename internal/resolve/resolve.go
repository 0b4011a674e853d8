// Package resolve computes the canonical vault location for each entity:
// where an active project, section, or task belongs given its name and
// ancestry, and where lifecycle buckets (done, archived, trashed) relocate
// it. All functions are deterministic; collision handling is numeric
// disambiguation, never randomness.
package resolve

import (
	"fmt"
	"path"
	"strings"

	"github.com/vaultsync/vaultsync/internal/model"
	"github.com/vaultsync/vaultsync/internal/vault"
)

// Layout names the special folders of the mirror inside the vault root.
type Layout struct {
	// DoneDir holds completed task documents.
	DoneDir string
	// ArchiveDir holds archived projects and sections.
	ArchiveDir string
	// TrashDir holds deleted entities.
	TrashDir string
}

// DefaultLayout returns the standard folder names.
func DefaultLayout() Layout {
	return Layout{
		DoneDir:    "Done",
		ArchiveDir: "Archive",
		TrashDir:   "Trash",
	}
}

// Resolver computes canonical and bucket locations against one layout.
type Resolver struct {
	layout Layout
}

// New creates a resolver for the given layout.
func New(layout Layout) *Resolver {
	return &Resolver{layout: layout}
}

// pathUnsafe are characters replaced during sanitization. Covers the
// platforms' reserved path characters plus wiki-link breakers.
const pathUnsafe = `/\:*?"<>|#^[]`

// Sanitize turns an entity name into a usable path segment. Unsafe
// characters become underscores; surrounding whitespace and dots are
// trimmed. Returns "" for names with nothing usable left, which callers
// treat as "skip this entity for now".
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(pathUnsafe, r) {
			b.WriteRune('_')
		} else {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), " .\t\n")
}

// ProjectFolder returns the canonical folder for an active project.
// Returns "" if the name sanitizes to nothing.
func (r *Resolver) ProjectFolder(p *model.Project) string {
	return Sanitize(p.Name)
}

// SectionFolder returns the canonical folder for an active section under
// its project's folder.
func (r *Resolver) SectionFolder(s *model.Section, projectFolder string) string {
	name := Sanitize(s.Name)
	if name == "" {
		return ""
	}
	return path.Join(projectFolder, name)
}

// IndexDoc returns the folder's index document path: a document named after
// the folder, inside it.
func (r *Resolver) IndexDoc(folder string) string {
	return path.Join(folder, path.Base(folder)+vault.DocExt)
}

// TaskDoc returns the canonical document path for an active task inside
// parentFolder ("" means the vault root). Returns "" if the content
// sanitizes to nothing.
func (r *Resolver) TaskDoc(t *model.Task, parentFolder string) string {
	name := Sanitize(t.Content)
	if name == "" {
		return ""
	}
	return path.Join(parentFolder, name+vault.DocExt)
}

// BucketFolder returns the root folder of a lifecycle bucket. BucketActive
// has no single root and returns "".
func (r *Resolver) BucketFolder(b model.Bucket) string {
	switch b {
	case model.BucketDone:
		return r.layout.DoneDir
	case model.BucketArchived:
		return r.layout.ArchiveDir
	case model.BucketTrashed:
		return r.layout.TrashDir
	default:
		return ""
	}
}

// BucketPath relocates a document or folder name into a lifecycle bucket:
// the bucket root plus the entity's base name.
func (r *Resolver) BucketPath(b model.Bucket, name string) string {
	return path.Join(r.BucketFolder(b), path.Base(name))
}

// IsBucketPath reports whether p lies under any lifecycle bucket root.
func (r *Resolver) IsBucketPath(p string) bool {
	for _, root := range []string{r.layout.DoneDir, r.layout.ArchiveDir, r.layout.TrashDir} {
		if p == root || strings.HasPrefix(p, root+"/") {
			return true
		}
	}
	return false
}

// Disambiguate returns candidate if it is free or already owned by id;
// otherwise it appends _1, _2, ... before the extension until an unclaimed,
// nonexistent path is found. owner reports the id that currently claims a
// path ("" for none).
func Disambiguate(tree vault.Tree, owner func(string) string, id, candidate string) string {
	if available(tree, owner, id, candidate) {
		return candidate
	}
	ext := ""
	stem := candidate
	if strings.HasSuffix(candidate, vault.DocExt) {
		ext = vault.DocExt
		stem = strings.TrimSuffix(candidate, vault.DocExt)
	}
	for i := 1; ; i++ {
		next := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if available(tree, owner, id, next) {
			return next
		}
	}
}

func available(tree vault.Tree, owner func(string) string, id, p string) bool {
	if o := owner(p); o != "" {
		return o == id
	}
	return !tree.Exists(p)
}
