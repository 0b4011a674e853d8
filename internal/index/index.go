// Package index maintains the identity index: the id→path mapping that tells
// the mirror where each remote entity currently lives in the vault. The
// index is a cache over the vault itself and can always be rebuilt by a full
// scan.
package index

import (
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/vaultsync/vaultsync/internal/model"
	"github.com/vaultsync/vaultsync/internal/vault"
)

// Ref names one indexed entity.
type Ref struct {
	Kind model.Kind
	ID   string
}

// Index maps (kind, id) to the entity's current vault path, with a reverse
// map for resolving a touched document back to its entity. Only the
// reconciliation engine and the command queue's result step mutate it; the
// change detector reads it.
type Index struct {
	mu     sync.RWMutex
	byKind map[model.Kind]map[string]string
	byPath map[string]Ref
	logger *log.Logger
}

// New creates an empty index. If logger is nil, a default logger writing to
// stderr is used.
func New(logger *log.Logger) *Index {
	if logger == nil {
		logger = log.New(os.Stderr, "[index] ", log.LstdFlags)
	}
	return &Index{
		byKind: make(map[model.Kind]map[string]string),
		byPath: make(map[string]Ref),
		logger: logger,
	}
}

// Get returns the current path for (kind, id), if any.
func (ix *Index) Get(kind model.Kind, id string) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	p, ok := ix.byKind[kind][id]
	return p, ok
}

// Set records (kind, id) → path, replacing any prior entry for the id.
func (ix *Index) Set(kind model.Kind, id, path string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.setLocked(kind, id, path)
}

func (ix *Index) setLocked(kind model.Kind, id, path string) {
	m, ok := ix.byKind[kind]
	if !ok {
		m = make(map[string]string)
		ix.byKind[kind] = m
	}
	if prior, ok := m[id]; ok {
		delete(ix.byPath, prior)
	}
	m[id] = path
	ix.byPath[path] = Ref{Kind: kind, ID: id}
}

// Remove drops the entry for (kind, id), if present.
func (ix *Index) Remove(kind model.Kind, id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if prior, ok := ix.byKind[kind][id]; ok {
		delete(ix.byPath, prior)
		delete(ix.byKind[kind], id)
	}
}

// ReverseLookup resolves a vault path to the entity indexed at it.
func (ix *Index) ReverseLookup(path string) (Ref, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ref, ok := ix.byPath[path]
	return ref, ok
}

// Owner returns the id indexed at path for the given kind, or "" when the
// path is unclaimed or claimed by another kind.
func (ix *Index) Owner(kind model.Kind, path string) string {
	ref, ok := ix.ReverseLookup(path)
	if !ok || ref.Kind != kind {
		return ""
	}
	return ref.ID
}

// Empty reports whether the index holds no entry for the given kind.
func (ix *Index) Empty(kind model.Kind) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byKind[kind]) == 0
}

// Len returns the number of entries for the given kind.
func (ix *Index) Len(kind model.Kind) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byKind[kind])
}

// Entries returns a snapshot of all (ref, path) pairs, sorted by path for
// deterministic iteration.
func (ix *Index) Entries() []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Entry, 0, len(ix.byPath))
	for p, ref := range ix.byPath {
		out = append(out, Entry{Ref: ref, Path: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Entry is one indexed (entity, path) pair.
type Entry struct {
	Ref  Ref
	Path string
}

// Rebuild repopulates the index from a full vault scan, replacing all prior
// entries. Documents whose frontmatter declares a known kind and id are
// recorded; on an id collision the first path found wins and the duplicate
// is logged. An unreadable document never fails the scan.
//
// Paths for which skip returns true are left out. The index only ever holds
// active entities, so callers pass the lifecycle-bucket test here; indexing
// a relocated document would make the next pass relocate it again. A nil
// skip scans everything.
func (ix *Index) Rebuild(tree vault.Tree, skip func(path string) bool) error {
	docs, err := tree.ListDocuments("")
	if err != nil {
		return err
	}
	sort.Strings(docs)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.byKind = make(map[model.Kind]map[string]string)
	ix.byPath = make(map[string]Ref)

	for _, p := range docs {
		if skip != nil && skip(p) {
			continue
		}
		rec, err := tree.ReadRecord(p)
		if err != nil {
			// Foreign or corrupt document: not ours to index.
			continue
		}
		kind := rec.RecordKind()
		id := rec.EntityID()
		if !kind.Valid() || id == "" {
			continue
		}
		if prior, ok := ix.byKind[kind][id]; ok {
			ix.logger.Printf("Warning: duplicate %s id %s at %s (keeping %s)", kind, id, p, prior)
			continue
		}
		ix.setLocked(kind, id, p)
	}
	return nil
}

// DropPrefix removes every entry whose path lies under folder, across all
// kinds. Used when a folder is relocated to a lifecycle bucket and its
// descendants move along with it. Returns the number of entries dropped.
func (ix *Index) DropPrefix(folder string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	prefix := folder + "/"
	n := 0
	for _, m := range ix.byKind {
		for id, p := range m {
			if strings.HasPrefix(p, prefix) {
				delete(ix.byPath, p)
				delete(m, id)
				n++
			}
		}
	}
	return n
}

// RewritePrefix applies a folder rename to a set of id→path mappings.
// It returns only the entries whose path was under oldPrefix, rewritten to
// sit under newPrefix. Pure function; the caller decides what to do with
// the result.
func RewritePrefix(oldPrefix, newPrefix string, paths map[string]string) map[string]string {
	updated := make(map[string]string)
	prefix := oldPrefix + "/"
	for id, p := range paths {
		if len(p) > len(prefix) && p[:len(prefix)] == prefix {
			updated[id] = newPrefix + "/" + p[len(prefix):]
		}
	}
	return updated
}

// CascadeRename rewrites every indexed path under oldFolder to sit under
// newFolder, across all kinds. Returns the number of entries rewritten.
func (ix *Index) CascadeRename(oldFolder, newFolder string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	n := 0
	for kind, m := range ix.byKind {
		for id, p := range RewritePrefix(oldFolder, newFolder, m) {
			delete(ix.byPath, m[id])
			m[id] = p
			ix.byPath[p] = Ref{Kind: kind, ID: id}
			n++
		}
	}
	return n
}
