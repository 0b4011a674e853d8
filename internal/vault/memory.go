package vault

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/vaultsync/vaultsync/internal/model"
)

// Memory is an in-memory Tree. It backs tests and keeps the mirror's tree
// semantics (folder moves, trash, frontmatter records) exercisable without
// touching disk.
type Memory struct {
	mu   sync.Mutex
	docs map[string]*memDoc

	// Ops counts mutating calls, letting tests assert idempotence.
	Ops int
}

type memDoc struct {
	rec  model.Record
	body []byte
}

// NewMemory returns an empty in-memory vault.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]*memDoc)}
}

// Create implements Tree.
func (v *Memory) Create(p string, rec model.Record) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	p = path.Clean(p)
	if _, ok := v.docs[p]; ok {
		return fmt.Errorf("vault: %s already exists", p)
	}
	v.Ops++
	v.docs[p] = &memDoc{rec: rec}
	return nil
}

// RenameOrMove implements Tree. A folder move rewrites every document path
// under the old folder.
func (v *Memory) RenameOrMove(oldPath, newPath string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	oldPath = path.Clean(oldPath)
	newPath = path.Clean(newPath)

	if doc, ok := v.docs[oldPath]; ok {
		if _, exists := v.docs[newPath]; exists {
			return fmt.Errorf("vault: %s already exists", newPath)
		}
		v.Ops++
		delete(v.docs, oldPath)
		v.docs[newPath] = doc
		return nil
	}

	prefix := oldPath + "/"
	moved := false
	for p, doc := range v.docs {
		if strings.HasPrefix(p, prefix) {
			delete(v.docs, p)
			v.docs[newPath+"/"+p[len(prefix):]] = doc
			moved = true
		}
	}
	if !moved {
		return fmt.Errorf("vault: %s: %w", oldPath, ErrNotFound)
	}
	v.Ops++
	return nil
}

// Exists implements Tree.
func (v *Memory) Exists(p string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.existsLocked(path.Clean(p))
}

func (v *Memory) existsLocked(p string) bool {
	if _, ok := v.docs[p]; ok {
		return true
	}
	prefix := p + "/"
	for dp := range v.docs {
		if strings.HasPrefix(dp, prefix) {
			return true
		}
	}
	return false
}

// ListDocuments implements Tree.
func (v *Memory) ListDocuments(root string) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var docs []string
	prefix := ""
	if root != "" && root != "." {
		prefix = path.Clean(root) + "/"
	}
	for p := range v.docs {
		if strings.HasPrefix(p, TrashDirName+"/") {
			continue
		}
		if prefix == "" || strings.HasPrefix(p, prefix) {
			docs = append(docs, p)
		}
	}
	sort.Strings(docs)
	return docs, nil
}

// ReadRecord implements Tree.
func (v *Memory) ReadRecord(p string) (model.Record, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	doc, ok := v.docs[path.Clean(p)]
	if !ok {
		return nil, ErrNotFound
	}
	if doc.rec == nil {
		return nil, ErrNoFrontmatter
	}
	return doc.rec, nil
}

// WriteRecord implements Tree.
func (v *Memory) WriteRecord(p string, mutate func(model.Record) (model.Record, error)) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	doc, ok := v.docs[path.Clean(p)]
	if !ok {
		return ErrNotFound
	}
	next, err := mutate(doc.rec)
	if err != nil {
		return err
	}
	v.Ops++
	doc.rec = next
	return nil
}

// SoftDelete implements Tree.
func (v *Memory) SoftDelete(p string) error {
	target := path.Join(TrashDirName, path.Base(p))
	for i := 1; v.Exists(target); i++ {
		ext := path.Ext(p)
		base := strings.TrimSuffix(path.Base(p), ext)
		target = path.Join(TrashDirName, fmt.Sprintf("%s_%d%s", base, i, ext))
	}
	return v.RenameOrMove(p, target)
}

// SetRecord force-writes a record at p, creating the document if missing.
// Test helper for simulating external edits.
func (v *Memory) SetRecord(p string, rec model.Record) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p = path.Clean(p)
	if doc, ok := v.docs[p]; ok {
		doc.rec = rec
		return
	}
	v.docs[p] = &memDoc{rec: rec}
}
