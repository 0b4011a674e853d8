package vault

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/vaultsync/vaultsync/internal/model"
)

// TrashDirName is where SoftDelete parks documents the mirror could not
// relocate normally. Hidden so scans and the watcher ignore it.
const TrashDirName = ".trash"

// FS is the on-disk Tree implementation rooted at a vault directory.
type FS struct {
	root string
}

// NewFS opens (creating if needed) a vault rooted at dir.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vault root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create vault root: %w", err)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute vault root directory.
func (v *FS) Root() string { return v.root }

// abs converts a vault-relative slash path to an absolute one, refusing
// escapes above the root.
func (v *FS) abs(rel string) (string, error) {
	clean := path.Clean("/" + rel)
	if clean == "/" {
		return v.root, nil
	}
	return filepath.Join(v.root, filepath.FromSlash(clean[1:])), nil
}

// Rel converts an absolute path inside the vault back to a vault-relative
// slash path. Returns false if p is outside the vault.
func (v *FS) Rel(p string) (string, bool) {
	rel, err := filepath.Rel(v.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Create implements Tree.
func (v *FS) Create(relPath string, rec model.Record) error {
	abs, err := v.abs(relPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err == nil {
		return fmt.Errorf("vault: %s already exists", relPath)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("failed to create parent folder for %s: %w", relPath, err)
	}
	data, err := encodeDocument(rec, nil)
	if err != nil {
		return err
	}
	if err := os.WriteFile(abs, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", relPath, err)
	}
	return nil
}

// RenameOrMove implements Tree.
func (v *FS) RenameOrMove(oldPath, newPath string) error {
	oldAbs, err := v.abs(oldPath)
	if err != nil {
		return err
	}
	newAbs, err := v.abs(newPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(newAbs), 0755); err != nil {
		return fmt.Errorf("failed to create parent folder for %s: %w", newPath, err)
	}
	if err := os.Rename(oldAbs, newAbs); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", oldPath, newPath, err)
	}
	return nil
}

// Exists implements Tree.
func (v *FS) Exists(relPath string) bool {
	abs, err := v.abs(relPath)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// ListDocuments implements Tree. Hidden directories (".trash", editor
// config dirs) are skipped.
func (v *FS) ListDocuments(root string) ([]string, error) {
	abs, err := v.abs(root)
	if err != nil {
		return nil, err
	}
	var docs []string
	walkErr := filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree: skip it, keep walking.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != abs && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(p) != DocExt {
			return nil
		}
		rel, ok := v.Rel(p)
		if !ok {
			return nil
		}
		docs = append(docs, rel)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to walk vault: %w", walkErr)
	}
	return docs, nil
}

// ReadRecord implements Tree.
func (v *FS) ReadRecord(relPath string) (model.Record, error) {
	abs, err := v.abs(relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", relPath, err)
	}
	meta, _, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}
	return decodeRecord(meta)
}

// WriteRecord implements Tree.
func (v *FS) WriteRecord(relPath string, mutate func(model.Record) (model.Record, error)) error {
	abs, err := v.abs(relPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read %s: %w", relPath, err)
	}

	var cur model.Record
	body := data
	if meta, rest, ferr := splitFrontmatter(data); ferr == nil {
		body = rest
		if rec, derr := decodeRecord(meta); derr == nil {
			cur = rec
		}
	}

	next, err := mutate(cur)
	if err != nil {
		return err
	}

	out, err := encodeDocument(next, body)
	if err != nil {
		return err
	}

	// Write through a temp file so a crash never leaves a half-written doc.
	tmp := abs + ".tmp"
	if err := os.WriteFile(tmp, out, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", relPath, err)
	}
	if err := os.Rename(tmp, abs); err != nil {
		return fmt.Errorf("failed to replace %s: %w", relPath, err)
	}
	return nil
}

// SoftDelete implements Tree.
func (v *FS) SoftDelete(relPath string) error {
	target := path.Join(TrashDirName, path.Base(relPath))
	for i := 1; v.Exists(target); i++ {
		ext := path.Ext(relPath)
		base := strings.TrimSuffix(path.Base(relPath), ext)
		target = path.Join(TrashDirName, fmt.Sprintf("%s_%d%s", base, i, ext))
	}
	return v.RenameOrMove(relPath, target)
}
