// Package vault provides the local document tree the mirror writes into: a
// folder hierarchy of Markdown documents whose YAML frontmatter carries the
// typed entity records. Frontmatter is encoded and decoded only here;
// callers above this package never see raw metadata maps.
package vault

import (
	"errors"

	"github.com/vaultsync/vaultsync/internal/model"
)

// DocExt is the extension of every mirrored document.
const DocExt = ".md"

// ErrNotFound is returned when a path names no existing document.
var ErrNotFound = errors.New("vault: document not found")

// ErrNoFrontmatter is returned when a document has no frontmatter block.
var ErrNoFrontmatter = errors.New("vault: document has no frontmatter")

// Tree is the local tree store. Paths are vault-relative, slash-separated,
// without a leading slash. Folder paths name directories; document paths end
// in DocExt. Implementations create missing parent folders on Create and
// RenameOrMove.
type Tree interface {
	// Create writes a new document at path with the given record and an
	// empty body. Fails if a document already exists there.
	Create(path string, rec model.Record) error

	// RenameOrMove relocates a document or a whole folder. Moving a folder
	// carries every document under it.
	RenameOrMove(oldPath, newPath string) error

	// Exists reports whether a document or folder exists at path.
	Exists(path string) bool

	// ListDocuments returns the paths of all documents under root
	// (vault-relative; "" means the whole vault).
	ListDocuments(root string) ([]string, error)

	// ReadRecord decodes the frontmatter record of the document at path.
	ReadRecord(path string) (model.Record, error)

	// WriteRecord applies mutate to the document's current record (nil for a
	// document without frontmatter) and writes the result back, preserving
	// the document body.
	WriteRecord(path string, mutate func(model.Record) (model.Record, error)) error

	// SoftDelete moves the document or folder into the vault's local trash.
	// Fallback for when a bucket relocation is not possible; nothing in the
	// vault is ever hard-deleted by the mirror.
	SoftDelete(path string) error
}
