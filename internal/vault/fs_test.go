package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vaultsync/vaultsync/internal/model"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	v, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open vault: %v", err)
	}
	return v
}

func TestCreateAndRead(t *testing.T) {
	v := newTestFS(t)

	rec := &model.TaskRecord{
		Schema:   model.SchemaVersion,
		Kind:     model.KindTask,
		ID:       "t1",
		Content:  "Fix the build",
		Priority: 3,
		Labels:   []string{"ci"},
	}
	if err := v.Create("Work/Fix the build.md", rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := v.Create("Work/Fix the build.md", rec); err == nil {
		t.Fatal("Create over an existing document should fail")
	}

	got, err := v.ReadRecord("Work/Fix the build.md")
	if err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}
	tr, ok := got.(*model.TaskRecord)
	if !ok {
		t.Fatalf("decoded record has type %T", got)
	}
	if tr.ID != "t1" || tr.Content != "Fix the build" || tr.Priority != 3 {
		t.Errorf("round trip lost fields: %+v", tr)
	}
}

func TestReadRecordErrors(t *testing.T) {
	v := newTestFS(t)

	if _, err := v.ReadRecord("missing.md"); err != ErrNotFound {
		t.Errorf("missing document error = %v, want ErrNotFound", err)
	}

	plain := filepath.Join(v.Root(), "notes.md")
	if err := os.WriteFile(plain, []byte("just some text\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := v.ReadRecord("notes.md"); err != ErrNoFrontmatter {
		t.Errorf("plain document error = %v, want ErrNoFrontmatter", err)
	}
}

func TestWriteRecordPreservesBody(t *testing.T) {
	v := newTestFS(t)

	doc := "---\nschema: 1\nkind: task\nid: t1\ncontent: Original\ncompleted: false\n---\n\nMy own notes below the frontmatter.\n"
	abs := filepath.Join(v.Root(), "Task.md")
	if err := os.WriteFile(abs, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	err := v.WriteRecord("Task.md", func(rec model.Record) (model.Record, error) {
		tr := rec.(*model.TaskRecord)
		tr.Content = "Updated"
		return tr, nil
	})
	if err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}

	raw, err := os.ReadFile(abs)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "My own notes below the frontmatter.") {
		t.Error("body was lost on metadata rewrite")
	}
	if !strings.Contains(string(raw), "content: Updated") {
		t.Error("frontmatter was not updated")
	}

	got, err := v.ReadRecord("Task.md")
	if err != nil {
		t.Fatal(err)
	}
	if got.(*model.TaskRecord).Content != "Updated" {
		t.Errorf("content = %q", got.(*model.TaskRecord).Content)
	}
}

func TestRenameOrMoveFolder(t *testing.T) {
	v := newTestFS(t)

	rec := &model.ProjectRecord{Schema: model.SchemaVersion, Kind: model.KindProject, ID: "p1", Name: "Work"}
	if err := v.Create("Work/Work.md", rec); err != nil {
		t.Fatal(err)
	}
	task := &model.TaskRecord{Schema: model.SchemaVersion, Kind: model.KindTask, ID: "t1", Content: "Deep"}
	if err := v.Create("Work/Dev/Deep.md", task); err != nil {
		t.Fatal(err)
	}

	if err := v.RenameOrMove("Work", "Job"); err != nil {
		t.Fatalf("folder move failed: %v", err)
	}
	if v.Exists("Work") {
		t.Error("old folder still exists")
	}
	if !v.Exists("Job/Dev/Deep.md") {
		t.Error("descendant did not move with the folder")
	}
}

func TestListDocumentsSkipsHidden(t *testing.T) {
	v := newTestFS(t)

	rec := &model.TaskRecord{Schema: model.SchemaVersion, Kind: model.KindTask, ID: "t1", Content: "A"}
	if err := v.Create("Work/A.md", rec); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{
		filepath.Join(v.Root(), ".obsidian", "workspace.md"),
		filepath.Join(v.Root(), TrashDirName, "old.md"),
		filepath.Join(v.Root(), "Work", "notes.txt"),
	} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	docs, err := v.ListDocuments("")
	if err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
	if len(docs) != 1 || docs[0] != "Work/A.md" {
		t.Errorf("docs = %v, want just Work/A.md", docs)
	}
}

func TestSoftDelete(t *testing.T) {
	v := newTestFS(t)

	rec := &model.TaskRecord{Schema: model.SchemaVersion, Kind: model.KindTask, ID: "t1", Content: "A"}
	if err := v.Create("Work/A.md", rec); err != nil {
		t.Fatal(err)
	}
	if err := v.SoftDelete("Work/A.md"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if v.Exists("Work/A.md") {
		t.Error("document still at old path")
	}
	if !v.Exists(TrashDirName + "/A.md") {
		t.Error("document not in trash")
	}

	// A name collision in the trash gets a numeric suffix.
	if err := v.Create("Other/A.md", &model.TaskRecord{Schema: model.SchemaVersion, Kind: model.KindTask, ID: "t2", Content: "A"}); err != nil {
		t.Fatal(err)
	}
	if err := v.SoftDelete("Other/A.md"); err != nil {
		t.Fatalf("second SoftDelete failed: %v", err)
	}
	if !v.Exists(TrashDirName + "/A_1.md") {
		t.Error("colliding trash name was not disambiguated")
	}
}

func TestRelRejectsOutside(t *testing.T) {
	v := newTestFS(t)
	if _, ok := v.Rel(filepath.Join(v.Root(), "..", "escape.md")); ok {
		t.Error("path outside the vault resolved")
	}
	if rel, ok := v.Rel(filepath.Join(v.Root(), "Work", "A.md")); !ok || rel != "Work/A.md" {
		t.Errorf("Rel = %q, %v", rel, ok)
	}
}
