package resolve

import (
	"testing"

	"github.com/vaultsync/vaultsync/internal/model"
	"github.com/vaultsync/vaultsync/internal/vault"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Work", "Work"},
		{"slash", "a/b", "a_b"},
		{"windows reserved", `a:b*c?d`, "a_b_c_d"},
		{"wiki breakers", "note [one] #two", "note _one_ _two"},
		{"surrounding dots and spaces", "  .hidden. ", "hidden"},
		{"only unsafe", "???", "___"},
		{"only dots", "...", ""},
		{"empty", "", ""},
		{"unicode kept", "日本語タスク", "日本語タスク"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCanonicalPaths(t *testing.T) {
	r := New(DefaultLayout())

	p := model.Project{ID: "p1", Name: "Work"}
	if got := r.ProjectFolder(&p); got != "Work" {
		t.Errorf("ProjectFolder = %q", got)
	}
	if got := r.IndexDoc("Work"); got != "Work/Work.md" {
		t.Errorf("IndexDoc = %q", got)
	}

	s := model.Section{ID: "s1", Name: "Dev", ProjectID: "p1"}
	if got := r.SectionFolder(&s, "Work"); got != "Work/Dev" {
		t.Errorf("SectionFolder = %q", got)
	}

	task := model.Task{ID: "t1", Content: "Fix the build"}
	if got := r.TaskDoc(&task, "Work/Dev"); got != "Work/Dev/Fix the build.md" {
		t.Errorf("TaskDoc = %q", got)
	}
	if got := r.TaskDoc(&task, ""); got != "Fix the build.md" {
		t.Errorf("root TaskDoc = %q", got)
	}

	task.Content = "..."
	if got := r.TaskDoc(&task, "Work"); got != "" {
		t.Errorf("unsanitizable content should yield \"\", got %q", got)
	}
}

func TestBucketPaths(t *testing.T) {
	r := New(Layout{DoneDir: "Done", ArchiveDir: "Archive", TrashDir: "Trash"})

	if got := r.BucketPath(model.BucketDone, "Work/Dev/Task.md"); got != "Done/Task.md" {
		t.Errorf("BucketPath done = %q", got)
	}
	if got := r.BucketPath(model.BucketArchived, "Work"); got != "Archive/Work" {
		t.Errorf("BucketPath archive = %q", got)
	}
	if got := r.BucketPath(model.BucketTrashed, "Work/Dev"); got != "Trash/Dev" {
		t.Errorf("BucketPath trash = %q", got)
	}

	if !r.IsBucketPath("Done/Task.md") {
		t.Error("Done/Task.md should be a bucket path")
	}
	if !r.IsBucketPath("Trash") {
		t.Error("bucket root itself should count")
	}
	if r.IsBucketPath("Donezo/Task.md") {
		t.Error("prefix match must respect folder boundary")
	}
	if r.IsBucketPath("Work/Done/Task.md") {
		t.Error("nested folder named like a bucket is not a bucket path")
	}
}

func TestDisambiguate(t *testing.T) {
	tree := vault.NewMemory()
	owned := map[string]string{}
	owner := func(p string) string { return owned[p] }

	// Free path: used as-is.
	if got := Disambiguate(tree, owner, "t1", "Work/Task.md"); got != "Work/Task.md" {
		t.Errorf("free path = %q", got)
	}

	// Path owned by the same id: reused.
	owned["Work/Task.md"] = "t1"
	tree.SetRecord("Work/Task.md", &model.TaskRecord{Kind: model.KindTask, ID: "t1"})
	if got := Disambiguate(tree, owner, "t1", "Work/Task.md"); got != "Work/Task.md" {
		t.Errorf("self-owned path = %q", got)
	}

	// Path owned by another id: suffix before the extension.
	if got := Disambiguate(tree, owner, "t2", "Work/Task.md"); got != "Work/Task_1.md" {
		t.Errorf("collision = %q", got)
	}

	// Existing but unowned document also collides.
	tree.SetRecord("Work/Task_1.md", &model.TaskRecord{Kind: model.KindTask, ID: "x"})
	if got := Disambiguate(tree, owner, "t2", "Work/Task.md"); got != "Work/Task_2.md" {
		t.Errorf("second collision = %q", got)
	}

	// Folders get a plain suffix.
	folderOwner := func(p string) string {
		if p == "Work" {
			return "p1"
		}
		return ""
	}
	if got := Disambiguate(tree, folderOwner, "p2", "Work"); got != "Work_1" {
		t.Errorf("folder collision = %q", got)
	}
}
