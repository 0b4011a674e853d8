package index

import (
	"log"
	"os"
	"strings"
	"testing"

	"github.com/vaultsync/vaultsync/internal/model"
	"github.com/vaultsync/vaultsync/internal/vault"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", 0)
}

func TestSetGetRemove(t *testing.T) {
	ix := New(testLogger())

	ix.Set(model.KindTask, "t1", "Work/Task.md")
	if p, ok := ix.Get(model.KindTask, "t1"); !ok || p != "Work/Task.md" {
		t.Fatalf("Get = %q, %v", p, ok)
	}

	ref, ok := ix.ReverseLookup("Work/Task.md")
	if !ok || ref.Kind != model.KindTask || ref.ID != "t1" {
		t.Fatalf("ReverseLookup = %+v, %v", ref, ok)
	}

	// Re-setting the id drops the stale reverse entry.
	ix.Set(model.KindTask, "t1", "Work/Renamed.md")
	if _, ok := ix.ReverseLookup("Work/Task.md"); ok {
		t.Error("stale reverse entry survived a Set")
	}

	ix.Remove(model.KindTask, "t1")
	if _, ok := ix.Get(model.KindTask, "t1"); ok {
		t.Error("entry survived Remove")
	}
	if _, ok := ix.ReverseLookup("Work/Renamed.md"); ok {
		t.Error("reverse entry survived Remove")
	}
}

func TestOwner(t *testing.T) {
	ix := New(testLogger())
	ix.Set(model.KindProject, "p1", "Work/Work.md")

	if got := ix.Owner(model.KindProject, "Work/Work.md"); got != "p1" {
		t.Errorf("Owner = %q", got)
	}
	if got := ix.Owner(model.KindTask, "Work/Work.md"); got != "" {
		t.Errorf("Owner with wrong kind = %q, want \"\"", got)
	}
	if got := ix.Owner(model.KindProject, "Other/Other.md"); got != "" {
		t.Errorf("Owner of unclaimed path = %q, want \"\"", got)
	}
}

func TestRebuild(t *testing.T) {
	tree := vault.NewMemory()
	tree.SetRecord("Work/Work.md", &model.ProjectRecord{Kind: model.KindProject, ID: "p1", Name: "Work"})
	tree.SetRecord("Work/Dev/Dev.md", &model.SectionRecord{Kind: model.KindSection, ID: "s1", Name: "Dev", Project: "p1"})
	tree.SetRecord("Work/Dev/Fix.md", &model.TaskRecord{Kind: model.KindTask, ID: "t1", Content: "Fix"})
	// Duplicate id at a later path: first path (sorted order) wins.
	tree.SetRecord("Zebra/Fix copy.md", &model.TaskRecord{Kind: model.KindTask, ID: "t1", Content: "Fix"})
	// Unclaimed document: no id, not indexed.
	tree.SetRecord("Inbox/idea.md", &model.TaskRecord{Kind: model.KindTask, Content: "idea"})

	ix := New(testLogger())
	if err := ix.Rebuild(tree, nil); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if got := ix.Len(model.KindProject); got != 1 {
		t.Errorf("project entries = %d", got)
	}
	if got := ix.Len(model.KindSection); got != 1 {
		t.Errorf("section entries = %d", got)
	}
	if got := ix.Len(model.KindTask); got != 1 {
		t.Errorf("task entries = %d", got)
	}
	if p, _ := ix.Get(model.KindTask, "t1"); p != "Work/Dev/Fix.md" {
		t.Errorf("duplicate resolution kept %q, want first sorted path", p)
	}
	if _, ok := ix.ReverseLookup("Inbox/idea.md"); ok {
		t.Error("document without an id was indexed")
	}
}

func TestRebuildSkipsFilteredPaths(t *testing.T) {
	tree := vault.NewMemory()
	tree.SetRecord("Work/Work.md", &model.ProjectRecord{Kind: model.KindProject, ID: "p1", Name: "Work"})
	tree.SetRecord("Work/Fix.md", &model.TaskRecord{Kind: model.KindTask, ID: "t1", Content: "Fix"})
	tree.SetRecord("Done/Old.md", &model.TaskRecord{Kind: model.KindTask, ID: "t2", Content: "Old", Completed: true})

	ix := New(testLogger())
	skip := func(p string) bool { return strings.HasPrefix(p, "Done/") }
	if err := ix.Rebuild(tree, skip); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if _, ok := ix.Get(model.KindTask, "t1"); !ok {
		t.Error("active task missing after filtered rebuild")
	}
	if _, ok := ix.Get(model.KindTask, "t2"); ok {
		t.Error("filtered path was indexed")
	}
}

func TestRewritePrefix(t *testing.T) {
	paths := map[string]string{
		"t1": "Work/Dev/a.md",
		"t2": "Work/Dev/deep/b.md",
		"t3": "Other/c.md",
		"t4": "Workshop/d.md", // shares the string prefix, not the folder
	}
	got := RewritePrefix("Work", "Job", paths)

	if len(got) != 2 {
		t.Fatalf("rewrote %d entries, want 2: %v", len(got), got)
	}
	if got["t1"] != "Job/Dev/a.md" {
		t.Errorf("t1 = %q", got["t1"])
	}
	if got["t2"] != "Job/Dev/deep/b.md" {
		t.Errorf("t2 = %q", got["t2"])
	}
}

func TestCascadeRename(t *testing.T) {
	ix := New(testLogger())
	ix.Set(model.KindProject, "p1", "Work/Work.md")
	ix.Set(model.KindSection, "s1", "Work/Dev/Dev.md")
	ix.Set(model.KindTask, "t1", "Work/Dev/Fix.md")
	ix.Set(model.KindTask, "t2", "Other/Keep.md")

	n := ix.CascadeRename("Work", "Job")
	if n != 3 {
		t.Fatalf("cascaded %d entries, want 3", n)
	}

	if p, _ := ix.Get(model.KindSection, "s1"); p != "Job/Dev/Dev.md" {
		t.Errorf("s1 = %q", p)
	}
	if p, _ := ix.Get(model.KindTask, "t2"); p != "Other/Keep.md" {
		t.Errorf("t2 moved: %q", p)
	}
	if ref, ok := ix.ReverseLookup("Job/Dev/Fix.md"); !ok || ref.ID != "t1" {
		t.Errorf("reverse map not cascaded: %+v, %v", ref, ok)
	}
	if _, ok := ix.ReverseLookup("Work/Dev/Fix.md"); ok {
		t.Error("stale reverse entry after cascade")
	}
}

func TestDropPrefix(t *testing.T) {
	ix := New(testLogger())
	ix.Set(model.KindSection, "s1", "Work/Dev/Dev.md")
	ix.Set(model.KindTask, "t1", "Work/Dev/Fix.md")
	ix.Set(model.KindTask, "t2", "Work/Top.md")

	n := ix.DropPrefix("Work/Dev")
	if n != 2 {
		t.Fatalf("dropped %d entries, want 2", n)
	}
	if _, ok := ix.Get(model.KindTask, "t1"); ok {
		t.Error("descendant survived DropPrefix")
	}
	if _, ok := ix.Get(model.KindTask, "t2"); !ok {
		t.Error("sibling was dropped")
	}
}

func TestEntriesSorted(t *testing.T) {
	ix := New(testLogger())
	ix.Set(model.KindTask, "t2", "b.md")
	ix.Set(model.KindTask, "t1", "a.md")
	ix.Set(model.KindProject, "p1", "c/c.md")

	entries := ix.Entries()
	if len(entries) != 3 {
		t.Fatalf("entries = %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Path >= entries[i].Path {
			t.Fatalf("entries not sorted by path: %v", entries)
		}
	}
}
