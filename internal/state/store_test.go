package state

import (
	"path/filepath"
	"testing"

	"github.com/vaultsync/vaultsync/internal/model"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return s
}

func TestUpsertAndLookup(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "state.db"))
	defer s.Close()

	if err := s.UpsertProject(model.Project{ID: "p1", Name: "Work"}); err != nil {
		t.Fatalf("UpsertProject failed: %v", err)
	}
	if err := s.UpsertSection(model.Section{ID: "s1", Name: "Dev", ProjectID: "p1"}); err != nil {
		t.Fatalf("UpsertSection failed: %v", err)
	}
	if err := s.UpsertTask(model.Task{ID: "t1", Content: "Fix", ProjectID: "p1"}); err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}

	p, ok := s.Project("p1")
	if !ok || p.Name != "Work" {
		t.Errorf("Project = %+v, %v", p, ok)
	}
	if !s.Has(model.KindSection, "s1") {
		t.Error("Has section failed")
	}
	if s.Has(model.KindTask, "missing") {
		t.Error("Has reported a missing task")
	}

	projects, sections, tasks := s.Counts()
	if projects != 1 || sections != 1 || tasks != 1 {
		t.Errorf("Counts = %d, %d, %d", projects, sections, tasks)
	}

	// Upsert overwrites.
	if err := s.UpsertProject(model.Project{ID: "p1", Name: "Renamed"}); err != nil {
		t.Fatal(err)
	}
	if p, _ := s.Project("p1"); p.Name != "Renamed" {
		t.Errorf("upsert did not overwrite: %+v", p)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s := openTestStore(t, path)
	if err := s.UpsertTask(model.Task{ID: "t1", Content: "Survive restart", Priority: 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCursor("cursor-42"); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s = openTestStore(t, path)
	defer s.Close()

	task, ok := s.Task("t1")
	if !ok || task.Content != "Survive restart" || task.Priority != 2 {
		t.Errorf("task after reopen = %+v, %v", task, ok)
	}
	if got := s.Cursor(); got != "cursor-42" {
		t.Errorf("cursor after reopen = %q", got)
	}
}

func TestReplaceAll(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "state.db"))
	defer s.Close()

	if err := s.UpsertTask(model.Task{ID: "old", Content: "Goes away"}); err != nil {
		t.Fatal(err)
	}

	err := s.ReplaceAll(
		[]model.Project{{ID: "p1", Name: "Work"}},
		nil,
		[]model.Task{{ID: "t1", Content: "New world"}},
	)
	if err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}

	if s.Has(model.KindTask, "old") {
		t.Error("old entity survived ReplaceAll")
	}
	if !s.Has(model.KindTask, "t1") || !s.Has(model.KindProject, "p1") {
		t.Error("new entities missing after ReplaceAll")
	}
	projects, sections, tasks := s.Counts()
	if projects != 1 || sections != 0 || tasks != 1 {
		t.Errorf("Counts = %d, %d, %d", projects, sections, tasks)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "state.db"))
	defer s.Close()

	if err := s.UpsertTask(model.Task{ID: "t1", Content: "Doomed"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(model.KindTask, "t1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if s.Has(model.KindTask, "t1") {
		t.Error("task survived Delete")
	}
	// Deleting a missing entity is not an error.
	if err := s.Delete(model.KindTask, "t1"); err != nil {
		t.Errorf("double Delete errored: %v", err)
	}
}

func TestEmptyCursor(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "state.db"))
	defer s.Close()
	if got := s.Cursor(); got != "" {
		t.Errorf("fresh store cursor = %q, want \"\"", got)
	}
}
