package model

import (
	"strings"
	"testing"
	"time"
)

func TestRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		rec     Record
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid project",
			rec:     &ProjectRecord{Schema: SchemaVersion, Kind: KindProject, ID: "p1", Name: "Work"},
			wantErr: false,
		},
		{
			name:    "project missing id",
			rec:     &ProjectRecord{Schema: SchemaVersion, Kind: KindProject, Name: "Work"},
			wantErr: true,
			errMsg:  "id is required",
		},
		{
			name:    "project missing name",
			rec:     &ProjectRecord{Schema: SchemaVersion, Kind: KindProject, ID: "p1"},
			wantErr: true,
			errMsg:  "name is required",
		},
		{
			name:    "valid section",
			rec:     &SectionRecord{Schema: SchemaVersion, Kind: KindSection, ID: "s1", Name: "Dev", Project: "p1"},
			wantErr: false,
		},
		{
			name:    "section missing project",
			rec:     &SectionRecord{Schema: SchemaVersion, Kind: KindSection, ID: "s1", Name: "Dev"},
			wantErr: true,
			errMsg:  "project is required",
		},
		{
			name:    "valid task",
			rec:     &TaskRecord{Schema: SchemaVersion, Kind: KindTask, ID: "t1", Content: "Do it", Priority: 3},
			wantErr: false,
		},
		{
			name:    "task priority too high",
			rec:     &TaskRecord{Schema: SchemaVersion, Kind: KindTask, ID: "t1", Priority: 5},
			wantErr: true,
			errMsg:  "priority must be 1-4",
		},
		{
			name:    "task priority negative",
			rec:     &TaskRecord{Schema: SchemaVersion, Kind: KindTask, ID: "t1", Priority: -1},
			wantErr: true,
			errMsg:  "priority must be 1-4",
		},
		{
			name:    "task zero priority means unset",
			rec:     &TaskRecord{Schema: SchemaVersion, Kind: KindTask, ID: "t1"},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error %q does not contain %q", err.Error(), tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestBucketDerivation(t *testing.T) {
	p := Project{ID: "p1", Name: "Work"}
	if got := p.Bucket(); got != BucketActive {
		t.Errorf("active project bucket = %v", got)
	}
	p.Archived = true
	if got := p.Bucket(); got != BucketArchived {
		t.Errorf("archived project bucket = %v", got)
	}
	p.Deleted = true
	if got := p.Bucket(); got != BucketTrashed {
		t.Errorf("deleted project bucket = %v, deletion should outrank archive", got)
	}

	task := Task{ID: "t1", Completed: true}
	if got := task.Bucket(); got != BucketDone {
		t.Errorf("completed task bucket = %v", got)
	}
	task.Deleted = true
	if got := task.Bucket(); got != BucketTrashed {
		t.Errorf("deleted task bucket = %v, deletion should outrank completion", got)
	}
}

func TestTaskRecordRoundTrip(t *testing.T) {
	completed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	orig := Task{
		ID:          "t1",
		Content:     "Write report",
		Description: "quarterly numbers",
		ProjectID:   "p1",
		SectionID:   "s1",
		Priority:    4,
		Due:         &Due{Date: "2026-09-01", String: "every monday", Recurring: true},
		Labels:      []string{"work", "urgent"},
		Completed:   true,
		CompletedAt: completed,
	}

	back := NewTaskRecord(&orig).Task()
	if back.Content != orig.Content || back.Description != orig.Description {
		t.Errorf("content/description lost: %+v", back)
	}
	if back.ProjectID != "p1" || back.SectionID != "s1" {
		t.Errorf("ancestry lost: %+v", back)
	}
	if back.Due == nil || back.Due.String != "every monday" || !back.Due.Recurring {
		t.Errorf("due lost: %+v", back.Due)
	}
	if !back.Completed || !back.CompletedAt.Equal(completed) {
		t.Errorf("completion lost: %+v", back)
	}
	if len(back.Labels) != 2 {
		t.Errorf("labels lost: %v", back.Labels)
	}
}

func TestChangesMerge(t *testing.T) {
	older := Changes{Content: Ptr("first"), Priority: Ptr(2)}
	newer := Changes{Content: Ptr("second"), Description: Ptr("added")}
	older.Merge(&newer)

	if *older.Content != "second" {
		t.Errorf("newer content should win, got %q", *older.Content)
	}
	if *older.Priority != 2 {
		t.Errorf("untouched priority should survive, got %d", *older.Priority)
	}
	if older.Description == nil || *older.Description != "added" {
		t.Errorf("newer description should be present")
	}
}

func TestChangesApply(t *testing.T) {
	task := Task{ID: "t1", Content: "old", Priority: 1, Due: &Due{String: "friday", Date: "2026-08-28"}}
	ch := Changes{
		Content:   Ptr("new"),
		DueString: Ptr(""),
		DueDate:   Ptr(""),
	}
	ch.Apply(&task)

	if task.Content != "new" {
		t.Errorf("content = %q", task.Content)
	}
	if task.Priority != 1 {
		t.Errorf("untouched priority changed: %d", task.Priority)
	}
	if task.Due != nil {
		t.Errorf("clearing both due fields should drop the due, got %+v", task.Due)
	}
}

func TestChangesArgs(t *testing.T) {
	ch := Changes{Content: Ptr("x"), Priority: Ptr(3), Labels: &[]string{"a"}}
	args := ch.Args()

	if args["content"] != "x" {
		t.Errorf("args content = %v", args["content"])
	}
	if args["priority"] != 3 {
		t.Errorf("args priority = %v", args["priority"])
	}
	if _, ok := args["due_string"]; ok {
		t.Error("untouched field leaked into args")
	}
	if ch.Empty() {
		t.Error("non-empty patch reported Empty")
	}
	if !(&Changes{}).Empty() {
		t.Error("zero patch should be Empty")
	}
}
