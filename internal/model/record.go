package model

import (
	"fmt"
	"time"
)

// SchemaVersion is written into every frontmatter record so future format
// changes can be detected on read.
const SchemaVersion = 1

// Record is the typed frontmatter payload of one vault document. Records are
// encoded and decoded only at the vault boundary; everything above it works
// with these structs, never raw maps.
type Record interface {
	// RecordKind returns the entity kind this record describes.
	RecordKind() Kind
	// EntityID returns the stable remote id, or "" for an unclaimed document.
	EntityID() string
	// Validate checks required fields and value ranges.
	Validate() error
}

// ProjectRecord is the frontmatter of a project's folder index document.
type ProjectRecord struct {
	Schema   int    `yaml:"schema"`
	Kind     Kind   `yaml:"kind"`
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Archived bool   `yaml:"archived,omitempty"`
	Deleted  bool   `yaml:"deleted,omitempty"`
}

// RecordKind implements Record.
func (r *ProjectRecord) RecordKind() Kind { return KindProject }

// EntityID implements Record.
func (r *ProjectRecord) EntityID() string { return r.ID }

// Validate implements Record.
func (r *ProjectRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("project record: id is required")
	}
	if r.Name == "" {
		return fmt.Errorf("project record %s: name is required", r.ID)
	}
	return nil
}

// SectionRecord is the frontmatter of a section's folder index document.
type SectionRecord struct {
	Schema   int    `yaml:"schema"`
	Kind     Kind   `yaml:"kind"`
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Project  string `yaml:"project"`
	Archived bool   `yaml:"archived,omitempty"`
	Deleted  bool   `yaml:"deleted,omitempty"`
}

// RecordKind implements Record.
func (r *SectionRecord) RecordKind() Kind { return KindSection }

// EntityID implements Record.
func (r *SectionRecord) EntityID() string { return r.ID }

// Validate implements Record.
func (r *SectionRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("section record: id is required")
	}
	if r.Name == "" {
		return fmt.Errorf("section record %s: name is required", r.ID)
	}
	if r.Project == "" {
		return fmt.Errorf("section record %s: project is required", r.ID)
	}
	return nil
}

// TaskRecord is the frontmatter of a task document.
type TaskRecord struct {
	Schema      int        `yaml:"schema"`
	Kind        Kind       `yaml:"kind"`
	ID          string     `yaml:"id"`
	Content     string     `yaml:"content"`
	Description string     `yaml:"description,omitempty"`
	Project     string     `yaml:"project,omitempty"`
	Section     string     `yaml:"section,omitempty"`
	Parent      string     `yaml:"parent,omitempty"`
	Priority    int        `yaml:"priority,omitempty"`
	DueDate     string     `yaml:"due_date,omitempty"`
	DueString   string     `yaml:"due_string,omitempty"`
	Recurring   bool       `yaml:"recurring,omitempty"`
	Labels      []string   `yaml:"labels,omitempty"`
	Completed   bool       `yaml:"completed"`
	CompletedAt *time.Time `yaml:"completed_at,omitempty"`
	Deleted     bool       `yaml:"deleted,omitempty"`
	CreatedAt   *time.Time `yaml:"created_at,omitempty"`
	URL         string     `yaml:"url,omitempty"`
}

// RecordKind implements Record.
func (r *TaskRecord) RecordKind() Kind { return KindTask }

// EntityID implements Record.
func (r *TaskRecord) EntityID() string { return r.ID }

// Validate implements Record.
func (r *TaskRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("task record: id is required")
	}
	if r.Priority != 0 && !PriorityValid(r.Priority) {
		return fmt.Errorf("task record %s: priority must be 1-4 (got %d)", r.ID, r.Priority)
	}
	return nil
}

// NewProjectRecord builds the frontmatter record for a project.
func NewProjectRecord(p *Project) *ProjectRecord {
	return &ProjectRecord{
		Schema:   SchemaVersion,
		Kind:     KindProject,
		ID:       p.ID,
		Name:     p.Name,
		Archived: p.Archived,
		Deleted:  p.Deleted,
	}
}

// NewSectionRecord builds the frontmatter record for a section.
func NewSectionRecord(s *Section) *SectionRecord {
	return &SectionRecord{
		Schema:   SchemaVersion,
		Kind:     KindSection,
		ID:       s.ID,
		Name:     s.Name,
		Project:  s.ProjectID,
		Archived: s.Archived,
		Deleted:  s.Deleted,
	}
}

// NewTaskRecord builds the frontmatter record for a task.
func NewTaskRecord(t *Task) *TaskRecord {
	r := &TaskRecord{
		Schema:      SchemaVersion,
		Kind:        KindTask,
		ID:          t.ID,
		Content:     t.Content,
		Description: t.Description,
		Project:     t.ProjectID,
		Section:     t.SectionID,
		Parent:      t.ParentID,
		Priority:    t.Priority,
		Labels:      t.Labels,
		Completed:   t.Completed,
		Deleted:     t.Deleted,
		URL:         t.URL,
	}
	if t.Due != nil {
		r.DueDate = t.Due.Date
		r.DueString = t.Due.String
		r.Recurring = t.Due.Recurring
	}
	if !t.CompletedAt.IsZero() {
		at := t.CompletedAt
		r.CompletedAt = &at
	}
	if !t.CreatedAt.IsZero() {
		at := t.CreatedAt
		r.CreatedAt = &at
	}
	return r
}

// Task converts the record back into a Task value.
func (r *TaskRecord) Task() *Task {
	t := &Task{
		ID:          r.ID,
		Content:     r.Content,
		Description: r.Description,
		ProjectID:   r.Project,
		SectionID:   r.Section,
		ParentID:    r.Parent,
		Priority:    r.Priority,
		Labels:      r.Labels,
		Completed:   r.Completed,
		Deleted:     r.Deleted,
		URL:         r.URL,
	}
	if r.DueDate != "" || r.DueString != "" {
		t.Due = &Due{Date: r.DueDate, String: r.DueString, Recurring: r.Recurring}
	}
	if r.CompletedAt != nil {
		t.CompletedAt = *r.CompletedAt
	}
	if r.CreatedAt != nil {
		t.CreatedAt = *r.CreatedAt
	}
	return t
}
