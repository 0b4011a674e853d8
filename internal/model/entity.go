// Package model provides the entity types mirrored between the remote task
// service and the local vault.
package model

import "time"

// Kind identifies which of the three entity levels a value belongs to.
type Kind string

const (
	// KindProject is the top level of the hierarchy.
	KindProject Kind = "project"
	// KindSection nests under a project.
	KindSection Kind = "section"
	// KindTask nests under a section, a project, or another task.
	KindTask Kind = "task"
)

// Valid reports whether k is one of the three known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindProject, KindSection, KindTask:
		return true
	default:
		return false
	}
}

// Bucket is the lifecycle location class a mirrored document occupies.
type Bucket int

const (
	// BucketActive means the document lives at its canonical hierarchical path.
	BucketActive Bucket = iota
	// BucketDone holds completed tasks.
	BucketDone
	// BucketArchived holds archived projects and sections.
	BucketArchived
	// BucketTrashed holds deleted entities.
	BucketTrashed
)

// String returns a human-readable representation of the bucket.
func (b Bucket) String() string {
	switch b {
	case BucketActive:
		return "active"
	case BucketDone:
		return "done"
	case BucketArchived:
		return "archived"
	case BucketTrashed:
		return "trashed"
	default:
		return "unknown"
	}
}

// Project is a top-level container of sections and tasks.
type Project struct {
	ID       string
	Name     string
	Archived bool
	Deleted  bool
}

// Bucket derives the lifecycle bucket from the project's flags.
func (p *Project) Bucket() Bucket {
	switch {
	case p.Deleted:
		return BucketTrashed
	case p.Archived:
		return BucketArchived
	default:
		return BucketActive
	}
}

// Section groups tasks inside a project.
type Section struct {
	ID        string
	Name      string
	ProjectID string
	Archived  bool
	Deleted   bool
}

// Bucket derives the lifecycle bucket from the section's flags.
func (s *Section) Bucket() Bucket {
	switch {
	case s.Deleted:
		return BucketTrashed
	case s.Archived:
		return BucketArchived
	default:
		return BucketActive
	}
}

// Due is a task's due schedule. Date is the resolved date in YYYY-MM-DD
// form, String the human text it was entered as ("every friday").
type Due struct {
	Date      string
	String    string
	Recurring bool
}

// Task is a single actionable item.
type Task struct {
	ID          string
	Content     string
	Description string
	ProjectID   string
	SectionID   string
	ParentID    string
	Priority    int
	Due         *Due
	Labels      []string
	Completed   bool
	CompletedAt time.Time
	Deleted     bool
	CreatedAt   time.Time
	URL         string
}

// Bucket derives the lifecycle bucket from the task's flags. Deletion
// outranks completion.
func (t *Task) Bucket() Bucket {
	switch {
	case t.Deleted:
		return BucketTrashed
	case t.Completed:
		return BucketDone
	default:
		return BucketActive
	}
}

// DueString returns the human due text, or "" when the task has no due.
func (t *Task) DueString() string {
	if t.Due == nil {
		return ""
	}
	return t.Due.String
}

// PriorityValid reports whether p is inside the service's 1-4 range.
func PriorityValid(p int) bool {
	return p >= 1 && p <= 4
}
