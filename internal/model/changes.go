package model

// Changes is a sparse field patch for a task. A nil field means "not
// touched"; a non-nil field carries the new value, including empty strings.
// One local edit produces at most one Changes value covering every field
// that differs from the snapshot.
type Changes struct {
	Content     *string
	Description *string
	Priority    *int
	DueString   *string
	DueDate     *string
	Labels      *[]string
}

// Empty reports whether the patch touches no field.
func (c *Changes) Empty() bool {
	return c.Content == nil && c.Description == nil && c.Priority == nil &&
		c.DueString == nil && c.DueDate == nil && c.Labels == nil
}

// Merge folds a newer patch into c. Fields the newer patch sets win;
// fields it leaves nil keep c's earlier value.
func (c *Changes) Merge(newer *Changes) {
	if newer.Content != nil {
		c.Content = newer.Content
	}
	if newer.Description != nil {
		c.Description = newer.Description
	}
	if newer.Priority != nil {
		c.Priority = newer.Priority
	}
	if newer.DueString != nil {
		c.DueString = newer.DueString
	}
	if newer.DueDate != nil {
		c.DueDate = newer.DueDate
	}
	if newer.Labels != nil {
		c.Labels = newer.Labels
	}
}

// Apply patches the touched fields into t, leaving the rest alone.
func (c *Changes) Apply(t *Task) {
	if c.Content != nil {
		t.Content = *c.Content
	}
	if c.Description != nil {
		t.Description = *c.Description
	}
	if c.Priority != nil {
		t.Priority = *c.Priority
	}
	if c.DueString != nil || c.DueDate != nil {
		due := Due{}
		if t.Due != nil {
			due = *t.Due
		}
		if c.DueString != nil {
			due.String = *c.DueString
		}
		if c.DueDate != nil {
			due.Date = *c.DueDate
		}
		if due == (Due{}) {
			t.Due = nil
		} else {
			t.Due = &due
		}
	}
	if c.Labels != nil {
		t.Labels = *c.Labels
	}
}

// Args renders the patch as command arguments for the remote service.
func (c *Changes) Args() map[string]any {
	args := make(map[string]any)
	if c.Content != nil {
		args["content"] = *c.Content
	}
	if c.Description != nil {
		args["description"] = *c.Description
	}
	if c.Priority != nil {
		args["priority"] = *c.Priority
	}
	if c.DueString != nil {
		args["due_string"] = *c.DueString
	}
	if c.Labels != nil {
		args["labels"] = *c.Labels
	}
	return args
}

// Ptr returns a pointer to v. Helper for building sparse patches.
func Ptr[T any](v T) *T { return &v }
