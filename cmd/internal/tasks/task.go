package tasks

import (
	"strings"
	"time"
)

// Priority ranks a task. The zero value normalizes to PriorityLow.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Valid reports whether p is one of the enumerated priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Status is a task's workflow state. The zero value normalizes to StatusToDo.
type Status string

const (
	StatusToDo       Status = "To Do"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusToDo, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Task is one entry of a principal's task list.
type Task struct {
	ID          string     `json:"id"`
	PrincipalID string     `json:"principalId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Draft holds the caller-supplied fields of a new task.
type Draft struct {
	Title       string
	Description string
	Priority    Priority
	Status      Status
	DueDate     *time.Time
}

// Patch changes the non-nil fields of a task. ClearDueDate removes the due
// date and wins over DueDate.
type Patch struct {
	Title        *string
	Description  *string
	Priority     *Priority
	Status       *Status
	DueDate      *time.Time
	ClearDueDate bool
}

// normalize trims text fields and fills defaults.
func (d Draft) normalize() Draft {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	if d.Priority == "" {
		d.Priority = PriorityLow
	}
	if d.Status == "" {
		d.Status = StatusToDo
	}
	if d.DueDate != nil {
		due := d.DueDate.UTC()
		d.DueDate = &due
	}
	return d
}

func (d Draft) validate() error {
	if d.Title == "" {
		return ValidationError{Field: "title", Msg: "title is required"}
	}
	if !d.Priority.Valid() {
		return ValidationError{Field: "priority", Msg: "priority must be one of High, Medium, Low"}
	}
	if !d.Status.Valid() {
		return ValidationError{Field: "status", Msg: "status must be one of To Do, In Progress, Completed"}
	}
	return nil
}

// validate rejects explicit empty enums. Defaults apply on create only; an
// update must not silently reset a field.
func (p Patch) validate() error {
	if p.Priority != nil && strings.TrimSpace(string(*p.Priority)) == "" {
		return ValidationError{Field: "priority", Msg: "priority must be one of High, Medium, Low"}
	}
	if p.Status != nil && strings.TrimSpace(string(*p.Status)) == "" {
		return ValidationError{Field: "status", Msg: "status must be one of To Do, In Progress, Completed"}
	}
	return nil
}

// apply returns t with p's changes, not yet validated.
func (p Patch) apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	switch {
	case p.ClearDueDate:
		t.DueDate = nil
	case p.DueDate != nil:
		due := *p.DueDate
		t.DueDate = &due
	}
	return t
}

func (t Task) draft() Draft {
	return Draft{
		Title:       t.Title,
		Description: t.Description,
		Priority:    t.Priority,
		Status:      t.Status,
		DueDate:     t.DueDate,
	}
}

func (t Task) clone() Task {
	if t.DueDate != nil {
		due := *t.DueDate
		t.DueDate = &due
	}
	return t
}
