package domain

import "time"

type TaskStatus string

const (
	TaskNew        TaskStatus = "NEW"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskCancelled  TaskStatus = "CANCELLED"
	TaskPostponed  TaskStatus = "POSTPONED"
)

type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
)

// ParsePriority maps stored values onto the closed priority set.
// Unknown or empty values fall back to MEDIUM.
func ParsePriority(s string) TaskPriority {
	switch TaskPriority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return TaskPriority(s)
	default:
		return PriorityMedium
	}
}

// UserRef is the part of a CRM user the notifications need.
type UserRef struct {
	ID   int64
	Name string
}

type ClientRef struct {
	ID   int64
	Name string
}

type DealRef struct {
	ID    int64
	Title string
}

type Task struct {
	ID          int64
	Title       string
	Description string
	DueDate     time.Time
	Status      TaskStatus
	Priority    TaskPriority

	Assignee *UserRef
	Client   *ClientRef
	Deal     *DealRef
}

// AssigneeName returns the display name of the assignee, or "" when unassigned.
func (t Task) AssigneeName() string {
	if t.Assignee == nil {
		return ""
	}
	return t.Assignee.Name
}
