package app

import (
	"strings"
	"time"
)

// Task is a staff-managed work item.
type Task struct {
	ID        int64     `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Done      bool      `json:"done" db:"done"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Summary is the one-line form shown in staff lists.
func (t Task) Summary() string {
	mark := "[ ]"
	if t.Done {
		mark = "[x]"
	}
	return mark + " " + strings.TrimSpace(t.Title)
}

// AuditEntry records one privileged action. Only superusers see these.
type AuditEntry struct {
	ID        int64     `json:"id" db:"id"`
	Actor     string    `json:"actor" db:"actor"`
	Action    string    `json:"action" db:"action"`
	Detail    string    `json:"detail" db:"detail"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
