package events

import (
	"time"

	"github.com/spec-kit/issue-tracker/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventIssueCreated       EventType = "issue_created"
	EventIssueStatusChanged EventType = "issue_status_changed"
	EventIssueDeleted       EventType = "issue_deleted"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	IssueID   string      `json:"issue_id"`
	OwnerID   string      `json:"owner_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// IssueCreatedPayload payload.
type IssueCreatedPayload struct {
	Title    string               `json:"title"`
	Status   domain.IssueStatus   `json:"status"`
	Priority domain.IssuePriority `json:"priority"`
	Severity domain.IssueSeverity `json:"severity"`
}

// IssueStatusChangedPayload payload.
type IssueStatusChangedPayload struct {
	OldStatus domain.IssueStatus `json:"old_status"`
	NewStatus domain.IssueStatus `json:"new_status"`
}

// IssueDeletedPayload payload.
type IssueDeletedPayload struct {
	Title  string             `json:"title"`
	Status domain.IssueStatus `json:"status"`
}
