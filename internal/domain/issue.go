package domain

import "time"

// IssueStatus enumerates lifecycle states for issues.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "Open"
	IssueStatusInProgress IssueStatus = "In Progress"
	IssueStatusResolved   IssueStatus = "Resolved"
	IssueStatusClosed     IssueStatus = "Closed"
)

// IssuePriority enumerates urgency levels.
type IssuePriority string

const (
	IssuePriorityLow    IssuePriority = "Low"
	IssuePriorityMedium IssuePriority = "Medium"
	IssuePriorityHigh   IssuePriority = "High"
)

// IssueSeverity enumerates impact levels.
type IssueSeverity string

const (
	IssueSeverityMinor    IssueSeverity = "Minor"
	IssueSeverityMajor    IssueSeverity = "Major"
	IssueSeverityCritical IssueSeverity = "Critical"
)

// Issue is the aggregate for tracked issues. An issue is visible and
// mutable only by its owner.
type Issue struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	Status      IssueStatus
	Priority    IssuePriority
	Severity    IssueSeverity
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ValidStatus reports whether the value is a known status.
func ValidStatus(s IssueStatus) bool {
	switch s {
	case IssueStatusOpen, IssueStatusInProgress, IssueStatusResolved, IssueStatusClosed:
		return true
	}
	return false
}

// ValidPriority reports whether the value is a known priority.
func ValidPriority(p IssuePriority) bool {
	switch p {
	case IssuePriorityLow, IssuePriorityMedium, IssuePriorityHigh:
		return true
	}
	return false
}

// ValidSeverity reports whether the value is a known severity.
func ValidSeverity(s IssueSeverity) bool {
	switch s {
	case IssueSeverityMinor, IssueSeverityMajor, IssueSeverityCritical:
		return true
	}
	return false
}

// AllStatuses lists every status in display order. Stats responses include
// each of them even when the count is zero.
func AllStatuses() []IssueStatus {
	return []IssueStatus{IssueStatusOpen, IssueStatusInProgress, IssueStatusResolved, IssueStatusClosed}
}
