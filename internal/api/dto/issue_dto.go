package dto

import (
	"time"

	"github.com/spec-kit/issue-tracker/internal/domain"
)

// CreateIssueRequest payload.
type CreateIssueRequest struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Status      domain.IssueStatus   `json:"status"`
	Priority    domain.IssuePriority `json:"priority"`
	Severity    domain.IssueSeverity `json:"severity"`
}

// UpdateIssueRequest payload for partial updates; absent fields stay
// untouched.
type UpdateIssueRequest struct {
	Title       *string               `json:"title"`
	Description *string               `json:"description"`
	Status      *domain.IssueStatus   `json:"status"`
	Priority    *domain.IssuePriority `json:"priority"`
	Severity    *domain.IssueSeverity `json:"severity"`
}

// UpdateStatusRequest payload for the dedicated transition endpoint.
type UpdateStatusRequest struct {
	Status domain.IssueStatus `json:"status"`
}

// IssueResponse is the wire shape of a single issue.
type IssueResponse struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Status      domain.IssueStatus   `json:"status"`
	Priority    domain.IssuePriority `json:"priority"`
	Severity    domain.IssueSeverity `json:"severity"`
	CreatedBy   string               `json:"createdBy"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

// IssueListResponse is one page of issues plus pagination totals.
type IssueListResponse struct {
	Issues      []IssueResponse `json:"issues"`
	Total       int             `json:"total"`
	Pages       int             `json:"pages"`
	CurrentPage int             `json:"currentPage"`
}

// FromIssue converts a domain issue to its wire shape.
func FromIssue(issue *domain.Issue) IssueResponse {
	return IssueResponse{
		ID:          issue.ID,
		Title:       issue.Title,
		Description: issue.Description,
		Status:      issue.Status,
		Priority:    issue.Priority,
		Severity:    issue.Severity,
		CreatedBy:   issue.OwnerID,
		CreatedAt:   issue.CreatedAt,
		UpdatedAt:   issue.UpdatedAt,
	}
}
