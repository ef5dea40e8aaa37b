package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/internal/events"
	"github.com/spec-kit/issue-tracker/internal/repository"
	apperrors "github.com/spec-kit/issue-tracker/pkg/util"
)

const minTitleLength = 3

// IssueService coordinates issue workflows. Every operation is scoped to
// the owner; records of other owners read as not found.
type IssueService struct {
	issues     repository.IssueRepository
	dispatcher events.Dispatcher
}

// IssueDependencies bundles requirements for the issue service.
type IssueDependencies struct {
	IssueRepo  repository.IssueRepository
	Dispatcher events.Dispatcher
}

// NewIssueService constructs the service.
func NewIssueService(deps IssueDependencies) *IssueService {
	return &IssueService{
		issues:     deps.IssueRepo,
		dispatcher: deps.Dispatcher,
	}
}

// IssueCreateInput describes issue creation payload. Zero enum values take
// defaults.
type IssueCreateInput struct {
	Title       string
	Description string
	Status      domain.IssueStatus
	Priority    domain.IssuePriority
	Severity    domain.IssueSeverity
}

// IssueUpdateInput describes partial updates. Nil fields stay untouched.
// Status set here is deliberately not run through the transition guard;
// only the dedicated Transition operation enforces it.
type IssueUpdateInput struct {
	Title       *string
	Description *string
	Status      *domain.IssueStatus
	Priority    *domain.IssuePriority
	Severity    *domain.IssueSeverity
}

// IssueListInput describes listing parameters.
type IssueListInput struct {
	Page       int
	Limit      int
	SearchTerm *string
	Status     *domain.IssueStatus
	Priority   *domain.IssuePriority
	Severity   *domain.IssueSeverity
	SortBy     string
	SortOrder  string
}

// IssueListResult carries one page plus pagination totals.
type IssueListResult struct {
	Issues      []domain.Issue
	Total       int
	Pages       int
	CurrentPage int
}

// CreateIssue creates an issue for the owner.
func (s *IssueService) CreateIssue(ctx context.Context, ownerID string, input IssueCreateInput) (*domain.Issue, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)

	details := map[string]any{}
	if utf8.RuneCountInString(title) < minTitleLength {
		details["title"] = "Title must be at least 3 characters"
	}
	if description == "" {
		details["description"] = "Description is required"
	}
	if input.Status != "" && !domain.ValidStatus(input.Status) {
		details["status"] = "Invalid status"
	}
	if input.Priority != "" && !domain.ValidPriority(input.Priority) {
		details["priority"] = "Invalid priority"
	}
	if input.Severity != "" && !domain.ValidSeverity(input.Severity) {
		details["severity"] = "Invalid severity"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("Validation failed", details)
	}

	issue := &domain.Issue{
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		Status:      input.Status,
		Priority:    input.Priority,
		Severity:    input.Severity,
	}
	if issue.Status == "" {
		issue.Status = domain.IssueStatusOpen
	}
	if issue.Priority == "" {
		issue.Priority = domain.IssuePriorityMedium
	}
	if issue.Severity == "" {
		issue.Severity = domain.IssueSeverityMinor
	}

	if err := s.issues.Create(ctx, issue); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:    events.EventIssueCreated,
		IssueID: issue.ID,
		OwnerID: ownerID,
		Payload: events.IssueCreatedPayload{
			Title:    issue.Title,
			Status:   issue.Status,
			Priority: issue.Priority,
			Severity: issue.Severity,
		},
	})
	return issue, nil
}

// ListIssues returns one page of the owner's issues with totals.
func (s *IssueService) ListIssues(ctx context.Context, ownerID string, input IssueListInput) (*IssueListResult, error) {
	page := input.Page
	if page < 1 {
		page = 1
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	filter := repository.IssueFilter{
		OwnerID:    ownerID,
		SearchTerm: input.SearchTerm,
		Status:     input.Status,
		Priority:   input.Priority,
		Severity:   input.Severity,
		SortField:  input.SortBy,
		SortDesc:   input.SortOrder != "asc",
		Limit:      limit,
		Offset:     (page - 1) * limit,
	}
	if filter.SortField == "" {
		filter.SortField = "updatedAt"
	}

	issues, total, err := s.issues.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if issues == nil {
		issues = []domain.Issue{}
	}
	return &IssueListResult{
		Issues:      issues,
		Total:       total,
		Pages:       (total + limit - 1) / limit,
		CurrentPage: page,
	}, nil
}

// GetIssue fetches an owned issue.
func (s *IssueService) GetIssue(ctx context.Context, ownerID, issueID string) (*domain.Issue, error) {
	issue, err := s.issues.GetByID(ctx, issueID, ownerID)
	if err != nil {
		return nil, mapIssueError(err)
	}
	return issue, nil
}

// UpdateIssue applies a partial update. Status changes made here bypass
// the transition guard; the dedicated Transition operation is the guarded
// path.
func (s *IssueService) UpdateIssue(ctx context.Context, ownerID, issueID string, input IssueUpdateInput) (*domain.Issue, error) {
	issue, err := s.issues.GetByID(ctx, issueID, ownerID)
	if err != nil {
		return nil, mapIssueError(err)
	}

	details := map[string]any{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if utf8.RuneCountInString(title) < minTitleLength {
			details["title"] = "Title must be at least 3 characters"
		} else {
			issue.Title = title
		}
	}
	if input.Description != nil {
		description := strings.TrimSpace(*input.Description)
		if description == "" {
			details["description"] = "Description is required"
		} else {
			issue.Description = description
		}
	}
	if input.Status != nil {
		if !domain.ValidStatus(*input.Status) {
			details["status"] = "Invalid status"
		} else {
			issue.Status = *input.Status
		}
	}
	if input.Priority != nil {
		if !domain.ValidPriority(*input.Priority) {
			details["priority"] = "Invalid priority"
		} else {
			issue.Priority = *input.Priority
		}
	}
	if input.Severity != nil {
		if !domain.ValidSeverity(*input.Severity) {
			details["severity"] = "Invalid severity"
		} else {
			issue.Severity = *input.Severity
		}
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("Validation failed", details)
	}

	if err := s.issues.Update(ctx, issue); err != nil {
		return nil, mapIssueError(err)
	}
	return issue, nil
}

// DeleteIssue removes an owned issue. Hard delete, no tombstone.
func (s *IssueService) DeleteIssue(ctx context.Context, ownerID, issueID string) error {
	issue, err := s.issues.GetByID(ctx, issueID, ownerID)
	if err != nil {
		return mapIssueError(err)
	}
	if err := s.issues.Delete(ctx, issueID, ownerID); err != nil {
		return mapIssueError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:    events.EventIssueDeleted,
		IssueID: issueID,
		OwnerID: ownerID,
		Payload: events.IssueDeletedPayload{Title: issue.Title, Status: issue.Status},
	})
	return nil
}

// Transition applies the dedicated status-change operation. Closing is
// only legal from Resolved or Closed; everything else moves freely.
func (s *IssueService) Transition(ctx context.Context, ownerID, issueID string, newStatus domain.IssueStatus) (*domain.Issue, error) {
	if !domain.ValidStatus(newStatus) {
		return nil, apperrors.NewValidationError("Validation failed", map[string]any{"status": "Invalid status"})
	}

	issue, err := s.issues.GetByID(ctx, issueID, ownerID)
	if err != nil {
		return nil, mapIssueError(err)
	}

	if newStatus == domain.IssueStatusClosed &&
		issue.Status != domain.IssueStatusResolved && issue.Status != domain.IssueStatusClosed {
		return nil, apperrors.NewInvalidTransition("Issue must be resolved before closing")
	}

	oldStatus := issue.Status
	issue.Status = newStatus
	if err := s.issues.Update(ctx, issue); err != nil {
		return nil, mapIssueError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:    events.EventIssueStatusChanged,
		IssueID: issue.ID,
		OwnerID: ownerID,
		Payload: events.IssueStatusChangedPayload{OldStatus: oldStatus, NewStatus: newStatus},
	})
	return issue, nil
}

// Stats counts the owner's issues per status. Every status is present in
// the result, zero when absent.
func (s *IssueService) Stats(ctx context.Context, ownerID string) (map[domain.IssueStatus]int, error) {
	counts, err := s.issues.CountByStatus(ctx, ownerID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	result := make(map[domain.IssueStatus]int, 4)
	for _, status := range domain.AllStatuses() {
		result[status] = counts[status]
	}
	return result, nil
}

func (s *IssueService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func mapIssueError(err error) error {
	if err == pgx.ErrNoRows {
		return apperrors.NewNotFound("Issue")
	}
	return apperrors.NewInternalError(err)
}
