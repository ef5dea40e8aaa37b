package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-tracker/internal/api/dto"
	"github.com/spec-kit/issue-tracker/internal/auth"
	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/internal/service"
	apperrors "github.com/spec-kit/issue-tracker/pkg/util"
)

// IssuesHandler manages issue endpoints. All routes sit behind the bearer
// middleware.
type IssuesHandler struct {
	service *service.IssueService
}

// NewIssuesHandler constructs handler.
func NewIssuesHandler(issueService *service.IssueService) *IssuesHandler {
	return &IssuesHandler{service: issueService}
}

// Create POST /api/issues.
func (h *IssuesHandler) Create(c *fiber.Ctx) error {
	ownerID, ok := auth.UserIDFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("Unauthorized")
	}
	var req dto.CreateIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	issue, err := h.service.CreateIssue(c.UserContext(), ownerID, service.IssueCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		Severity:    req.Severity,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.FromIssue(issue))
}

// List GET /api/issues.
func (h *IssuesHandler) List(c *fiber.Ctx) error {
	ownerID, ok := auth.UserIDFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("Unauthorized")
	}

	result, err := h.service.ListIssues(c.UserContext(), ownerID, parseListQuery(c))
	if err != nil {
		return err
	}

	issues := make([]dto.IssueResponse, 0, len(result.Issues))
	for i := range result.Issues {
		issues = append(issues, dto.FromIssue(&result.Issues[i]))
	}
	return c.JSON(dto.IssueListResponse{
		Issues:      issues,
		Total:       result.Total,
		Pages:       result.Pages,
		CurrentPage: result.CurrentPage,
	})
}

// Stats GET /api/issues/stats.
func (h *IssuesHandler) Stats(c *fiber.Ctx) error {
	ownerID, ok := auth.UserIDFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("Unauthorized")
	}
	stats, err := h.service.Stats(c.UserContext(), ownerID)
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

// Get GET /api/issues/:id.
func (h *IssuesHandler) Get(c *fiber.Ctx) error {
	ownerID, ok := auth.UserIDFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("Unauthorized")
	}
	issue, err := h.service.GetIssue(c.UserContext(), ownerID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.FromIssue(issue))
}

// Update PUT /api/issues/:id.
func (h *IssuesHandler) Update(c *fiber.Ctx) error {
	ownerID, ok := auth.UserIDFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("Unauthorized")
	}
	var req dto.UpdateIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	issue, err := h.service.UpdateIssue(c.UserContext(), ownerID, c.Params("id"), service.IssueUpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		Severity:    req.Severity,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.FromIssue(issue))
}

// Delete DELETE /api/issues/:id.
func (h *IssuesHandler) Delete(c *fiber.Ctx) error {
	ownerID, ok := auth.UserIDFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("Unauthorized")
	}
	if err := h.service.DeleteIssue(c.UserContext(), ownerID, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Issue deleted"})
}

// UpdateStatus PATCH /api/issues/:id/status.
func (h *IssuesHandler) UpdateStatus(c *fiber.Ctx) error {
	ownerID, ok := auth.UserIDFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("Unauthorized")
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	issue, err := h.service.Transition(c.UserContext(), ownerID, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(dto.FromIssue(issue))
}

func parseListQuery(c *fiber.Ctx) service.IssueListInput {
	input := service.IssueListInput{
		Page:      parseInt(c.Query("page"), 1),
		Limit:     parseInt(c.Query("limit"), 10),
		SortBy:    c.Query("sortBy", "updatedAt"),
		SortOrder: c.Query("sortOrder", "desc"),
	}
	if q := c.Query("q"); q != "" {
		input.SearchTerm = &q
	}
	if v := c.Query("status"); v != "" {
		status := domain.IssueStatus(v)
		input.Status = &status
	}
	if v := c.Query("priority"); v != "" {
		priority := domain.IssuePriority(v)
		input.Priority = &priority
	}
	if v := c.Query("severity"); v != "" {
		severity := domain.IssueSeverity(v)
		input.Severity = &severity
	}
	return input
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
