package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/issue-tracker/internal/api/http"
	"github.com/spec-kit/issue-tracker/internal/api/http/handlers"
	"github.com/spec-kit/issue-tracker/internal/auth"
	"github.com/spec-kit/issue-tracker/internal/config"
	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/internal/events"
	"github.com/spec-kit/issue-tracker/internal/observability"
	"github.com/spec-kit/issue-tracker/internal/repository"
	"github.com/spec-kit/issue-tracker/internal/service"
	apperrors "github.com/spec-kit/issue-tracker/pkg/util"
)

type memUsers struct {
	seq     int
	byEmail map[string]*domain.User
}

func (m *memUsers) Create(_ context.Context, user *domain.User) error {
	m.seq++
	user.ID = fmt.Sprintf("user-%d", m.seq)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	cpy := *user
	m.byEmail[user.Email] = &cpy
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	for _, user := range m.byEmail {
		if user.ID == id {
			cpy := *user
			return &cpy, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	user, ok := m.byEmail[email]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cpy := *user
	return &cpy, nil
}

type memIssues struct {
	seq  int
	byID map[string]*domain.Issue
}

func (m *memIssues) Create(_ context.Context, issue *domain.Issue) error {
	m.seq++
	issue.ID = fmt.Sprintf("issue-%d", m.seq)
	issue.CreatedAt = time.Now()
	issue.UpdatedAt = issue.CreatedAt
	cpy := *issue
	m.byID[issue.ID] = &cpy
	return nil
}

func (m *memIssues) Update(_ context.Context, issue *domain.Issue) error {
	stored, ok := m.byID[issue.ID]
	if !ok || stored.OwnerID != issue.OwnerID {
		return pgx.ErrNoRows
	}
	issue.UpdatedAt = time.Now()
	cpy := *issue
	m.byID[issue.ID] = &cpy
	return nil
}

func (m *memIssues) GetByID(_ context.Context, id, ownerID string) (*domain.Issue, error) {
	stored, ok := m.byID[id]
	if !ok || stored.OwnerID != ownerID {
		return nil, pgx.ErrNoRows
	}
	cpy := *stored
	return &cpy, nil
}

func (m *memIssues) Delete(_ context.Context, id, ownerID string) error {
	stored, ok := m.byID[id]
	if !ok || stored.OwnerID != ownerID {
		return pgx.ErrNoRows
	}
	delete(m.byID, id)
	return nil
}

func (m *memIssues) ListWithFilter(_ context.Context, filter repository.IssueFilter) ([]domain.Issue, int, error) {
	var matched []domain.Issue
	for _, issue := range m.byID {
		if issue.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != nil && issue.Status != *filter.Status {
			continue
		}
		if filter.SearchTerm != nil {
			term := strings.ToLower(*filter.SearchTerm)
			if !strings.Contains(strings.ToLower(issue.Title), term) &&
				!strings.Contains(strings.ToLower(issue.Description), term) {
				continue
			}
		}
		matched = append(matched, *issue)
	}
	total := len(matched)
	if filter.Offset >= total {
		return nil, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

func (m *memIssues) CountByStatus(_ context.Context, ownerID string) (map[domain.IssueStatus]int, error) {
	counts := map[domain.IssueStatus]int{}
	for _, issue := range m.byID {
		if issue.OwnerID == ownerID {
			counts[issue.Status]++
		}
	}
	return counts, nil
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	cfg := config.Config{
		Auth: config.AuthConfig{
			AccessSecret:          "access-secret",
			RefreshSecret:         "refresh-secret",
			AccessTokenTTLMinutes: 15,
			RefreshTokenTTLDays:   7,
			BcryptCost:            4,
		},
	}

	authService := service.NewAuthService(cfg, service.AuthDependencies{
		UserRepo: &memUsers{byEmail: map[string]*domain.User{}},
	})
	issueService := service.NewIssueService(service.IssueDependencies{
		IssueRepo:  &memIssues{byID: map[string]*domain.Issue{}},
		Dispatcher: events.NewInMemoryDispatcher(),
	})

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, zap.NewNop(), observability.NewMetrics(), 0)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler("issue-tracker", "test", nil, nil),
		Auth:           handlers.NewAuthHandler(authService, false),
		Issues:         handlers.NewIssuesHandler(issueService),
		AuthMiddleware: auth.NewMiddleware(authService.TokenManager()),
	})
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (*nethttp.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var decoded map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp, decoded
}

func registerUser(t *testing.T, app *fiber.App, email string) (token string, cookie *nethttp.Cookie) {
	t.Helper()
	resp, body := doJSON(t, app, nethttp.MethodPost, "/api/auth/register", "", fiber.Map{
		"email":    email,
		"password": "password123",
	})
	require.Equal(t, nethttp.StatusCreated, resp.StatusCode)
	token, _ = body["accessToken"].(string)
	require.NotEmpty(t, token)
	for _, c := range resp.Cookies() {
		if c.Name == "refreshToken" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	return token, cookie
}

func TestRegister_SetsRefreshCookie(t *testing.T) {
	app := newTestApp(t)

	_, cookie := registerUser(t, app, "alice@example.com")
	require.Equal(t, "/api/auth/refresh", cookie.Path)
	require.True(t, cookie.HttpOnly)
	require.NotEmpty(t, cookie.Value)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	app := newTestApp(t)
	registerUser(t, app, "alice@example.com")

	resp, body := doJSON(t, app, nethttp.MethodPost, "/api/auth/register", "", fiber.Map{
		"email":    "alice@example.com",
		"password": "password123",
	})
	require.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "User already exists", body["message"])
	require.NotContains(t, body, "accessToken")
}

func TestLogin_WrongPassword(t *testing.T) {
	app := newTestApp(t)
	registerUser(t, app, "alice@example.com")

	resp, body := doJSON(t, app, nethttp.MethodPost, "/api/auth/login", "", fiber.Map{
		"email":    "alice@example.com",
		"password": "wrongpassword",
	})
	require.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "Invalid credentials", body["message"])
	require.NotContains(t, body, "accessToken")
}

func TestRefresh_WithCookie(t *testing.T) {
	app := newTestApp(t)
	_, cookie := registerUser(t, app, "alice@example.com")

	req := httptest.NewRequest(nethttp.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(cookie)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	token, _ := body["accessToken"].(string)
	require.NotEmpty(t, token)

	// the fresh access token works against a protected endpoint
	resp2, _ := doJSON(t, app, nethttp.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, nethttp.StatusOK, resp2.StatusCode)
}

func TestRefresh_WithoutCookie(t *testing.T) {
	app := newTestApp(t)

	resp, body := doJSON(t, app, nethttp.MethodPost, "/api/auth/refresh", "", nil)
	require.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "", body["accessToken"])
}

func TestIssues_RequireAuth(t *testing.T) {
	app := newTestApp(t)

	resp, _ := doJSON(t, app, nethttp.MethodGet, "/api/issues", "", nil)
	require.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, app, nethttp.MethodGet, "/api/issues", "bogus-token", nil)
	require.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
}

func TestIssueLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t)
	token, _ := registerUser(t, app, "alice@example.com")

	resp, created := doJSON(t, app, nethttp.MethodPost, "/api/issues", token, fiber.Map{
		"title":       "Crash on login",
		"description": "stacktrace attached",
	})
	require.Equal(t, nethttp.StatusCreated, resp.StatusCode)
	require.Equal(t, "Open", created["status"])
	issueID := created["id"].(string)

	// closing an open issue through the transition endpoint is rejected
	resp, body := doJSON(t, app, nethttp.MethodPatch, "/api/issues/"+issueID+"/status", token, fiber.Map{
		"status": "Closed",
	})
	require.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "Issue must be resolved before closing", body["message"])

	resp, fetched := doJSON(t, app, nethttp.MethodGet, "/api/issues/"+issueID, token, nil)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	require.Equal(t, "Open", fetched["status"])

	resp, _ = doJSON(t, app, nethttp.MethodPatch, "/api/issues/"+issueID+"/status", token, fiber.Map{
		"status": "Resolved",
	})
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)

	resp, closed := doJSON(t, app, nethttp.MethodPatch, "/api/issues/"+issueID+"/status", token, fiber.Map{
		"status": "Closed",
	})
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	require.Equal(t, "Closed", closed["status"])

	resp, stats := doJSON(t, app, nethttp.MethodGet, "/api/issues/stats", token, nil)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	require.Equal(t, float64(0), stats["Open"])
	require.Equal(t, float64(0), stats["In Progress"])
	require.Equal(t, float64(0), stats["Resolved"])
	require.Equal(t, float64(1), stats["Closed"])

	resp, _ = doJSON(t, app, nethttp.MethodDelete, "/api/issues/"+issueID, token, nil)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, app, nethttp.MethodGet, "/api/issues/"+issueID, token, nil)
	require.Equal(t, nethttp.StatusNotFound, resp.StatusCode)
}

func TestGeneralUpdateBypassesGuard(t *testing.T) {
	app := newTestApp(t)
	token, _ := registerUser(t, app, "alice@example.com")

	_, created := doJSON(t, app, nethttp.MethodPost, "/api/issues", token, fiber.Map{
		"title":       "Crash on login",
		"description": "stacktrace attached",
	})
	issueID := created["id"].(string)

	resp, updated := doJSON(t, app, nethttp.MethodPut, "/api/issues/"+issueID, token, fiber.Map{
		"status": "Closed",
	})
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	require.Equal(t, "Closed", updated["status"])
}

func TestCrossOwnerAccessIsNotFound(t *testing.T) {
	app := newTestApp(t)
	aliceToken, _ := registerUser(t, app, "alice@example.com")
	bobToken, _ := registerUser(t, app, "bob@example.com")

	_, created := doJSON(t, app, nethttp.MethodPost, "/api/issues", aliceToken, fiber.Map{
		"title":       "Private to alice",
		"description": "details",
	})
	issueID := created["id"].(string)

	resp, body := doJSON(t, app, nethttp.MethodGet, "/api/issues/"+issueID, bobToken, nil)
	require.Equal(t, nethttp.StatusNotFound, resp.StatusCode)
	require.Equal(t, "Issue not found", body["message"])
}

func TestListIssuesOverHTTP(t *testing.T) {
	app := newTestApp(t)
	token, _ := registerUser(t, app, "alice@example.com")

	for i := 0; i < 12; i++ {
		resp, _ := doJSON(t, app, nethttp.MethodPost, "/api/issues", token, fiber.Map{
			"title":       fmt.Sprintf("issue number %02d", i),
			"description": "filler",
		})
		require.Equal(t, nethttp.StatusCreated, resp.StatusCode)
	}

	resp, body := doJSON(t, app, nethttp.MethodGet, "/api/issues?page=2&limit=10", token, nil)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	require.Equal(t, float64(12), body["total"])
	require.Equal(t, float64(2), body["pages"])
	require.Equal(t, float64(2), body["currentPage"])
	require.Len(t, body["issues"].([]any), 2)
}

func TestErrorResponsesAreCountedWithTheirStatus(t *testing.T) {
	metrics := observability.NewMetrics()
	app := fiber.New()
	httptransport.RegisterMiddlewares(app, zap.NewNop(), metrics, 0)
	app.Get("/boom", func(c *fiber.Ctx) error {
		return apperrors.NewNotFound("Issue")
	})

	resp, err := app.Test(httptest.NewRequest(nethttp.MethodGet, "/boom", nil), -1)
	require.NoError(t, err)
	require.Equal(t, nethttp.StatusNotFound, resp.StatusCode)

	require.Equal(t, int64(1), metrics.RequestCount("/boom", nethttp.MethodGet, nethttp.StatusNotFound))
	require.Equal(t, int64(0), metrics.RequestCount("/boom", nethttp.MethodGet, nethttp.StatusOK))
	require.Equal(t, int64(1), metrics.ErrorCount("/boom", nethttp.MethodGet, "NOT_FOUND"))
}

func TestLogoutClearsCookie(t *testing.T) {
	app := newTestApp(t)

	resp, body := doJSON(t, app, nethttp.MethodPost, "/api/auth/logout", "", nil)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	require.Equal(t, "Logged out", body["message"])

	var cleared *nethttp.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "refreshToken" {
			cleared = c
		}
	}
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)
}
