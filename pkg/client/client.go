// Package client is a Go consumer of the issue-tracker API. It caches the
// session in memory, attaches the access token as a bearer credential and
// transparently refreshes it once when a request comes back unauthorized.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/issue-tracker/internal/api/dto"
	"github.com/spec-kit/issue-tracker/internal/domain"
)

// APIError carries the server-provided failure message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error %d", e.Status)
}

// Client holds the session cache. The cookie jar keeps the http-only
// refresh cookie; the access token and user live in memory only.
type Client struct {
	baseURL string
	httpc   *http.Client

	mu          sync.RWMutex
	accessToken string
	user        *domain.PublicUser

	refreshGroup singleflight.Group
}

// New builds a client for the given base URL (scheme://host[:port]).
func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Jar: jar},
	}, nil
}

// User returns the cached session user, nil when anonymous.
func (c *Client) User() *domain.PublicUser {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// Register creates an account and caches the resulting session.
func (c *Client) Register(ctx context.Context, email, password string) (*domain.PublicUser, error) {
	return c.authenticate(ctx, "/api/auth/register", email, password)
}

// Login authenticates and caches the resulting session.
func (c *Client) Login(ctx context.Context, email, password string) (*domain.PublicUser, error) {
	return c.authenticate(ctx, "/api/auth/login", email, password)
}

// Logout clears the server cookie and the cached session.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	c.clearSession()
	return err
}

// Me fetches the caller's profile.
func (c *Client) Me(ctx context.Context) (*domain.PublicUser, error) {
	var user domain.PublicUser
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateIssue creates an issue.
func (c *Client) CreateIssue(ctx context.Context, req dto.CreateIssueRequest) (*dto.IssueResponse, error) {
	var issue dto.IssueResponse
	if err := c.do(ctx, http.MethodPost, "/api/issues", req, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// ListOptions mirror the list endpoint's query parameters. Zero values are
// omitted.
type ListOptions struct {
	Page      int
	Limit     int
	Query     string
	Status    domain.IssueStatus
	Priority  domain.IssuePriority
	Severity  domain.IssueSeverity
	SortBy    string
	SortOrder string
}

// ListIssues fetches one page of issues.
func (c *Client) ListIssues(ctx context.Context, opts ListOptions) (*dto.IssueListResponse, error) {
	values := url.Values{}
	if opts.Page > 0 {
		values.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		values.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Query != "" {
		values.Set("q", opts.Query)
	}
	if opts.Status != "" {
		values.Set("status", string(opts.Status))
	}
	if opts.Priority != "" {
		values.Set("priority", string(opts.Priority))
	}
	if opts.Severity != "" {
		values.Set("severity", string(opts.Severity))
	}
	if opts.SortBy != "" {
		values.Set("sortBy", opts.SortBy)
	}
	if opts.SortOrder != "" {
		values.Set("sortOrder", opts.SortOrder)
	}

	path := "/api/issues"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var result dto.IssueListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetIssue fetches a single issue.
func (c *Client) GetIssue(ctx context.Context, id string) (*dto.IssueResponse, error) {
	var issue dto.IssueResponse
	if err := c.do(ctx, http.MethodGet, "/api/issues/"+id, nil, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// UpdateIssue applies a partial update.
func (c *Client) UpdateIssue(ctx context.Context, id string, req dto.UpdateIssueRequest) (*dto.IssueResponse, error) {
	var issue dto.IssueResponse
	if err := c.do(ctx, http.MethodPut, "/api/issues/"+id, req, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// DeleteIssue removes an issue.
func (c *Client) DeleteIssue(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/issues/"+id, nil, nil)
}

// UpdateIssueStatus performs the dedicated status transition.
func (c *Client) UpdateIssueStatus(ctx context.Context, id string, status domain.IssueStatus) (*dto.IssueResponse, error) {
	var issue dto.IssueResponse
	if err := c.do(ctx, http.MethodPatch, "/api/issues/"+id+"/status", dto.UpdateStatusRequest{Status: status}, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// Stats fetches per-status counts.
func (c *Client) Stats(ctx context.Context) (map[domain.IssueStatus]int, error) {
	var stats map[domain.IssueStatus]int
	if err := c.do(ctx, http.MethodGet, "/api/issues/stats", nil, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (*domain.PublicUser, error) {
	var resp dto.AuthResponse
	if err := c.do(ctx, http.MethodPost, path, dto.LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	c.setSession(resp.AccessToken, resp.User)
	return resp.User, nil
}

// do runs one request. On a 401 from any non-refresh endpoint it performs
// a single shared refresh and retries the original request exactly once;
// a second 401 is surfaced to the caller.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	resp, err := c.send(ctx, method, path, payload)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && path != "/api/auth/refresh" {
		original := decodeError(resp)
		if c.refresh(ctx) {
			retry, err := c.send(ctx, method, path, payload)
			if err != nil {
				return err
			}
			return decodeResponse(retry, out)
		}
		c.clearSession()
		return original
	}

	return decodeResponse(resp, out)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	token := c.accessToken
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.httpc.Do(req)
}

// refresh mints a new access token via the refresh cookie. Concurrent
// callers share one in-flight refresh.
func (c *Client) refresh(ctx context.Context) bool {
	ok, _, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		resp, err := c.send(ctx, http.MethodPost, "/api/auth/refresh", nil)
		if err != nil {
			return false, nil
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body) //nolint:errcheck
			return false, nil
		}
		var auth dto.AuthResponse
		if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil || auth.AccessToken == "" {
			return false, nil
		}
		c.setSession(auth.AccessToken, auth.User)
		return true, nil
	})
	success, _ := ok.(bool)
	return success
}

func (c *Client) setSession(token string, user *domain.PublicUser) {
	c.mu.Lock()
	c.accessToken = token
	c.user = user
	c.mu.Unlock()
}

func (c *Client) clearSession() {
	c.mu.Lock()
	c.accessToken = ""
	c.user = nil
	c.mu.Unlock()
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	defer resp.Body.Close()
	var body struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return &APIError{Status: resp.StatusCode, Message: body.Message}
}
