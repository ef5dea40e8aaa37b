package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/internal/persistence"
)

// IssueFilter captures list parameters. OwnerID is always required; every
// query is scoped to it.
type IssueFilter struct {
	OwnerID    string
	SearchTerm *string
	Status     *domain.IssueStatus
	Priority   *domain.IssuePriority
	Severity   *domain.IssueSeverity
	SortField  string
	SortDesc   bool
	Limit      int
	Offset     int
}

// IssueRepository encapsulates issue persistence. Single-row operations
// take both id and owner id; a mismatch on either reads as pgx.ErrNoRows.
type IssueRepository interface {
	Create(ctx context.Context, issue *domain.Issue) error
	Update(ctx context.Context, issue *domain.Issue) error
	GetByID(ctx context.Context, id, ownerID string) (*domain.Issue, error)
	Delete(ctx context.Context, id, ownerID string) error
	ListWithFilter(ctx context.Context, filter IssueFilter) ([]domain.Issue, int, error)
	CountByStatus(ctx context.Context, ownerID string) (map[domain.IssueStatus]int, error)
}

type issueRepository struct {
	pool persistence.PgxPool
}

// NewIssueRepository instantiates repository.
func NewIssueRepository(pool persistence.PgxPool) IssueRepository {
	return &issueRepository{pool: pool}
}

func (r *issueRepository) Create(ctx context.Context, issue *domain.Issue) error {
	const query = `
        INSERT INTO issues (owner_id, title, description, status, priority, severity)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		issue.OwnerID,
		issue.Title,
		issue.Description,
		issue.Status,
		issue.Priority,
		issue.Severity,
	).Scan(&issue.ID, &issue.CreatedAt, &issue.UpdatedAt)
}

func (r *issueRepository) Update(ctx context.Context, issue *domain.Issue) error {
	const query = `
        UPDATE issues SET title=$1, description=$2, status=$3, priority=$4, severity=$5, updated_at=NOW()
        WHERE id=$6 AND owner_id=$7
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query,
		issue.Title,
		issue.Description,
		issue.Status,
		issue.Priority,
		issue.Severity,
		issue.ID,
		issue.OwnerID,
	).Scan(&issue.UpdatedAt)
}

func (r *issueRepository) GetByID(ctx context.Context, id, ownerID string) (*domain.Issue, error) {
	const query = `
        SELECT id, owner_id, title, description, status, priority, severity, created_at, updated_at
        FROM issues WHERE id=$1 AND owner_id=$2`
	var issue domain.Issue
	if err := r.pool.QueryRow(ctx, query, id, ownerID).Scan(
		&issue.ID,
		&issue.OwnerID,
		&issue.Title,
		&issue.Description,
		&issue.Status,
		&issue.Priority,
		&issue.Severity,
		&issue.CreatedAt,
		&issue.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &issue, nil
}

func (r *issueRepository) Delete(ctx context.Context, id, ownerID string) error {
	const query = `DELETE FROM issues WHERE id=$1 AND owner_id=$2`
	cmd, err := r.pool.Exec(ctx, query, id, ownerID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// likeEscaper neutralizes LIKE metacharacters so search terms match as
// literal substrings.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// sortColumns whitelists sortable fields against their columns.
var sortColumns = map[string]string{
	"title":     "title",
	"status":    "status",
	"priority":  "priority",
	"severity":  "severity",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

func (r *issueRepository) ListWithFilter(ctx context.Context, filter IssueFilter) ([]domain.Issue, int, error) {
	clauses := []string{"owner_id=$1"}
	args := []any{filter.OwnerID}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}
	if filter.Severity != nil {
		args = append(args, *filter.Severity)
		clauses = append(clauses, fmt.Sprintf("severity=$%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(*filter.SearchTerm))) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	where := strings.Join(clauses, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM issues WHERE %s`, where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	column, ok := sortColumns[filter.SortField]
	if !ok {
		column = "updated_at"
		filter.SortDesc = true
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT id, owner_id, title, description, status, priority, severity, created_at, updated_at
             FROM issues WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		where, column, direction, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	issues, err := scanIssues(rows)
	if err != nil {
		return nil, 0, err
	}
	return issues, total, nil
}

func (r *issueRepository) CountByStatus(ctx context.Context, ownerID string) (map[domain.IssueStatus]int, error) {
	const query = `SELECT status, COUNT(*) FROM issues WHERE owner_id=$1 GROUP BY status`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.IssueStatus]int)
	for rows.Next() {
		var status domain.IssueStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func scanIssues(rows pgx.Rows) ([]domain.Issue, error) {
	var result []domain.Issue
	for rows.Next() {
		var issue domain.Issue
		if err := rows.Scan(
			&issue.ID,
			&issue.OwnerID,
			&issue.Title,
			&issue.Description,
			&issue.Status,
			&issue.Priority,
			&issue.Severity,
			&issue.CreatedAt,
			&issue.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, issue)
	}
	return result, rows.Err()
}
