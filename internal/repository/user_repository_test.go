package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/issue-tracker/internal/domain"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return mock
}

func TestUserRepository_Create(t *testing.T) {
	mock := newMockPool(t)
	defer mock.Close()
	repo := NewUserRepository(mock)
	ctx := context.Background()

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("alice@example.com", "hash").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("user-1", now, now))

	user := &domain.User{Email: "alice@example.com", PasswordHash: "hash"}
	require.NoError(t, repo.Create(ctx, user))
	require.Equal(t, "user-1", user.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByEmail(t *testing.T) {
	mock := newMockPool(t)
	defer mock.Close()
	repo := NewUserRepository(mock)
	ctx := context.Background()

	now := time.Now()
	mock.ExpectQuery(`SELECT id, email, password_hash, created_at, updated_at\s+FROM users WHERE email=\$1`).
		WithArgs("alice@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "password_hash", "created_at", "updated_at"}).
			AddRow("user-1", "alice@example.com", "hash", now, now))

	user, err := repo.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, "user-1", user.ID)

	mock.ExpectQuery(`FROM users WHERE email=\$1`).
		WithArgs("ghost@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetByEmail(ctx, "ghost@example.com")
	require.ErrorIs(t, err, pgx.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByID(t *testing.T) {
	mock := newMockPool(t)
	defer mock.Close()
	repo := NewUserRepository(mock)

	now := time.Now()
	mock.ExpectQuery(`FROM users WHERE id=\$1`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "password_hash", "created_at", "updated_at"}).
			AddRow("user-1", "alice@example.com", "hash", now, now))

	user, err := repo.GetByID(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", user.Email)
	require.NoError(t, mock.ExpectationsWereMet())
}
