package mysql

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	domuser "example.com/cartsync/internal/domain/user"
)

func TestUserRepository_GetByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := NewUserRepository(db)

	query := regexp.QuoteMeta(`SELECT id, name, email, password_hash FROM users WHERE email = ?`)
	mock.ExpectQuery(query).
		WithArgs("ann@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash"}).
			AddRow(7, "Ann", "ann@example.com", "$2a$hash"))
	mock.ExpectQuery(query).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	u, err := repo.GetByEmail(context.Background(), "ann@example.com")
	require.NoError(t, err)
	require.Equal(t, &domuser.User{
		ID:           7,
		Name:         "Ann",
		Email:        "ann@example.com",
		PasswordHash: "$2a$hash",
	}, u)

	_, err = repo.GetByEmail(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, domuser.ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
