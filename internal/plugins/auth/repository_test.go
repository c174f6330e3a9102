package auth

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockUserRepository(t *testing.T) (UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserRepository(db), mock
}

var userRowColumns = []string{"id", "email", "username", "password_hash", "photo", "phone", "biography", "created_at", "updated_at"}

func TestUserRepository_Create(t *testing.T) {
	repo, mock := newMockUserRepository(t)
	now := time.Now().UTC()
	u := &User{
		ID: "u-1", Email: "alice@example.com", Username: "Alice", PasswordHash: "$2a$10$hash",
		Photo: DefaultPhoto, Phone: DefaultPhone, Biography: DefaultBiography,
		CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectExec("INSERT INTO users").
		WithArgs(u.ID, u.Email, u.Username, u.PasswordHash, u.Photo, u.Phone, u.Biography, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), u))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_CreateDuplicate(t *testing.T) {
	repo, mock := newMockUserRepository(t)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'alice@example.com' for key 'uq_users_email'"})

	err := repo.Create(context.Background(), &User{ID: "u-1", Email: "alice@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_CreateOtherError(t *testing.T) {
	repo, mock := newMockUserRepository(t)

	mock.ExpectExec("INSERT INTO users").WillReturnError(errors.New("connection reset"))

	err := repo.Create(context.Background(), &User{ID: "u-1", Email: "alice@example.com"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateEmail)
}

func TestUserRepository_FindByEmail(t *testing.T) {
	repo, mock := newMockUserRepository(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM users WHERE email = \\?").
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("u-1", "alice@example.com", "Alice", "$2a$10$hash", DefaultPhoto, DefaultPhone, DefaultBiography, now, now))

	u, err := repo.FindByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, "$2a$10$hash", u.PasswordHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_FindByIDNotFound(t *testing.T) {
	repo, mock := newMockUserRepository(t)

	mock.ExpectQuery("SELECT .+ FROM users WHERE id = \\?").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assertAppError(t, err, http.StatusNotFound)
}

func TestUserRepository_EmailExists(t *testing.T) {
	repo, mock := newMockUserRepository(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.EmailExists(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUserRepository_UpdateFields(t *testing.T) {
	repo, mock := newMockUserRepository(t)
	name, hash := "Alice B", "$2a$10$new"

	mock.ExpectExec("UPDATE users SET username = \\?, password_hash = \\?, updated_at = UTC_TIMESTAMP\\(\\) WHERE id = \\?").
		WithArgs(name, hash, "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateFields(context.Background(), "u-1", UserUpdate{Username: &name, PasswordHash: &hash})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_UpdateFieldsMissingRow(t *testing.T) {
	repo, mock := newMockUserRepository(t)
	photo := "p.png"

	mock.ExpectExec("UPDATE users SET photo = \\?").
		WithArgs(photo, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateFields(context.Background(), "missing", UserUpdate{Photo: &photo})
	assertAppError(t, err, http.StatusNotFound)
}

func TestUserRepository_UpdateFieldsEmptyIsNoop(t *testing.T) {
	repo, mock := newMockUserRepository(t)

	require.NoError(t, repo.UpdateFields(context.Background(), "u-1", UserUpdate{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
