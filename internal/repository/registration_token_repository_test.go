package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
)

func newTokenRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRegistrationTokenRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newTokenRepoMock(t)
	defer cleanup()
	repo := NewRegistrationTokenRepository(db)

	mock.ExpectExec("INSERT INTO registration_tokens").
		WillReturnResult(sqlmock.NewResult(1, 1))

	token := &models.RegistrationToken{
		Token:     "opaque-invite",
		StudentID: "st-1",
		ExpiresAt: time.Now().Add(48 * time.Hour),
	}
	require.NoError(t, repo.CreateRegistrationToken(context.Background(), token))
	require.NotEmpty(t, token.ID)
	require.False(t, token.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationTokenRepositoryConsumeOnce(t *testing.T) {
	db, mock, cleanup := newTokenRepoMock(t)
	defer cleanup()
	repo := NewRegistrationTokenRepository(db)

	usedAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE registration_tokens SET used_at = \$2 WHERE id = \$1 AND used_at IS NULL`).
		WithArgs("tok-1", usedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE registration_tokens SET used_at = \$2 WHERE id = \$1 AND used_at IS NULL`).
		WithArgs("tok-1", usedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.ConsumeRegistrationToken(context.Background(), "tok-1", usedAt))
	// Second consume finds no unused row and must refuse the replay.
	err := repo.ConsumeRegistrationToken(context.Background(), "tok-1", usedAt)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}
