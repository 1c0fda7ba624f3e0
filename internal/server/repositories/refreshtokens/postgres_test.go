package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/difychat/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgresRepository(db), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	insert := q("INSERT INTO refresh_tokens (user_id,token,expires_at) VALUES ($1,$2,$3)")

	mock.ExpectExec(insert).
		WithArgs(int64(1), "tok123", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(context.Background(), 1, "tok123", 30*time.Minute))

	mock.ExpectExec(insert).
		WithArgs(int64(1), "tok123", sqlmock.AnyArg()).
		WillReturnError(errors.New("db down"))
	err := repo.Create(context.Background(), 1, "tok123", time.Hour)
	assert.ErrorContains(t, err, "db error: db down")
}

func TestFind(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	sel := q("SELECT id, user_id, expires_at, created_at FROM refresh_tokens WHERE token = $1")

	expires := time.Now().Add(time.Hour)
	mock.ExpectQuery(sel).WithArgs("tok").WillReturnRows(
		sqlmock.NewRows([]string{"id", "user_id", "expires_at", "created_at"}).
			AddRow(int64(3), int64(1), expires, time.Now()))

	got, err := repo.Find(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.ID)
	assert.Equal(t, int64(1), got.UserID)
	assert.Equal(t, "tok", got.Token)
	assert.True(t, got.Expires.Equal(expires))

	mock.ExpectQuery(sel).WithArgs("nope").WillReturnError(sql.ErrNoRows)
	_, err = repo.Find(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	mock.ExpectQuery(sel).WithArgs("t").WillReturnError(errors.New("db err"))
	_, err = repo.Find(context.Background(), "t")
	assert.ErrorContains(t, err, "db error: db err")
}

func TestDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	del := q("DELETE FROM refresh_tokens WHERE token = $1")

	mock.ExpectExec(del).WithArgs("tok").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(del).WithArgs("bad").WillReturnError(errors.New("oops"))

	assert.NoError(t, repo.Delete(context.Background(), "tok"))
	assert.Error(t, repo.Delete(context.Background(), "bad"))
}

func TestDeleteForUser(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(q("DELETE FROM refresh_tokens WHERE user_id = $1")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	assert.NoError(t, repo.DeleteForUser(context.Background(), 7))
}

func TestDeleteExpired(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	del := q("DELETE FROM refresh_tokens WHERE expires_at < $1")

	mock.ExpectExec(del).WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 5))
	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	mock.ExpectExec(del).WithArgs(now).WillReturnError(errors.New("locked"))
	_, err = repo.DeleteExpired(context.Background(), now)
	assert.ErrorContains(t, err, "locked")
}
