package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/dmitrijs2005/difychat/internal/common"
	"github.com/dmitrijs2005/difychat/internal/dbx"
	"github.com/dmitrijs2005/difychat/internal/server/models"
)

const table = "refresh_tokens"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, userID int64, token string, validity time.Duration) error {
	query, args, err := psql.Insert(table).
		Columns("user_id", "token", "expires_at").
		Values(userID, token, time.Now().Add(validity)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	query, args, err := psql.Select("id", "user_id", "expires_at", "created_at").
		From(table).
		Where(sq.Eq{"token": token}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rt := &models.RefreshToken{Token: token}
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&rt.ID, &rt.UserID, &rt.Expires, &rt.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, common.ErrorNotFound
	case err != nil:
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rt, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, token string) error {
	_, err := r.delete(ctx, sq.Eq{"token": token})
	return err
}

func (r *PostgresRepository) DeleteForUser(ctx context.Context, userID int64) error {
	_, err := r.delete(ctx, sq.Eq{"user_id": userID})
	return err
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.delete(ctx, sq.Lt{"expires_at": now})
}

func (r *PostgresRepository) delete(ctx context.Context, where sq.Sqlizer) (int64, error) {
	query, args, err := psql.Delete(table).Where(where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
