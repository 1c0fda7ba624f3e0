package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/dmitrijs2005/difychat/internal/common"
	"github.com/dmitrijs2005/difychat/internal/dbx"
	"github.com/dmitrijs2005/difychat/internal/server/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {

	query :=
		`INSERT INTO users (account, password_hash, salt, is_admin)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (account) DO NOTHING
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		a.Account, a.PasswordHash, a.Salt, a.IsAdmin).Scan(&a.ID, &a.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return a, nil
}

func (r *PostgresRepository) GetByAccount(ctx context.Context, account string) (*models.Account, error) {
	query :=
		`SELECT id, account, password_hash, salt, is_admin, created_at FROM users
		 WHERE account = $1
		 `

	return r.getOne(ctx, query, account)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query :=
		`SELECT id, account, password_hash, salt, is_admin, created_at FROM users
		 WHERE id = $1
		 `

	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.Account, error) {
	a := &models.Account{}
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&a.ID, &a.Account, &a.PasswordHash, &a.Salt, &a.IsAdmin, &a.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return a, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.Account, error) {
	query, args, err := psql.
		Select("id", "account", "is_admin", "created_at").
		From("users").
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Account, 0)
	for rows.Next() {
		a := &models.Account{}
		if err := rows.Scan(&a.ID, &a.Account, &a.IsAdmin, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) (bool, error) {
	ok, err := dbx.ExecAffected(ctx, r.db, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) UpdateCredentials(ctx context.Context, id int64, hash, salt []byte, isAdmin bool) error {
	query :=
		`UPDATE users SET password_hash = $2, salt = $3, is_admin = $4
		 WHERE id = $1
		 `

	ok, err := dbx.ExecAffected(ctx, r.db, query, id, hash, salt, isAdmin)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if !ok {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Stats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{UserStats: make([]models.UserChatCount, 0)}

	err := r.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM users), (SELECT COUNT(*) FROM chat_records)`).
		Scan(&stats.TotalUsers, &stats.TotalChats)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	query, args, err := psql.
		Select("u.account", "COUNT(c.id) AS chat_count").
		From("users u").
		LeftJoin("chat_records c ON c.user_id = u.id").
		GroupBy("u.id", "u.account").
		OrderBy("chat_count DESC", "u.account").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var uc models.UserChatCount
		if err := rows.Scan(&uc.Account, &uc.ChatCount); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		stats.UserStats = append(stats.UserStats, uc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return stats, nil
}
