package transcripts

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/difychat/internal/dbx"
	"github.com/dmitrijs2005/difychat/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const entryColumns = `id, user_id, query, response, file_path, create_time`

func (r *PostgresRepository) Append(ctx context.Context, e *models.TranscriptEntry) (*models.TranscriptEntry, error) {
	query :=
		`INSERT INTO chat_records (user_id, query, response, file_path)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, create_time
		 `

	err := r.db.QueryRowContext(ctx, query, e.UserID, e.Query, e.Response, e.FilePath).
		Scan(&e.ID, &e.CreateTime)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return e, nil
}

func (r *PostgresRepository) History(ctx context.Context, userID int64) ([]*models.TranscriptEntry, error) {
	query :=
		`SELECT ` + entryColumns + ` FROM chat_records
		 WHERE user_id = $1
		 ORDER BY create_time DESC, id DESC
		 `

	return r.selectEntries(ctx, query, userID)
}

func (r *PostgresRepository) EntriesOnDate(ctx context.Context, userID int64, date time.Time) ([]*models.TranscriptEntry, error) {
	query :=
		`SELECT ` + entryColumns + ` FROM chat_records
		 WHERE user_id = $1 AND DATE(create_time) = $2
		 ORDER BY create_time ASC, id ASC
		 `

	return r.selectEntries(ctx, query, userID, date)
}

func (r *PostgresRepository) selectEntries(ctx context.Context, query string, args ...any) ([]*models.TranscriptEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.TranscriptEntry, 0)
	for rows.Next() {
		var (
			e        models.TranscriptEntry
			q, fpath sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &q, &e.Response, &fpath, &e.CreateTime); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		e.Query = nullableString(q)
		e.FilePath = nullableString(fpath)
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) GroupedByDate(ctx context.Context, userID int64, limit int) ([]*models.DateGroup, error) {
	query :=
		`SELECT g.day, g.cnt, g.last_time,
		        (SELECT c.query FROM chat_records c
		          WHERE c.user_id = $1 AND DATE(c.create_time) = g.day
		          ORDER BY c.create_time DESC, c.id DESC
		          LIMIT 1) AS latest_query
		   FROM (SELECT DATE(create_time) AS day, COUNT(*) AS cnt, MAX(create_time) AS last_time
		           FROM chat_records
		          WHERE user_id = $1
		          GROUP BY DATE(create_time)) g
		  ORDER BY g.last_time DESC
		  LIMIT $2
		 `

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.DateGroup, 0)
	for rows.Next() {
		var (
			g      models.DateGroup
			latest sql.NullString
		)
		if err := rows.Scan(&g.Date, &g.Count, &g.LastTime, &latest); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		g.LatestQuery = nullableString(latest)
		result = append(result, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) DeleteAll(ctx context.Context, userID int64) (bool, error) {
	return r.exec(ctx, `DELETE FROM chat_records WHERE user_id = $1`, userID)
}

func (r *PostgresRepository) DeleteOnDate(ctx context.Context, userID int64, date time.Time) (bool, error) {
	return r.exec(ctx, `DELETE FROM chat_records WHERE user_id = $1 AND DATE(create_time) = $2`, userID, date)
}

func (r *PostgresRepository) OwnsFile(ctx context.Context, userID int64, filePath string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM chat_records WHERE user_id = $1 AND file_path = $2)`

	var ok bool
	if err := r.db.QueryRowContext(ctx, query, userID, filePath).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (bool, error) {
	ok, err := dbx.ExecAffected(ctx, r.db, query, args...)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
