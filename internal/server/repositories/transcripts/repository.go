// Package transcripts declares and implements persistence for the
// per-account chat transcript.
package transcripts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/difychat/internal/server/models"
)

// Repository defines transcript storage operations. Dates are calendar
// dates as computed by the database session time zone.
type Repository interface {
	// Append stores a new entry; ID and CreateTime are assigned by the store.
	Append(ctx context.Context, e *models.TranscriptEntry) (*models.TranscriptEntry, error)

	// History returns all entries of userID, newest first.
	History(ctx context.Context, userID int64) ([]*models.TranscriptEntry, error)

	// GroupedByDate buckets entries of userID by date, most recently active
	// first, capped at limit buckets.
	GroupedByDate(ctx context.Context, userID int64, limit int) ([]*models.DateGroup, error)

	// EntriesOnDate returns the entries of userID on date, oldest first.
	EntriesOnDate(ctx context.Context, userID int64, date time.Time) ([]*models.TranscriptEntry, error)

	// DeleteAll removes every entry of userID and reports whether any existed.
	DeleteAll(ctx context.Context, userID int64) (bool, error)

	// DeleteOnDate removes the entries of userID on date and reports whether
	// any existed.
	DeleteOnDate(ctx context.Context, userID int64, date time.Time) (bool, error)

	// OwnsFile reports whether userID has an entry referencing filePath.
	OwnsFile(ctx context.Context, userID int64, filePath string) (bool, error)
}
