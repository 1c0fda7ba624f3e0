package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/difychat/internal/common"
	"github.com/dmitrijs2005/difychat/internal/server/config"
	"github.com/dmitrijs2005/difychat/internal/server/models"
	"github.com/dmitrijs2005/difychat/internal/server/repositories/repomanager"
)

const (
	// ConversationListLimit caps the number of date buckets served at once.
	ConversationListLimit = 50

	previewRunes       = 30
	filePreview        = "File conversation"
	exportHeaderRule   = 50
	exportEntryDivider = 30
)

// TranscriptService reads and writes per-account chat transcripts.
type TranscriptService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

// NewTranscriptService constructs a TranscriptService.
func NewTranscriptService(db *sql.DB, m repomanager.RepositoryManager, _ *config.Config) *TranscriptService {
	return &TranscriptService{db: db, repomanager: m}
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(common.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", common.ErrorValidation, s)
	}
	return d, nil
}

// Append stores one completed exchange. response must be non-empty.
func (s *TranscriptService) Append(ctx context.Context, userID int64, query *string, response string, filePath *string) (*models.TranscriptEntry, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: invalid user id", common.ErrorValidation)
	}
	if response == "" {
		return nil, fmt.Errorf("%w: response is empty", common.ErrorValidation)
	}

	e, err := s.repomanager.Transcripts(s.db).Append(ctx, &models.TranscriptEntry{
		UserID:   userID,
		Query:    query,
		Response: response,
		FilePath: filePath,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: error appending transcript: %v", common.ErrorStorage, err)
	}
	return e, nil
}

// History returns all entries of userID, newest first.
func (s *TranscriptService) History(ctx context.Context, userID int64) ([]*models.TranscriptEntry, error) {
	list, err := s.repomanager.Transcripts(s.db).History(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: error reading history: %v", common.ErrorStorage, err)
	}
	return list, nil
}

// GroupedByDate returns per-date summaries of userID, most recently active
// first, with the preview filled in.
func (s *TranscriptService) GroupedByDate(ctx context.Context, userID int64, limit int) ([]*models.DateGroup, error) {
	if limit <= 0 {
		limit = ConversationListLimit
	}

	groups, err := s.repomanager.Transcripts(s.db).GroupedByDate(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: error grouping transcript: %v", common.ErrorStorage, err)
	}
	for _, g := range groups {
		g.Preview = Preview(g.LatestQuery)
	}
	return groups, nil
}

// Preview renders the list preview for a bucket whose latest query is q.
func Preview(q *string) string {
	if q == nil || *q == "" {
		return filePreview
	}
	p, cut := common.TruncateRunes(*q, previewRunes)
	if cut {
		p += "..."
	}
	return p
}

// EntriesOnDate returns the entries of userID on date (YYYY-MM-DD), oldest first.
func (s *TranscriptService) EntriesOnDate(ctx context.Context, userID int64, date string) ([]*models.TranscriptEntry, error) {
	d, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	list, err := s.repomanager.Transcripts(s.db).EntriesOnDate(ctx, userID, d)
	if err != nil {
		return nil, fmt.Errorf("%w: error reading conversation: %v", common.ErrorStorage, err)
	}
	return list, nil
}

// DeleteAll removes every entry of userID.
func (s *TranscriptService) DeleteAll(ctx context.Context, userID int64) (bool, error) {
	ok, err := s.repomanager.Transcripts(s.db).DeleteAll(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%w: error deleting transcript: %v", common.ErrorStorage, err)
	}
	return ok, nil
}

// DeleteOnDate removes the entries of userID on date (YYYY-MM-DD).
func (s *TranscriptService) DeleteOnDate(ctx context.Context, userID int64, date string) (bool, error) {
	d, err := ParseDate(date)
	if err != nil {
		return false, err
	}
	ok, err := s.repomanager.Transcripts(s.db).DeleteOnDate(ctx, userID, d)
	if err != nil {
		return false, fmt.Errorf("%w: error deleting conversation: %v", common.ErrorStorage, err)
	}
	return ok, nil
}

// OwnsFile reports whether userID has an entry referencing the stored file.
func (s *TranscriptService) OwnsFile(ctx context.Context, userID int64, filePath string) (bool, error) {
	ok, err := s.repomanager.Transcripts(s.db).OwnsFile(ctx, userID, filePath)
	if err != nil {
		return false, fmt.Errorf("%w: error checking attachment: %v", common.ErrorStorage, err)
	}
	return ok, nil
}

// Export renders the conversation of userID on date as plain text.
func (s *TranscriptService) Export(ctx context.Context, userID int64, date string) (*models.TranscriptExport, error) {
	entries, err := s.EntriesOnDate(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	return &models.TranscriptExport{
		Filename: "conversation_" + date + ".txt",
		Content:  RenderExport(date, entries),
	}, nil
}

// RenderExport formats entries under a "Conversation - <date>" header.
func RenderExport(date string, entries []*models.TranscriptEntry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Conversation - %s\n", date)
	b.WriteString(strings.Repeat("=", exportHeaderRule))
	b.WriteString("\n\n")

	for i, e := range entries {
		fmt.Fprintf(&b, "[Record %d] %s\n", i+1, e.CreateTime.Format(common.TimestampLayout))
		if e.Query != nil {
			fmt.Fprintf(&b, "User: %s\n", *e.Query)
		}
		if e.FilePath != nil {
			fmt.Fprintf(&b, "File: %s\n", *e.FilePath)
		}
		fmt.Fprintf(&b, "AI: %s\n", e.Response)
		b.WriteString(strings.Repeat("-", exportEntryDivider))
		b.WriteString("\n\n")
	}

	return b.String()
}
