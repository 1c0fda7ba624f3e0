package models

import "time"

// TranscriptEntry is one completed exchange. A text turn has Query set; a
// file turn has Query nil and FilePath set to the stored attachment name.
type TranscriptEntry struct {
	ID         int64
	UserID     int64
	Query      *string
	Response   string
	FilePath   *string
	CreateTime time.Time
}

// DateGroup summarises an account's entries on one calendar date.
type DateGroup struct {
	Date     time.Time
	Count    int
	LastTime time.Time
	// LatestQuery is the query of the day's latest entry, nil for a file turn.
	LatestQuery *string
	// Preview is derived from LatestQuery.
	Preview string
}

// TranscriptExport is a plain-text rendering of one day of conversation.
type TranscriptExport struct {
	Filename string
	Content  string
}
