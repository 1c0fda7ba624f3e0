package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/difychat/internal/common"
	"github.com/dmitrijs2005/difychat/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newTranscriptService(t *testing.T) (*TranscriptService, *fakeRepoManager) {
	t.Helper()
	db, _ := newSQLMockDB(t)
	rm := newFakeRepoManager()
	return NewTranscriptService(db, rm, testConfig()), rm
}

func TestAppend_ValidatesAndStores(t *testing.T) {
	s, rm := newTranscriptService(t)

	_, err := s.Append(context.Background(), 1, strPtr("q"), "", nil)
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = s.Append(context.Background(), 0, strPtr("q"), "a", nil)
	assert.ErrorIs(t, err, common.ErrorValidation)

	e, err := s.Append(context.Background(), 1, nil, "analysis", strPtr("abc_report.pdf"))
	require.NoError(t, err)
	assert.Nil(t, e.Query)
	assert.Equal(t, "abc_report.pdf", *e.FilePath)
	assert.False(t, e.CreateTime.IsZero())
	require.Len(t, rm.t.entries, 1)

	rm.t.appendErr = errBoom{}
	_, err = s.Append(context.Background(), 1, strPtr("q"), "a", nil)
	assert.ErrorIs(t, err, common.ErrorStorage)
}

func TestHistory_NewestFirst(t *testing.T) {
	s, _ := newTranscriptService(t)
	for _, q := range []string{"first", "second", "third"} {
		_, err := s.Append(context.Background(), 5, strPtr(q), "r", nil)
		require.NoError(t, err)
	}
	_, err := s.Append(context.Background(), 6, strPtr("other"), "r", nil)
	require.NoError(t, err)

	h, err := s.History(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, h, 3)
	assert.Equal(t, "third", *h[0].Query)
	assert.Equal(t, "first", *h[2].Query)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "File conversation", Preview(nil))
	assert.Equal(t, "File conversation", Preview(strPtr("")))
	assert.Equal(t, "short question", Preview(strPtr("short question")))

	exact := strings.Repeat("a", 30)
	assert.Equal(t, exact, Preview(&exact))

	long := strings.Repeat("问", 31)
	assert.Equal(t, strings.Repeat("问", 30)+"...", Preview(&long))
}

func TestGroupedByDate_FillsPreviewAndDefaultsLimit(t *testing.T) {
	s, rm := newTranscriptService(t)
	rm.t.groups = []*models.DateGroup{
		{Date: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), Count: 2, LatestQuery: strPtr("hello")},
		{Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Count: 1},
	}

	groups, err := s.GroupedByDate(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, ConversationListLimit, rm.t.lastLimit)
	assert.Equal(t, "hello", groups[0].Preview)
	assert.Equal(t, "File conversation", groups[1].Preview)

	rm.t.readErr = errBoom{}
	_, err = s.GroupedByDate(context.Background(), 1, 10)
	assert.ErrorIs(t, err, common.ErrorStorage)
}

func TestEntriesOnDate_ParsesDate(t *testing.T) {
	s, rm := newTranscriptService(t)

	_, err := s.EntriesOnDate(context.Background(), 1, "2024/05/01")
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = s.EntriesOnDate(context.Background(), 1, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), rm.t.lastDate)
}

func TestDeletes(t *testing.T) {
	s, rm := newTranscriptService(t)
	_, _ = s.Append(context.Background(), 1, strPtr("q"), "r", nil)

	ok, err := s.DeleteOnDate(context.Background(), 1, "2024-05-01")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DeleteAll(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.DeleteOnDate(context.Background(), 1, "bad")
	assert.ErrorIs(t, err, common.ErrorValidation)

	rm.t.readErr = errBoom{}
	_, err = s.DeleteAll(context.Background(), 1)
	assert.ErrorIs(t, err, common.ErrorStorage)
}

func TestOwnsFile(t *testing.T) {
	s, _ := newTranscriptService(t)
	_, _ = s.Append(context.Background(), 1, nil, "r", strPtr("x_a.pdf"))

	ok, err := s.OwnsFile(context.Background(), 1, "x_a.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.OwnsFile(context.Background(), 2, "x_a.pdf")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRenderExport(t *testing.T) {
	ts := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	entries := []*models.TranscriptEntry{
		{Query: strPtr("hi"), Response: "hello", CreateTime: ts},
		{FilePath: strPtr("abc_doc.pdf"), Response: "summary", CreateTime: ts.Add(time.Minute)},
	}

	want := "Conversation - 2024-05-01\n" +
		strings.Repeat("=", 50) + "\n\n" +
		"[Record 1] 2024-05-01 09:30:00\n" +
		"User: hi\n" +
		"AI: hello\n" +
		strings.Repeat("-", 30) + "\n\n" +
		"[Record 2] 2024-05-01 09:31:00\n" +
		"File: abc_doc.pdf\n" +
		"AI: summary\n" +
		strings.Repeat("-", 30) + "\n\n"

	assert.Equal(t, want, RenderExport("2024-05-01", entries))
}

func TestExport(t *testing.T) {
	s, _ := newTranscriptService(t)
	_, _ = s.Append(context.Background(), 3, strPtr("q"), "a", nil)

	exp, err := s.Export(context.Background(), 3, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, "conversation_2024-05-01.txt", exp.Filename)
	assert.True(t, strings.HasPrefix(exp.Content, "Conversation - 2024-05-01\n"))
	assert.Contains(t, exp.Content, "User: q\nAI: a\n")

	_, err = s.Export(context.Background(), 3, "nope")
	assert.ErrorIs(t, err, common.ErrorValidation)
}
