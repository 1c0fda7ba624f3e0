package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/difychat/internal/common"
	"github.com/dmitrijs2005/difychat/internal/dbx"
	"github.com/dmitrijs2005/difychat/internal/logging"
	"github.com/dmitrijs2005/difychat/internal/server/config"
	"github.com/dmitrijs2005/difychat/internal/server/models"
	"github.com/dmitrijs2005/difychat/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/difychat/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/difychat/internal/server/repositories/transcripts"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:                    "k",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
		UploadDir:                    ".",
		MaxUploadSize:                1 << 20,
		FilePrompt:                   "Please analyze the contents of this file.",
		StatsCacheTTL:                time.Minute,
	}
}

// --- accounts ---

type fakeAccountsRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*models.Account

	createErr error
	getErr    error
	listErr   error
	deleteErr error
	updateErr error
	stats     *models.Stats
	statsErr  error
	statsHits int
}

func newFakeAccountsRepo() *fakeAccountsRepo {
	return &fakeAccountsRepo{byID: map[int64]*models.Account{}}
}

func (f *fakeAccountsRepo) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, x := range f.byID {
		if x.Account == a.Account {
			return nil, common.ErrorAlreadyExists
		}
	}
	f.nextID++
	c := *a
	c.ID = f.nextID
	c.CreatedAt = time.Now()
	f.byID[c.ID] = &c
	out := c
	return &out, nil
}

func (f *fakeAccountsRepo) GetByAccount(_ context.Context, account string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, x := range f.byID {
		if x.Account == account {
			c := *x
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeAccountsRepo) GetByID(_ context.Context, id int64) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	x, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *x
	return &c, nil
}

func (f *fakeAccountsRepo) List(context.Context) ([]*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.Account
	for _, x := range f.byID {
		c := *x
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeAccountsRepo) Delete(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	_, ok := f.byID[id]
	delete(f.byID, id)
	return ok, nil
}

func (f *fakeAccountsRepo) UpdateCredentials(_ context.Context, id int64, hash, salt []byte, isAdmin bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	x, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	x.PasswordHash, x.Salt, x.IsAdmin = hash, salt, isAdmin
	return nil
}

func (f *fakeAccountsRepo) Stats(context.Context) (*models.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsHits++
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return f.stats, nil
}

// --- transcripts ---

type fakeTranscriptsRepo struct {
	mu      sync.Mutex
	entries []*models.TranscriptEntry

	appendErr error
	readErr   error
	groups    []*models.DateGroup

	lastLimit int
	lastDate  time.Time
}

func (f *fakeTranscriptsRepo) Append(_ context.Context, e *models.TranscriptEntry) (*models.TranscriptEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	c := *e
	c.ID = int64(len(f.entries) + 1)
	c.CreateTime = time.Now()
	f.entries = append(f.entries, &c)
	return &c, nil
}

func (f *fakeTranscriptsRepo) History(_ context.Context, userID int64) ([]*models.TranscriptEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	var out []*models.TranscriptEntry
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].UserID == userID {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

func (f *fakeTranscriptsRepo) GroupedByDate(_ context.Context, _ int64, limit int) ([]*models.DateGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.groups, nil
}

func (f *fakeTranscriptsRepo) EntriesOnDate(_ context.Context, userID int64, date time.Time) ([]*models.TranscriptEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastDate = date
	if f.readErr != nil {
		return nil, f.readErr
	}
	var out []*models.TranscriptEntry
	for _, e := range f.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeTranscriptsRepo) DeleteAll(_ context.Context, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return false, f.readErr
	}
	kept := f.entries[:0]
	removed := false
	for _, e := range f.entries {
		if e.UserID == userID {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	f.entries = kept
	return removed, nil
}

func (f *fakeTranscriptsRepo) DeleteOnDate(_ context.Context, userID int64, date time.Time) (bool, error) {
	f.mu.Lock()
	f.lastDate = date
	f.mu.Unlock()
	return f.DeleteAll(context.Background(), userID)
}

func (f *fakeTranscriptsRepo) OwnsFile(_ context.Context, userID int64, filePath string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return false, f.readErr
	}
	for _, e := range f.entries {
		if e.UserID == userID && e.FilePath != nil && *e.FilePath == filePath {
			return true, nil
		}
	}
	return false, nil
}

// --- refresh tokens ---

type fakeRefreshRepo struct {
	mu     sync.Mutex
	tokens map[string]*models.RefreshToken

	findErr   error
	delErr    error
	createErr error
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{tokens: map[string]*models.RefreshToken{}}
}

func (f *fakeRefreshRepo) Create(_ context.Context, userID int64, token string, validity time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.tokens[token] = &models.RefreshToken{UserID: userID, Token: token, Expires: time.Now().Add(validity)}
	return nil
}

func (f *fakeRefreshRepo) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	t, ok := f.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *t
	return &c, nil
}

func (f *fakeRefreshRepo) Delete(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.tokens, token)
	return nil
}

func (f *fakeRefreshRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return 0, f.delErr
	}
	var n int64
	for k, t := range f.tokens {
		if t.Expires.Before(now) {
			delete(f.tokens, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeRefreshRepo) DeleteForUser(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, t := range f.tokens {
		if t.UserID == userID {
			delete(f.tokens, k)
		}
	}
	return nil
}

// --- manager ---

type fakeRepoManager struct {
	a *fakeAccountsRepo
	t *fakeTranscriptsRepo
	r *fakeRefreshRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{a: newFakeAccountsRepo(), t: &fakeTranscriptsRepo{}, r: newFakeRefreshRepo()}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository           { return m.a }
func (m *fakeRepoManager) Transcripts(dbx.DBTX) transcripts.Repository     { return m.t }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.r }
