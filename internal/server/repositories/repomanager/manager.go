package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/difychat/internal/dbx"
	"github.com/dmitrijs2005/difychat/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/difychat/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/difychat/internal/server/repositories/transcripts"
)

// RepositoryManager vends repositories bound to either the pool or a
// transaction, plus the schema migration hook.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Transcripts(db dbx.DBTX) transcripts.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
