// Package accounts declares and implements persistence for registered
// accounts and the administrative usage aggregate.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/difychat/internal/server/models"
)

// Repository defines account storage operations.
type Repository interface {
	// Create inserts a new account. An already taken login yields
	// common.ErrorAlreadyExists.
	Create(ctx context.Context, a *models.Account) (*models.Account, error)

	// GetByAccount returns the account with the given login or
	// common.ErrorNotFound.
	GetByAccount(ctx context.Context, account string) (*models.Account, error)

	// GetByID returns the account with the given id or common.ErrorNotFound.
	GetByID(ctx context.Context, id int64) (*models.Account, error)

	// List returns all accounts, newest first. Credentials are not loaded.
	List(ctx context.Context) ([]*models.Account, error)

	// Delete removes the account and, by cascade, its transcript. It reports
	// whether a row was removed.
	Delete(ctx context.Context, id int64) (bool, error)

	// UpdateCredentials replaces the password material and admin flag.
	UpdateCredentials(ctx context.Context, id int64, hash, salt []byte, isAdmin bool) error

	// Stats returns account and transcript totals plus per-account counts.
	Stats(ctx context.Context) (*models.Stats, error)
}
