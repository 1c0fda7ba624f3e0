package server

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/difychat/internal/server/config"
	"github.com/dmitrijs2005/difychat/internal/server/models"
	"github.com/dmitrijs2005/difychat/internal/server/services"
)

// BootstrapAdmin creates account as an administrator, or promotes it and
// resets its password when it already exists.
func BootstrapAdmin(ctx context.Context, c *config.Config, account, password string) (*models.Account, error) {
	db, m, err := openStorage(ctx, c)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	a, err := services.NewAccountService(db, m, c).EnsureAdmin(ctx, account, password)
	if err != nil {
		return nil, fmt.Errorf("ensure admin: %w", err)
	}
	return a, nil
}
