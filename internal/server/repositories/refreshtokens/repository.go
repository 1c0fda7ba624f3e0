// Package refreshtokens stores the opaque refresh tokens handed out at login.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/difychat/internal/server/models"
)

// Repository defines refresh token storage. A token is single use: the
// service deletes it when it is exchanged.
type Repository interface {
	// Create stores token for userID, valid for validity from now.
	Create(ctx context.Context, userID int64, token string, validity time.Duration) error

	// Find returns the stored token or common.ErrorNotFound.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete removes token. Unknown tokens are ignored.
	Delete(ctx context.Context, token string) error

	// DeleteForUser revokes every token of userID.
	DeleteForUser(ctx context.Context, userID int64) error

	// DeleteExpired removes tokens that expired before now and returns how
	// many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
