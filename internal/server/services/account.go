// Package services contains server-side business logic. This file implements
// AccountService, which handles registration, authentication, administrator
// bootstrap and issuing/refreshing JWTs plus server-stored refresh tokens.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dmitrijs2005/difychat/internal/common"
	"github.com/dmitrijs2005/difychat/internal/cryptox"
	"github.com/dmitrijs2005/difychat/internal/dbx"
	"github.com/dmitrijs2005/difychat/internal/server/auth"
	"github.com/dmitrijs2005/difychat/internal/server/config"
	"github.com/dmitrijs2005/difychat/internal/server/models"
	"github.com/dmitrijs2005/difychat/internal/server/repositories/repomanager"
)

var accountPattern = regexp.MustCompile(`^[0-9]{1,19}$`)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AccountService provides credential operations:
// - Register / Authenticate: create accounts and verify passwords
// - EnsureAdmin: create or promote an administrator
// - Login / RefreshToken / Logout: mint and rotate tokens
// - List / Get / Delete: administrative account management
type AccountService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	dummySalt                    []byte
	dummyHash                    []byte
}

// NewAccountService constructs an AccountService using repositories and server config.
func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *AccountService {
	salt := cryptox.NewSalt()
	return &AccountService{
		db:                           db,
		repomanager:                  m,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		dummySalt:                    salt,
		dummyHash:                    cryptox.HashPassword("", salt),
	}
}

// ValidateCredentials checks the account format and that password is set.
func ValidateCredentials(account, password string) error {
	if !accountPattern.MatchString(account) {
		return fmt.Errorf("%w: account must be 1 to 19 digits", common.ErrorValidation)
	}
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: password is required", common.ErrorValidation)
	}
	return nil
}

// Register creates a regular account. A taken login yields
// common.ErrorAlreadyExists.
func (s *AccountService) Register(ctx context.Context, account, password string) (*models.Account, error) {
	if err := ValidateCredentials(account, password); err != nil {
		return nil, err
	}

	salt := cryptox.NewSalt()
	a := &models.Account{
		Account:      account,
		PasswordHash: cryptox.HashPassword(password, salt),
		Salt:         salt,
	}

	created, err := s.repomanager.Accounts(s.db).Create(ctx, a)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: error creating account: %v", common.ErrorStorage, err)
	}
	return created, nil
}

// Authenticate verifies account and password. Unknown accounts and wrong
// passwords both yield common.ErrorUnauthorized.
func (s *AccountService) Authenticate(ctx context.Context, account, password string) (*models.Account, error) {
	a, err := s.repomanager.Accounts(s.db).GetByAccount(ctx, account)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			cryptox.VerifyPassword(s.dummyHash, s.dummySalt, password)
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("%w: error loading account: %v", common.ErrorStorage, err)
	}

	if !cryptox.VerifyPassword(a.PasswordHash, a.Salt, password) {
		return nil, common.ErrorUnauthorized
	}
	return a, nil
}

// Login authenticates and, on success, returns the account and a new TokenPair.
func (s *AccountService) Login(ctx context.Context, account, password string) (*models.Account, *TokenPair, error) {
	a, err := s.Authenticate(ctx, account, password)
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.generateTokenPair(ctx, a, s.db)
	if err != nil {
		return nil, nil, err
	}
	return a, pair, nil
}

// EnsureAdmin creates account as an administrator or, when it exists,
// resets its password, promotes it and revokes its refresh tokens.
func (s *AccountService) EnsureAdmin(ctx context.Context, account, password string) (*models.Account, error) {
	if err := ValidateCredentials(account, password); err != nil {
		return nil, err
	}

	salt := cryptox.NewSalt()
	hash := cryptox.HashPassword(password, salt)

	var out *models.Account
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)

		existing, err := repo.GetByAccount(ctx, account)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			out, err = repo.Create(ctx, &models.Account{Account: account, PasswordHash: hash, Salt: salt, IsAdmin: true})
			return err
		case err != nil:
			return err
		}

		if err := repo.UpdateCredentials(ctx, existing.ID, hash, salt, true); err != nil {
			return err
		}
		if err := s.repomanager.RefreshTokens(tx).DeleteForUser(ctx, existing.ID); err != nil {
			return err
		}
		existing.PasswordHash, existing.Salt, existing.IsAdmin = hash, salt, true
		out = existing
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: error ensuring admin: %v", common.ErrorStorage, err)
	}
	return out, nil
}

// Get returns the account with id or common.ErrorNotFound.
func (s *AccountService) Get(ctx context.Context, id int64) (*models.Account, error) {
	a, err := s.repomanager.Accounts(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: error loading account: %v", common.ErrorStorage, err)
	}
	return a, nil
}

// List returns all accounts, newest first.
func (s *AccountService) List(ctx context.Context) ([]*models.Account, error) {
	list, err := s.repomanager.Accounts(s.db).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: error listing accounts: %v", common.ErrorStorage, err)
	}
	return list, nil
}

// Delete removes the account together with its transcript and tokens. It
// reports whether the account existed.
func (s *AccountService) Delete(ctx context.Context, id int64) (bool, error) {
	ok, err := s.repomanager.Accounts(s.db).Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%w: error deleting account: %v", common.ErrorStorage, err)
	}
	return ok, nil
}

// RefreshToken validates a refresh token, rotates it transactionally, and
// returns a fresh TokenPair. Expired tokens yield ErrRefreshTokenExpired.
func (s *AccountService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	repo := s.repomanager.RefreshTokens(s.db)

	token, err := repo.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, fmt.Errorf("%w: error searching refresh token: %v", common.ErrorStorage, err)
	}
	if token.Expires.Before(time.Now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.RefreshTokens(tx).Delete(ctx, refreshToken); err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		a, err := s.repomanager.Accounts(tx).GetByID(ctx, token.UserID)
		if err != nil {
			return err
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, a, tx)
		return genErr
	}); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, err
	}
	return pair, nil
}

// PurgeExpiredTokens removes refresh tokens that can no longer be exchanged.
func (s *AccountService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: error purging refresh tokens: %v", common.ErrorStorage, err)
	}
	return n, nil
}

// Logout revokes a refresh token. Unknown tokens are ignored.
func (s *AccountService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.repomanager.RefreshTokens(s.db).Delete(ctx, refreshToken); err != nil {
		return fmt.Errorf("%w: error deleting refresh token: %v", common.ErrorStorage, err)
	}
	return nil
}

// --- helpers below ---

func (s *AccountService) generateAccessToken(a *models.Account) (string, error) {
	return auth.GenerateToken(a.ID, a.IsAdmin, s.jwtSecret, s.accessTokenValidityDuration)
}

func (s *AccountService) generateRefreshToken() (string, error) {
	return common.MakeRandHexString(32)
}

func (s *AccountService) generateTokenPair(ctx context.Context, a *models.Account, tx dbx.DBTX) (*TokenPair, error) {
	access, err := s.generateAccessToken(a)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := s.generateRefreshToken()
	if err != nil {
		return nil, common.ErrorInternal
	}
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, a.ID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
