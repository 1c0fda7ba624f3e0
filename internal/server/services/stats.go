package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/difychat/internal/common"
	"github.com/dmitrijs2005/difychat/internal/logging"
	"github.com/dmitrijs2005/difychat/internal/server/config"
	"github.com/dmitrijs2005/difychat/internal/server/models"
	"github.com/dmitrijs2005/difychat/internal/server/repositories/repomanager"
	"github.com/redis/go-redis/v9"
)

const statsCacheKey = "difychat:stats"

// StatsService serves the administrative usage summary, optionally cached in
// Redis for StatsCacheTTL.
type StatsService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	rdb         *redis.Client
	ttl         time.Duration
	logger      logging.Logger
}

// NewStatsService constructs a StatsService. rdb may be nil, which disables
// caching.
func NewStatsService(db *sql.DB, m repomanager.RepositoryManager, rdb *redis.Client, cfg *config.Config, l logging.Logger) *StatsService {
	return &StatsService{
		db:          db,
		repomanager: m,
		rdb:         rdb,
		ttl:         cfg.StatsCacheTTL,
		logger:      l.With("module", "stats"),
	}
}

func (s *StatsService) cacheEnabled() bool {
	return s.rdb != nil && s.ttl > 0
}

// Stats returns the usage summary, from cache when possible.
func (s *StatsService) Stats(ctx context.Context) (*models.Stats, error) {
	if s.cacheEnabled() {
		if st, ok := s.cached(ctx); ok {
			return st, nil
		}
	}

	st, err := s.repomanager.Accounts(s.db).Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: error computing stats: %v", common.ErrorStorage, err)
	}

	if s.cacheEnabled() {
		if b, err := json.Marshal(st); err == nil {
			if err := s.rdb.Set(ctx, statsCacheKey, b, s.ttl).Err(); err != nil {
				s.logger.Warn(ctx, "failed to cache stats", "error", err)
			}
		}
	}

	return st, nil
}

func (s *StatsService) cached(ctx context.Context) (*models.Stats, bool) {
	b, err := s.rdb.Get(ctx, statsCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn(ctx, "failed to read cached stats", "error", err)
		}
		return nil, false
	}

	var st models.Stats
	if err := json.Unmarshal(b, &st); err != nil {
		s.logger.Warn(ctx, "discarding malformed cached stats", "error", err)
		return nil, false
	}
	return &st, true
}

// Invalidate drops the cached summary.
func (s *StatsService) Invalidate(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, statsCacheKey).Err(); err != nil {
		s.logger.Warn(ctx, "failed to invalidate stats cache", "error", err)
	}
}
