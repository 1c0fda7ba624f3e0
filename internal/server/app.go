// Package server wires storage, the upstream client and the services
// together and runs the HTTP and gRPC endpoints until a shutdown signal.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/difychat/internal/filex"
	"github.com/dmitrijs2005/difychat/internal/logging"
	"github.com/dmitrijs2005/difychat/internal/metrics"
	"github.com/dmitrijs2005/difychat/internal/netx"
	"github.com/dmitrijs2005/difychat/internal/server/config"
	"github.com/dmitrijs2005/difychat/internal/server/dify"
	"github.com/dmitrijs2005/difychat/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/difychat/internal/server/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/difychat/internal/server/grpc"
	hs "github.com/dmitrijs2005/difychat/internal/server/http"
)

const (
	startupTimeout   = 30 * time.Second
	redisPingTimeout = 5 * time.Second
	shutdownTimeout  = 10 * time.Second
	tokenSweepPeriod = time.Hour
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	redis    *redis.Client
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	accountService    *services.AccountService
	transcriptService *services.TranscriptService
	statsService      *services.StatsService
	archive           *services.AttachmentArchive
	chatGateway       *services.ChatGateway
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(os.Stdout, c.LogLevel, c.LogFormat)

	if _, err := filex.EnsureSubdDir(c.UploadDir); err != nil {
		return nil, fmt.Errorf("upload dir init error: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	db, m, err := openStorage(ctx, c)
	if err != nil {
		return nil, err
	}

	rdb := connectRedis(ctx, c, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mtr := metrics.New(registry)

	httpClient := netx.NewHTTPClient(c.UpstreamTimeout, c.UpstreamInsecureSkipVerify)

	// left nil without a key so chat requests report the gateway as unready
	var chatClient services.ChatClient
	if c.DifyAPIKey != "" {
		caller := netx.NewCaller(httpClient, netx.RetryPolicy{MaxRetries: c.UpstreamMaxRetries, Delay: c.UpstreamRetryDelay}, logger, mtr)
		chatClient = dify.NewClient(c.DifyBaseURL, c.DifyAPIKey, caller, logger)
	} else {
		logger.Warn(ctx, "DIFY_API_KEY is not set, chat endpoints will answer 503")
	}

	ts := services.NewTranscriptService(db, m, c)
	archive := services.NewAttachmentArchive(c, httpClient, logger)

	return &App{
		config:            c,
		logger:            logger,
		db:                db,
		redis:             rdb,
		registry:          registry,
		metrics:           mtr,
		accountService:    services.NewAccountService(db, m, c),
		transcriptService: ts,
		statsService:      services.NewStatsService(db, m, rdb, c, logger),
		archive:           archive,
		chatGateway:       services.NewChatGateway(chatClient, ts, archive, c, logger),
	}, nil
}

// openStorage connects to PostgreSQL and applies pending migrations.
func openStorage(ctx context.Context, c *config.Config) (*sql.DB, repomanager.RepositoryManager, error) {
	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db init error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("db migration error: %w", err)
	}

	return db, m, nil
}

// connectRedis returns a client for the configured stats cache, or nil when
// no address is set or the server does not answer.
func connectRedis(ctx context.Context, c *config.Config, l logging.Logger) *redis.Client {
	if c.RedisAddr == "" {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword})

	pctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := rdb.Ping(pctx).Err(); err != nil {
		l.Warn(ctx, "redis unavailable, stats cache disabled", "addr", c.RedisAddr, "error", err)
		_ = rdb.Close()
		return nil
	}
	return rdb
}

// httpWriteTimeout leaves room for a file turn: an upload and a chat call,
// each retried up to the configured limit.
func httpWriteTimeout(c *config.Config) time.Duration {
	attempts := time.Duration(netx.RetryPolicy{MaxRetries: c.UpstreamMaxRetries}.Attempts())
	return 2*attempts*(c.UpstreamTimeout+c.UpstreamRetryDelay) + 30*time.Second
}

func (app *App) handler() http.Handler {
	srv := hs.NewServer(app.config, hs.Deps{
		Accounts:    app.accountService,
		Transcripts: app.transcriptService,
		Chat:        app.chatGateway,
		Stats:       app.statsService,
		Attachments: app.archive,
		DB:          app.db,
		Metrics:     app.metrics,
		Gatherer:    app.registry,
	}, app.logger)
	return srv.Router()
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	srv := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           app.handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      httpWriteTimeout(app.config),
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "HTTP shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", srv.Addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.db)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// sweepTokens purges expired refresh tokens every period until ctx is done.
func (app *App) sweepTokens(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.accountService.PurgeExpiredTokens(ctx)
			if err != nil {
				app.logger.Error(ctx, "refresh token sweep failed", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "expired refresh tokens purged", "count", n)
			}
		}
	}
}

func (app *App) close(ctx context.Context) {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error(ctx, "redis close error", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.sweepTokens(ctx, tokenSweepPeriod)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.close(context.Background())
	app.logger.Info(context.Background(), "App stopped")
}
