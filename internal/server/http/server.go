// Package http exposes the JSON API over chi.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/difychat/internal/common"
	"github.com/dmitrijs2005/difychat/internal/logging"
	"github.com/dmitrijs2005/difychat/internal/metrics"
	"github.com/dmitrijs2005/difychat/internal/server/auth"
	"github.com/dmitrijs2005/difychat/internal/server/config"
	"github.com/dmitrijs2005/difychat/internal/server/models"
	"github.com/dmitrijs2005/difychat/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AccountManager is the credential side of the API.
type AccountManager interface {
	Register(ctx context.Context, account, password string) (*models.Account, error)
	Login(ctx context.Context, account, password string) (*models.Account, *services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	List(ctx context.Context) ([]*models.Account, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// TranscriptReader serves and prunes stored conversations.
type TranscriptReader interface {
	History(ctx context.Context, userID int64) ([]*models.TranscriptEntry, error)
	GroupedByDate(ctx context.Context, userID int64, limit int) ([]*models.DateGroup, error)
	EntriesOnDate(ctx context.Context, userID int64, date string) ([]*models.TranscriptEntry, error)
	Export(ctx context.Context, userID int64, date string) (*models.TranscriptExport, error)
	DeleteAll(ctx context.Context, userID int64) (bool, error)
	DeleteOnDate(ctx context.Context, userID int64, date string) (bool, error)
	OwnsFile(ctx context.Context, userID int64, filePath string) (bool, error)
}

// ChatSender runs chat and file turns.
type ChatSender interface {
	SendMessage(ctx context.Context, userID int64, message, conversationID string) (*services.Reply, error)
	SendFile(ctx context.Context, userID int64, fileName string, content io.Reader) (*services.Reply, error)
}

// StatsProvider serves the administrative usage summary.
type StatsProvider interface {
	Stats(ctx context.Context) (*models.Stats, error)
	Invalidate(ctx context.Context)
}

// AttachmentLinker hands out download links for archived attachments.
type AttachmentLinker interface {
	Enabled() bool
	PresignedURL(ctx context.Context, userID int64, stored string) (string, error)
}

// Pinger reports database reachability. *sql.DB implements it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators a Server routes to. Attachments, DB, Metrics
// and Gatherer may be nil.
type Deps struct {
	Accounts    AccountManager
	Transcripts TranscriptReader
	Chat        ChatSender
	Stats       StatsProvider
	Attachments AttachmentLinker
	DB          Pinger
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
}

// Server holds the HTTP handlers.
type Server struct {
	cfg    *config.Config
	deps   Deps
	secret []byte
	logger logging.Logger
}

// NewServer constructs a Server.
func NewServer(cfg *config.Config, deps Deps, l logging.Logger) *Server {
	return &Server{
		cfg:    cfg,
		deps:   deps,
		secret: []byte(cfg.SecretKey),
		logger: l.With("module", "http"),
	}
}

// Router builds the chi router with middleware and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID, Recovery(s.logger), Logger(s.logger, s.deps.Metrics), CORS(s.cfg.AllowedOrigins))

	r.Get("/health", s.handleHealth)
	if s.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/token/refresh", s.handleRefresh)
		r.With(s.authMiddleware).Post("/logout", s.handleLogout)

		r.With(s.authMiddleware).Post("/chat", s.handleChat)
		r.With(s.authMiddleware).Post("/upload", s.handleUpload)

		r.With(s.authMiddleware, s.requireOwner).Get("/history/{user_id}", s.handleHistory)
		r.With(s.authMiddleware, s.requireOwner).Get("/conversations/{user_id}", s.handleConversations)
		r.With(s.authMiddleware, s.requireOwner).Get("/conversation/{user_id}/{date}", s.handleConversation)
		r.With(s.authMiddleware, s.requireOwner).Get("/conversation/export/{user_id}/{date}", s.handleExport)
		r.With(s.authMiddleware, s.requireOwner).Delete("/conversation/delete/{user_id}/{date}", s.handleDeleteConversation)
		r.With(s.authMiddleware, s.requireOwner).Get("/attachments/{user_id}/{file}", s.handleAttachment)

		r.With(s.authMiddleware, s.requireAdmin).Get("/users", s.handleListUsers)
		r.With(s.authMiddleware, s.requireAdmin).Get("/stats", s.handleStats)
		r.With(s.authMiddleware, s.requireAdmin).Delete("/delete_user/{user_id}", s.handleDeleteUser)
		r.With(s.authMiddleware, s.requireAdmin).Delete("/delete_chat/{user_id}", s.handleDeleteChat)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- auth ---

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get(common.AuthorizationHeaderName))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}

		claims, err := auth.ParseToken(token, s.secret)
		if err != nil {
			if errors.Is(err, common.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "token expired")
				return
			}
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || !claims.IsAdmin {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireOwner admits the account named by {user_id} and administrators.
func (s *Server) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := pathUserID(r)
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
		if !canActFor(claimsFromContext(r.Context()), userID) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func canActFor(claims *auth.Claims, userID int64) bool {
	return claims != nil && (claims.IsAdmin || claims.UserID == userID)
}

// --- helpers ---

func pathUserID(r *http.Request) (int64, error) {
	return parseUserID(chi.URLParam(r, "user_id"))
}

func parseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid user id", common.ErrorValidation)
	}
	return id, nil
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("%w: invalid request body", common.ErrorValidation)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

// statusFor maps an error to its HTTP status and the message shown to the
// client. Unclassified errors are reported generically.
func statusFor(err error) (int, string) {
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge, "file too large"
	case errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrRefreshTokenExpired):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusConflict, "already exists"
	case errors.Is(err, common.ErrorUpload):
		return http.StatusBadGateway, "file upload failed"
	case errors.Is(err, common.ErrorUpstream):
		return http.StatusBadGateway, "upstream service unavailable"
	case errors.Is(err, common.ErrorUnready):
		return http.StatusServiceUnavailable, "service not ready"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, msg)
}
