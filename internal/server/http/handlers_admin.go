package http

import (
	"net/http"

	"github.com/dmitrijs2005/difychat/internal/common"
)

type accountItem struct {
	ID        int64  `json:"id"`
	Account   string `json:"account"`
	IsAdmin   bool   `json:"is_admin"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Accounts.List(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	items := make([]accountItem, 0, len(list))
	for _, a := range list {
		items = append(items, accountItem{
			ID:        a.ID,
			Account:   a.Account,
			IsAdmin:   a.IsAdmin,
			CreatedAt: a.CreatedAt.Format(common.TimestampLayout),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "users": items})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Stats.Stats(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": st})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	deleted, err := s.deps.Accounts.Delete(r.Context(), userID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if !deleted {
		s.writeFailure(w, r, common.ErrorNotFound)
		return
	}

	s.deps.Stats.Invalidate(r.Context())
	s.logger.Info(r.Context(), "account deleted", "user_id", userID, "by", claimsFromContext(r.Context()).UserID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	deleted, err := s.deps.Transcripts.DeleteAll(r.Context(), userID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if deleted {
		s.deps.Stats.Invalidate(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}
