package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/difychat/internal/common"
	"github.com/dmitrijs2005/difychat/internal/filex"
	"github.com/dmitrijs2005/difychat/internal/server/models"
	"github.com/dmitrijs2005/difychat/internal/server/services"
	"github.com/go-chi/chi/v5"
)

// multipartMemory is the part of a multipart form kept in memory; the rest
// spills to temporary files.
const multipartMemory = 8 << 20

// flexID accepts a JSON number or a numeric string.
type flexID int64

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", b)
	}
	*f = flexID(id)
	return nil
}

type chatRequest struct {
	UserID         flexID `json:"user_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type replyResponse struct {
	Success        bool   `json:"success"`
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
}

type historyItem struct {
	ID         int64   `json:"id"`
	CreateTime string  `json:"create_time"`
	Query      *string `json:"query"`
	Response   string  `json:"response"`
	FilePath   *string `json:"file_path"`
}

type conversationItem struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Preview  string `json:"preview"`
	Count    int    `json:"count"`
	LastTime string `json:"last_time"`
	Date     string `json:"date"`
}

type message struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// authorizeFor rejects requests whose token may not act for userID.
func (s *Server) authorizeFor(w http.ResponseWriter, r *http.Request, userID int64) bool {
	if userID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return false
	}
	if !canActFor(claimsFromContext(r.Context()), userID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}

// writeReply answers a completed turn. The turn added a transcript entry, so
// the cached stats are dropped.
func (s *Server) writeReply(w http.ResponseWriter, r *http.Request, reply *services.Reply) {
	s.deps.Stats.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, replyResponse{Success: true, Response: reply.Answer, ConversationID: reply.ConversationID})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if !s.authorizeFor(w, r, int64(req.UserID)) {
		return
	}

	reply, err := s.deps.Chat.SendMessage(r.Context(), int64(req.UserID), req.Message, req.ConversationID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeReply(w, r, reply)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			s.writeFailure(w, r, err)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	userID, err := parseUserID(r.FormValue("user_id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if !s.authorizeFor(w, r, userID) {
		return
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file")
		return
	}
	defer file.Close()

	if hdr.Filename == "" {
		writeError(w, http.StatusBadRequest, "no file selected")
		return
	}

	reply, err := s.deps.Chat.SendFile(r.Context(), userID, hdr.Filename, file)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeReply(w, r, reply)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := pathUserID(r)

	entries, err := s.deps.Transcripts.History(r.Context(), userID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, historyItem{
			ID:         e.ID,
			CreateTime: e.CreateTime.Format(common.TimestampLayout),
			Query:      e.Query,
			Response:   e.Response,
			FilePath:   e.FilePath,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "history": items})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	userID, _ := pathUserID(r)

	groups, err := s.deps.Transcripts.GroupedByDate(r.Context(), userID, services.ConversationListLimit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	items := make([]conversationItem, 0, len(groups))
	for _, g := range groups {
		d := g.Date.Format(common.DateLayout)
		items = append(items, conversationItem{
			ID:       "date_" + d,
			Title:    "Conversation - " + d,
			Preview:  g.Preview,
			Count:    g.Count,
			LastTime: g.LastTime.Format(common.TimestampLayout),
			Date:     d,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "conversations": items})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	userID, _ := pathUserID(r)
	date := chi.URLParam(r, "date")

	entries, err := s.deps.Transcripts.EntriesOnDate(r.Context(), userID, date)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": toMessages(entries), "date": date})
}

func toMessages(entries []*models.TranscriptEntry) []message {
	out := make([]message, 0, 2*len(entries))
	for _, e := range entries {
		ts := e.CreateTime.Format(common.TimestampLayout)
		if e.Query != nil && *e.Query != "" {
			out = append(out, message{Role: "user", Text: *e.Query, Timestamp: ts})
		}
		out = append(out, message{Role: "system", Text: e.Response, Timestamp: ts})
	}
	return out
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	userID, _ := pathUserID(r)

	exp, err := s.deps.Transcripts.Export(r.Context(), userID, chi.URLParam(r, "date"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "content": exp.Content, "filename": exp.Filename})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID, _ := pathUserID(r)

	deleted, err := s.deps.Transcripts.DeleteOnDate(r.Context(), userID, chi.URLParam(r, "date"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if deleted {
		s.deps.Stats.Invalidate(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Conversation deleted", "deleted": deleted})
}

func (s *Server) handleAttachment(w http.ResponseWriter, r *http.Request) {
	if s.deps.Attachments == nil || !s.deps.Attachments.Enabled() {
		s.writeFailure(w, r, common.ErrorUnready)
		return
	}

	userID, _ := pathUserID(r)
	file := chi.URLParam(r, "file")
	if filex.SafeBaseName(file) != file {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}

	owns, err := s.deps.Transcripts.OwnsFile(r.Context(), userID, file)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if !owns {
		s.writeFailure(w, r, common.ErrorNotFound)
		return
	}

	url, err := s.deps.Attachments.PresignedURL(r.Context(), userID, file)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "url": url})
}

var _ json.Unmarshaler = (*flexID)(nil)
