// Package dify is a client for the hosted Dify chat API. Every call goes
// through netx.Caller and therefore shares its retry policy.
package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/difychat/internal/common"
	"github.com/dmitrijs2005/difychat/internal/logging"
	"github.com/dmitrijs2005/difychat/internal/netx"
)

const (
	CallChat   = "chat"
	CallUpload = "upload"

	chatPath   = "/chat-messages"
	uploadPath = "/files/upload"

	// NoAnswer replaces an empty upstream answer.
	NoAnswer = "No answer."

	failureBodyLimit = 200
)

var mimeTypes = map[string]string{
	".txt":  "text/plain",
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// MimeType resolves the content type sent for fileName.
func MimeType(fileName string) string {
	if m, ok := mimeTypes[strings.ToLower(filepath.Ext(fileName))]; ok {
		return m
	}
	return "application/octet-stream"
}

// Category returns the Dify attachment type for a content type.
func Category(mimeType string) string {
	if strings.HasPrefix(mimeType, "image/") {
		return "image"
	}
	return "document"
}

// UploadedFile identifies a file accepted by the upload endpoint.
type UploadedFile struct {
	ID       string
	Category string
}

// ChatRequest is a single blocking chat turn.
type ChatRequest struct {
	Query          string
	User           string
	ConversationID string
	Files          []UploadedFile
}

// ChatResponse is the answer to a chat turn.
type ChatResponse struct {
	Answer         string
	ConversationID string
}

type chatFile struct {
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method"`
	UploadFileID   string `json:"upload_file_id"`
}

type chatPayload struct {
	Query          string         `json:"query"`
	Inputs         map[string]any `json:"inputs"`
	ResponseMode   string         `json:"response_mode"`
	User           string         `json:"user"`
	ConversationID string         `json:"conversation_id"`
	Files          []chatFile     `json:"files,omitempty"`
}

type chatResult struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
}

type uploadResult struct {
	ID string `json:"id"`
}

// Client talks to the Dify REST API.
type Client struct {
	baseURL string
	apiKey  string
	caller  *netx.Caller
	logger  logging.Logger
}

// NewClient returns a Client for baseURL authenticated with apiKey.
func NewClient(baseURL, apiKey string, caller *netx.Caller, l logging.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		caller:  caller,
		logger:  l.With("module", "dify"),
	}
}

// UploadFile sends the file at path as multipart form data. The file is
// re-read for every attempt.
func (c *Client) UploadFile(ctx context.Context, user, path string) (*UploadedFile, error) {
	name := filepath.Base(path)
	mimeType := MimeType(name)

	newRequest := func(ctx context.Context) (*http.Request, error) {
		body, contentType, err := multipartBody(path, name, mimeType, user)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		c.authorize(req)
		return req, nil
	}

	resp, err := c.caller.Do(ctx, CallUpload, newRequest, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var res uploadResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("%w: decode upload response: %v", common.ErrorUpstream, err)
	}
	if res.ID == "" {
		return nil, fmt.Errorf("%w: upload response without id", common.ErrorUpstream)
	}

	c.logger.Debug(ctx, "file uploaded", "file_id", res.ID, "category", Category(mimeType))
	return &UploadedFile{ID: res.ID, Category: Category(mimeType)}, nil
}

// Chat sends one blocking chat turn. An empty answer is replaced with
// NoAnswer.
func (c *Client) Chat(ctx context.Context, r ChatRequest) (*ChatResponse, error) {
	payload := chatPayload{
		Query:          r.Query,
		Inputs:         map[string]any{},
		ResponseMode:   "blocking",
		User:           r.User,
		ConversationID: r.ConversationID,
	}
	for _, f := range r.Files {
		payload.Files = append(payload.Files, chatFile{
			Type:           f.Category,
			TransferMethod: "local_file",
			UploadFileID:   f.ID,
		})
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat payload: %w", err)
	}

	newRequest := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req)
		return req, nil
	}

	resp, err := c.caller.Do(ctx, CallChat, newRequest, http.StatusOK)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var res chatResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("%w: decode chat response: %v", common.ErrorUpstream, err)
	}
	if res.Answer == "" {
		res.Answer = NoAnswer
	}

	return &ChatResponse{Answer: res.Answer, ConversationID: res.ConversationID}, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set(common.AuthorizationHeaderName, "Bearer "+c.apiKey)
}

func multipartBody(path, name, mimeType, user string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("user", user); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("purpose", "chat"); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return &buf, w.FormDataContentType(), nil
}

// FailureText renders err as the caller-visible failure string used when
// failures are reported as answers.
func FailureText(err error) string {
	var ce *netx.CallError
	if !errors.As(err, &ce) {
		return fmt.Sprintf("request error: %v", err)
	}
	if ce.StatusCode != 0 {
		if ce.Call == CallUpload {
			return fmt.Sprintf("%s failed [%d]", ce.Call, ce.StatusCode)
		}
		return fmt.Sprintf("%s failed [%d]: %s", ce.Call, ce.StatusCode, truncate(ce.Body, failureBodyLimit))
	}
	return fmt.Sprintf("%s error: %v", ce.Call, ce.Err)
}

func truncate(s string, n int) string {
	s, _ = common.TruncateRunes(s, n)
	return s
}
