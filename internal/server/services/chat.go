package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/difychat/internal/common"
	"github.com/dmitrijs2005/difychat/internal/filex"
	"github.com/dmitrijs2005/difychat/internal/logging"
	"github.com/dmitrijs2005/difychat/internal/server/config"
	"github.com/dmitrijs2005/difychat/internal/server/dify"
	"github.com/dmitrijs2005/difychat/internal/server/models"
)

// ChatClient is the upstream chat API used by ChatGateway.
type ChatClient interface {
	UploadFile(ctx context.Context, user, path string) (*dify.UploadedFile, error)
	Chat(ctx context.Context, r dify.ChatRequest) (*dify.ChatResponse, error)
}

// TranscriptWriter persists completed exchanges.
type TranscriptWriter interface {
	Append(ctx context.Context, userID int64, query *string, response string, filePath *string) (*models.TranscriptEntry, error)
}

// Archiver keeps a copy of uploaded attachments.
type Archiver interface {
	Enabled() bool
	Store(ctx context.Context, userID int64, path, stored string) error
}

// Reply is the answer to a chat or file turn. ConversationID is the
// continuation token to send with the next turn.
type Reply struct {
	Answer         string
	ConversationID string
}

// ChatGateway orchestrates a chat turn: optional upload, chat call and
// transcript write.
type ChatGateway struct {
	client          ChatClient
	transcripts     TranscriptWriter
	archive         Archiver
	uploadDir       string
	maxUploadSize   int64
	filePrompt      string
	failureAsAnswer bool
	logger          logging.Logger
}

// NewChatGateway constructs a ChatGateway. archive may be nil.
func NewChatGateway(client ChatClient, transcripts TranscriptWriter, archive Archiver, cfg *config.Config, l logging.Logger) *ChatGateway {
	return &ChatGateway{
		client:          client,
		transcripts:     transcripts,
		archive:         archive,
		uploadDir:       cfg.UploadDir,
		maxUploadSize:   cfg.MaxUploadSize,
		filePrompt:      cfg.FilePrompt,
		failureAsAnswer: cfg.FailureAsAnswer,
		logger:          l.With("module", "chat"),
	}
}

func (g *ChatGateway) ready() error {
	if g == nil || g.client == nil || g.transcripts == nil {
		return common.ErrorUnready
	}
	return nil
}

// SendMessage forwards message to the upstream chat and records the exchange.
// An empty conversationID starts a new conversation.
func (g *ChatGateway) SendMessage(ctx context.Context, userID int64, message, conversationID string) (*Reply, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}
	if userID <= 0 {
		return nil, fmt.Errorf("%w: invalid user id", common.ErrorValidation)
	}
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: message is empty", common.ErrorValidation)
	}

	reply, err := g.chat(ctx, dify.ChatRequest{
		Query:          message,
		User:           strconv.FormatInt(userID, 10),
		ConversationID: conversationID,
	})
	if err != nil {
		return nil, err
	}

	g.record(ctx, userID, &message, reply.Answer, nil)
	return reply, nil
}

// SendFile stores content transiently, uploads it upstream and asks for an
// analysis. The local copy is removed before returning.
func (g *ChatGateway) SendFile(ctx context.Context, userID int64, fileName string, content io.Reader) (*Reply, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}
	if userID <= 0 {
		return nil, fmt.Errorf("%w: invalid user id", common.ErrorValidation)
	}

	path, stored, err := filex.SaveUpload(g.uploadDir, fileName, content, g.maxUploadSize)
	if err != nil {
		if errors.Is(err, common.ErrorValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			g.logger.Warn(ctx, "failed to remove upload", "path", path, "error", err)
		}
	}()

	user := strconv.FormatInt(userID, 10)

	uploaded, err := g.client.UploadFile(ctx, user, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", common.ErrorUpload, err)
	}

	if g.archive != nil && g.archive.Enabled() {
		if err := g.archive.Store(ctx, userID, path, stored); err != nil {
			g.logger.Warn(ctx, "failed to archive attachment", "file", stored, "error", err)
		}
	}

	reply, err := g.chat(ctx, dify.ChatRequest{
		Query: g.filePrompt,
		User:  user,
		Files: []dify.UploadedFile{*uploaded},
	})
	if err != nil {
		return nil, err
	}

	g.record(ctx, userID, nil, reply.Answer, &stored)
	return reply, nil
}

func (g *ChatGateway) chat(ctx context.Context, r dify.ChatRequest) (*Reply, error) {
	res, err := g.client.Chat(ctx, r)
	if err != nil {
		if g.failureAsAnswer && ctx.Err() == nil && errors.Is(err, common.ErrorUpstream) {
			return &Reply{Answer: dify.FailureText(err)}, nil
		}
		return nil, err
	}
	return &Reply{Answer: FormatAnswer(res.Answer), ConversationID: res.ConversationID}, nil
}

func (g *ChatGateway) record(ctx context.Context, userID int64, query *string, answer string, filePath *string) {
	if _, err := g.transcripts.Append(ctx, userID, query, answer, filePath); err != nil {
		g.logger.Error(ctx, "failed to save transcript", "user_id", userID, "error", err)
	}
}

var sentenceBreaks = strings.NewReplacer("。", "。\n", "！", "！\n", "？", "？\n")

// FormatAnswer breaks lines after full-width sentence punctuation and
// collapses the doubled newlines this produces.
func FormatAnswer(s string) string {
	s = sentenceBreaks.Replace(s)
	s = strings.ReplaceAll(s, "\n\n", "\n")
	return strings.ReplaceAll(s, "\n\n", "\n")
}
