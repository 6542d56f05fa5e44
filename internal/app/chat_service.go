package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"docintell/internal/ai"
	"docintell/internal/config"
	"docintell/internal/metrics"
	"docintell/internal/model"
	"docintell/internal/repository"
)

const (
	defaultConversationTitle = "New conversation"
	titleMaxRunes            = 50
	emptyReplyFallback       = "The model returned an empty response."
	maxMessageRunes          = 10000
)

// HistoryCache holds the newest messages of a conversation. Errors are
// treated as misses.
type HistoryCache interface {
	Recent(ctx context.Context, conversationID string) ([]model.Message, bool, error)
	Store(ctx context.Context, conversationID string, messages []model.Message) error
	Append(ctx context.Context, conversationID string, message model.Message) error
	Delete(ctx context.Context, conversationID string) error
}

type ChatServiceDeps struct {
	Conversations *repository.ConversationRepository
	Messages      *repository.MessageRepository
	Retrieval     *RetrievalService
	Generator     ai.Generator
	HistoryCache  HistoryCache // optional
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

type ChatService struct {
	conversations *repository.ConversationRepository
	messages      *repository.MessageRepository
	retrieval     *RetrievalService
	generator     ai.Generator
	historyCache  HistoryCache
	metrics       *metrics.Metrics
	logger        *slog.Logger

	options    ai.GenerateOptions
	timeout    time.Duration
	maxHistory int
	maxChars   int
	locks      *keyedMutex
}

func NewChatService(deps ChatServiceDeps, cfg config.LLMConfig) *ChatService {
	if cfg.MaxHistoryMessages <= 0 {
		cfg.MaxHistoryMessages = 10
	}
	if cfg.MaxHistoryChars <= 0 {
		cfg.MaxHistoryChars = 8000
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 60
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &ChatService{
		conversations: deps.Conversations,
		messages:      deps.Messages,
		retrieval:     deps.Retrieval,
		generator:     deps.Generator,
		historyCache:  deps.HistoryCache,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		options:       ai.GenerateOptions{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens},
		timeout:       time.Duration(cfg.TimeoutSeconds) * time.Second,
		maxHistory:    cfg.MaxHistoryMessages,
		maxChars:      cfg.MaxHistoryChars,
		locks:         newKeyedMutex(),
	}
}

type ConverseInput struct {
	Message        string
	ConversationID string // empty starts a new conversation
}

type ConverseResult struct {
	ConversationID string
	Message        model.Message
	Sources        []model.MessageSource
}

// Converse runs one chat turn. The user message is stored before generation
// and survives a GenerationFailure; sending the same text again reuses it.
// Turns on one conversation run one at a time.
func (s *ChatService) Converse(ctx context.Context, in ConverseInput) (*ConverseResult, error) {
	text := strings.TrimSpace(in.Message)
	if text == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		return nil, fmt.Errorf("%w: message longer than %d characters", ErrInvalidInput, maxMessageRunes)
	}

	conv, unlock, err := s.openConversation(ctx, strings.TrimSpace(in.ConversationID), text)
	if err != nil {
		s.metrics.ChatTurn("rejected")
		return nil, err
	}
	defer unlock()
	log := s.logger.With("conversation_id", conv.ID)

	userMsg, err := s.recordUserMessage(ctx, conv.ID, text)
	if err != nil {
		s.metrics.ChatTurn("failed")
		return nil, err
	}

	history, err := s.history(ctx, conv.ID, userMsg.ID)
	if err != nil {
		s.metrics.ChatTurn("failed")
		return nil, err
	}

	sources, err := s.retrieval.Retrieve(ctx, text, 0)
	if err != nil {
		s.metrics.ChatTurn("failed")
		log.Warn("retrieval failed", "error", err)
		return nil, err
	}

	prompt := buildPrompt(sources, history, text)
	reply, err := s.generate(ctx, prompt)
	if err != nil {
		s.metrics.ChatTurn("failed")
		log.Warn("generation failed", "error", err)
		return nil, err
	}

	frozen := make([]model.MessageSource, len(sources))
	for i, src := range sources {
		frozen[i] = model.MessageSource{
			ChunkID:    src.ChunkID,
			DocumentID: src.DocumentID,
			Filename:   src.Filename,
			ChunkIndex: src.ChunkIndex,
			Content:    src.Content,
			Similarity: src.Similarity,
		}
	}
	assistant := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           model.RoleAssistant,
		Content:        reply,
		CreatedAt:      time.Now(),
		Sources:        frozen,
	}
	// The answer exists now; finish persisting it even if the caller left.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.messages.Append(persistCtx, assistant); err != nil {
		s.metrics.ChatTurn("failed")
		return nil, err
	}
	s.cacheAppend(persistCtx, conv.ID, *assistant)
	if err := s.conversations.Touch(persistCtx, conv.ID, assistant.CreatedAt); err != nil {
		log.Warn("touch conversation failed", "error", err)
	}

	outcome := "answered"
	if len(sources) == 0 {
		outcome = "ungrounded"
	}
	s.metrics.ChatTurn(outcome)
	log.Info("chat turn completed", "sources", len(sources), "history", len(history), "reply_chars", len(reply))

	return &ConverseResult{ConversationID: conv.ID, Message: *assistant, Sources: assistant.Sources}, nil
}

// openConversation locks and loads the conversation, creating it when id is
// empty.
func (s *ChatService) openConversation(ctx context.Context, id, firstMessage string) (*model.Conversation, func(), error) {
	if id == "" {
		conv := &model.Conversation{ID: uuid.NewString(), Title: conversationTitle(firstMessage)}
		unlock := s.locks.Lock(conv.ID)
		if err := s.conversations.Create(ctx, conv); err != nil {
			unlock()
			return nil, nil, err
		}
		s.logger.Info("conversation created", "conversation_id", conv.ID)
		return conv, unlock, nil
	}

	unlock := s.locks.Lock(id)
	conv, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	if conv == nil {
		unlock()
		return nil, nil, fmt.Errorf("%w: conversation %s", ErrNotFound, id)
	}
	return conv, unlock, nil
}

// recordUserMessage appends the user message unless the conversation already
// ends with the same unanswered text, which is the retry of a failed turn.
func (s *ChatService) recordUserMessage(ctx context.Context, conversationID, text string) (*model.Message, error) {
	last, err := s.messages.Last(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if last != nil && last.Role == model.RoleUser && last.Content == text {
		s.logger.Debug("reusing unanswered user message", "conversation_id", conversationID, "message_id", last.ID)
		return last, nil
	}
	msg := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           model.RoleUser,
		Content:        text,
		CreatedAt:      time.Now(),
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, err
	}
	s.cacheAppend(ctx, conversationID, *msg)
	if err := s.conversations.Touch(ctx, conversationID, msg.CreatedAt); err != nil {
		s.logger.Warn("touch conversation failed", "conversation_id", conversationID, "error", err)
	}
	return msg, nil
}

// history returns the turns before current, newest last, bounded by message
// count and then by total characters, dropping the oldest first.
func (s *ChatService) history(ctx context.Context, conversationID, currentID string) ([]model.Message, error) {
	window, err := s.recent(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	prior := make([]model.Message, 0, len(window))
	for _, m := range window {
		if m.ID != currentID {
			prior = append(prior, m)
		}
	}
	return trimHistory(prior, s.maxHistory, s.maxChars), nil
}

func (s *ChatService) recent(ctx context.Context, conversationID string) ([]model.Message, error) {
	if s.historyCache != nil {
		cached, ok, err := s.historyCache.Recent(ctx, conversationID)
		if err != nil {
			s.logger.Warn("history cache read failed", "conversation_id", conversationID, "error", err)
		} else if ok {
			return cached, nil
		}
	}
	// One extra for the current user message, which is excluded later.
	messages, err := s.messages.ListRecent(ctx, conversationID, s.maxHistory+1)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if err := s.historyCache.Store(ctx, conversationID, messages); err != nil {
			s.logger.Warn("history cache write failed", "conversation_id", conversationID, "error", err)
		}
	}
	return messages, nil
}

func (s *ChatService) cacheAppend(ctx context.Context, conversationID string, m model.Message) {
	if s.historyCache == nil {
		return
	}
	if err := s.historyCache.Append(ctx, conversationID, m); err != nil {
		s.logger.Warn("history cache append failed", "conversation_id", conversationID, "error", err)
		_ = s.historyCache.Delete(ctx, conversationID)
	}
}

// generate calls the model under the configured timeout. Any failure,
// including the caller going away, is a GenerationFailure.
func (s *ChatService) generate(ctx context.Context, prompt []ai.ChatMessage) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	reply, err := s.generator.Generate(genCtx, prompt, s.options)
	s.metrics.Generation(time.Since(started))
	if err == nil {
		err = genCtx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: timed out after %s", ErrGenerationFailure, s.timeout)
		}
		return "", fmt.Errorf("%w: %w", ErrGenerationFailure, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = emptyReplyFallback
	}
	return reply, nil
}

func (s *ChatService) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	return s.conversations.List(ctx)
}

// GetConversation returns the conversation with its messages in order.
func (s *ChatService) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	conv, err := s.conversations.GetWithMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, id)
	}
	return conv, nil
}

func (s *ChatService) DeleteConversation(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	deleted, err := s.conversations.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: conversation %s", ErrNotFound, id)
	}
	if s.historyCache != nil {
		if err := s.historyCache.Delete(ctx, id); err != nil {
			s.logger.Warn("history cache delete failed", "conversation_id", id, "error", err)
		}
	}
	return nil
}

func conversationTitle(first string) string {
	first = strings.Join(strings.Fields(first), " ")
	if first == "" {
		return defaultConversationTitle
	}
	runes := []rune(first)
	if len(runes) > titleMaxRunes {
		return string(runes[:titleMaxRunes]) + "..."
	}
	return first
}

func trimHistory(messages []model.Message, maxMessages, maxChars int) []model.Message {
	if len(messages) > maxMessages {
		messages = messages[len(messages)-maxMessages:]
	}
	total := 0
	for _, m := range messages {
		total += utf8.RuneCountInString(m.Content)
	}
	for len(messages) > 0 && total > maxChars {
		total -= utf8.RuneCountInString(messages[0].Content)
		messages = messages[1:]
	}
	return messages
}
