package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docintell/internal/app"
	"docintell/internal/model"
	"docintell/internal/transport/http/response"
)

type ChatService interface {
	Converse(ctx context.Context, in app.ConverseInput) (*app.ConverseResult, error)
	ListConversations(ctx context.Context) ([]model.Conversation, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
}

type ChatHandler struct {
	chat ChatService
}

// ChatRequest starts a new conversation when ConversationID is empty or null.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type ChatResponse struct {
	ConversationID string      `json:"conversation_id"`
	Message        string      `json:"message"`
	Sources        []SourceDTO `json:"sources"`
}

type SourceDTO struct {
	Content    string         `json:"content"`
	Metadata   SourceMetadata `json:"metadata"`
	Similarity float64        `json:"similarity"`
}

type SourceMetadata struct {
	DocumentID string `json:"document_id"`
	ChunkID    string `json:"chunk_id"`
	Filename   string `json:"filename"`
	ChunkIndex int    `json:"chunk_index"`
}

type ConversationDTO struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Messages  []MessageDTO `json:"messages"`
}

type MessageDTO struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
	Metadata  MessageMetadata `json:"metadata"`
}

type MessageMetadata struct {
	Sources []SourceDTO `json:"sources,omitempty"`
}

func NewChatHandler(chat ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chat.Converse(c.Request.Context(), app.ConverseInput{
		Message:        req.Message,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		response.FromError(c, err, "chat processing failed")
		return
	}

	response.OK(c, ChatResponse{
		ConversationID: result.ConversationID,
		Message:        result.Message.Content,
		Sources:        toSourceDTOs(result.Sources),
	})
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	list, err := h.chat.ListConversations(c.Request.Context())
	if err != nil {
		response.FromError(c, err, "list conversations failed")
		return
	}
	out := make([]ConversationDTO, 0, len(list))
	for i := range list {
		out = append(out, toConversationDTO(&list[i]))
	}
	response.OK(c, out)
}

func (h *ChatHandler) GetConversation(c *gin.Context) {
	conv, err := h.chat.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err, "get conversation failed")
		return
	}
	response.OK(c, toConversationDTO(conv))
}

func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	if err := h.chat.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		response.FromError(c, err, "delete conversation failed")
		return
	}
	response.NoContent(c)
}

func toConversationDTO(conv *model.Conversation) ConversationDTO {
	messages := make([]MessageDTO, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		messages = append(messages, MessageDTO{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
			Metadata:  MessageMetadata{Sources: toSourceDTOs(m.Sources)},
		})
	}
	return ConversationDTO{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
		Messages:  messages,
	}
}

func toSourceDTOs(sources []model.MessageSource) []SourceDTO {
	out := make([]SourceDTO, 0, len(sources))
	for _, s := range sources {
		out = append(out, SourceDTO{
			Content: s.Content,
			Metadata: SourceMetadata{
				DocumentID: s.DocumentID,
				ChunkID:    s.ChunkID,
				Filename:   s.Filename,
				ChunkIndex: s.ChunkIndex,
			},
			Similarity: s.Similarity,
		})
	}
	return out
}
