package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"rick-api/models"
	"rick-api/workflows"
)

const defaultMode = "balanced"

// TurnRunner executes one reply turn, inline or as a durable workflow
type TurnRunner interface {
	RunTurn(ctx context.Context, input workflows.TurnInput) (models.Reply, error)
}

// ConversationReader serves the read-only endpoints
type ConversationReader interface {
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	GetHistory(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error)
}

// ChatHandler handles chat-related HTTP requests
type ChatHandler struct {
	conversations ConversationReader
	turns         TurnRunner
	logger        *zap.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(conversations ConversationReader, turns TurnRunner, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		conversations: conversations,
		turns:         turns,
		logger:        logger,
	}
}

// Health reports liveness
func (h *ChatHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Reply runs one turn: clarifying questions or a drafted and refined answer
func (h *ChatHandler) Reply(c *gin.Context) {
	var req models.ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithDetail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	input := workflows.TurnInput{
		Message: *req.Message,
		Mode:    req.Mode,
	}
	if input.Mode == "" {
		input.Mode = defaultMode
	}
	if id := strings.TrimSpace(req.ConversationID); id != "" {
		parsed, err := uuid.Parse(id)
		if err != nil {
			abortWithDetail(c, http.StatusBadRequest, "Invalid conversation ID")
			return
		}
		input.ConversationID = parsed
	}

	reply, err := h.turns.RunTurn(c.Request.Context(), input)
	if err != nil {
		h.logger.Error("reply turn failed",
			zap.Error(err),
			zap.String("conversation_id", req.ConversationID))
		status, detail := turnErrorStatus(err)
		abortWithDetail(c, status, detail)
		return
	}

	c.JSON(http.StatusOK, reply)
}

// ListConversations lists all conversations, newest first
func (h *ChatHandler) ListConversations(c *gin.Context) {
	conversations, err := h.conversations.ListConversations(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err))
		abortWithDetail(c, http.StatusInternalServerError, "store error")
		return
	}

	c.JSON(http.StatusOK, models.ConversationList{Items: conversations})
}

// GetHistory retrieves all messages of a conversation, oldest first
func (h *ChatHandler) GetHistory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("conversation_id"))
	if err != nil {
		abortWithDetail(c, http.StatusBadRequest, "Invalid conversation ID")
		return
	}

	messages, err := h.conversations.GetHistory(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to get history", zap.Error(err), zap.String("conversation_id", id.String()))
		abortWithDetail(c, http.StatusInternalServerError, "store error")
		return
	}

	c.JSON(http.StatusOK, models.History{Messages: messages})
}

func turnErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, workflows.ErrCompletion):
		return http.StatusBadGateway, "upstream model error"
	case errors.Is(err, workflows.ErrStore):
		return http.StatusInternalServerError, "store error"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func abortWithDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}
