package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/classroom-insights/internal/dto"
	"github.com/noah-isme/classroom-insights/internal/service"
	appErrors "github.com/noah-isme/classroom-insights/pkg/errors"
	"github.com/noah-isme/classroom-insights/pkg/response"
)

// ChatHandler exposes the report chat endpoints.
type ChatHandler struct {
	chat *service.ChatService
}

// NewChatHandler constructs the handler.
func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// Ask godoc
// @Summary Ask a question about a run's reports
// @Tags Chat
// @Accept json
// @Produce json
// @Param payload body dto.ChatRequest true "Question payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /chat [post]
func (h *ChatHandler) Ask(c *gin.Context) {
	if h.chat == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "chat is disabled"))
		return
	}

	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid chat payload"))
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "default"
	}

	answer, err := h.chat.Ask(c.Request.Context(), req.RunID, sessionID, req.Model, req.Question)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, dto.ChatResponse{
		RunID:     req.RunID,
		SessionID: sessionID,
		Answer:    answer,
	}, nil)
}

// Reset godoc
// @Summary Clear a chat session's memory
// @Tags Chat
// @Produce json
// @Param runId path string true "Run ID"
// @Param sessionId query string false "Session ID"
// @Success 204 {object} response.Envelope
// @Router /chat/{runId} [delete]
func (h *ChatHandler) Reset(c *gin.Context) {
	if h.chat == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "chat is disabled"))
		return
	}
	if err := h.chat.Reset(c.Request.Context(), c.Param("runId"), c.Query("sessionId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
