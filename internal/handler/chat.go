package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/realtime-relay/internal/middleware"
	"github.com/capitalize-ai/realtime-relay/internal/model"
	"github.com/capitalize-ai/realtime-relay/internal/service"
	"github.com/capitalize-ai/realtime-relay/pkg/logger"
)

// maxChatBody bounds the request body read by POST /chat.
const maxChatBody = 1 << 20

// ChatHandler handles the chat endpoint.
type ChatHandler struct {
	service *service.ChatService
	logger  *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(svc *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		service: svc,
		logger:  log,
	}
}

// Chat handles POST /chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.ChatRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateChatRequest(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log := h.logger.WithRequest(middleware.GetCorrelationID(ctx), req.Identity(), req.Thread())

	resp, err := h.service.Chat(ctx, &req)
	if err != nil {
		if errors.Is(err, service.ErrDegraded) {
			log.Warn("chat answered with degraded reply", zap.Error(err))
		} else {
			log.Error("unexpected chat failure", zap.Error(err))
		}
		if resp == nil {
			resp = &model.ChatResponse{Reply: service.DegradedReply}
		}
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	log.Debug("chat answered")
	writeJSON(w, http.StatusOK, resp)
}
