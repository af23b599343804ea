package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern/chatclient/internal/middleware"
	"github.com/zhouzirui/z-tavern/chatclient/internal/model/chat"
	chatService "github.com/zhouzirui/z-tavern/chatclient/internal/service/chat"
	"github.com/zhouzirui/z-tavern/chatclient/pkg/utils"
)

// Handler 会话存储的HTTP处理器
type Handler struct {
	chatSvc   *chatService.Service
	responder chatService.Responder
}

// New 创建处理器
func New(chatSvc *chatService.Service, responder chatService.Responder) *Handler {
	return &Handler{
		chatSvc:   chatSvc,
		responder: responder,
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/conversations", h.handleListConversations)
	r.Post("/conversations", h.handleCreateConversation)
	r.Delete("/conversations/{id}", h.handleDeleteConversation)
	r.Patch("/conversations/{id}", h.handleRenameConversation)
	r.Get("/conversations/{id}/messages", h.handleGetMessages)
	r.Post("/message", h.handleSendMessage)
}

func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	utils.RespondJSON(w, http.StatusOK, h.chatSvc.ListConversations(r.Context(), userID))
}

func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conversation, err := h.chatSvc.CreateConversation(r.Context(), middleware.UserID(r.Context()), payload.Title)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, conversation)
}

func (h *Handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.chatSvc.DeleteConversation(r.Context(), middleware.UserID(r.Context()), id); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.chatSvc.RenameConversation(r.Context(), middleware.UserID(r.Context()), id, payload.Title); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	messages, err := h.chatSvc.LoadTranscript(r.Context(), middleware.UserID(r.Context()), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

// handleSendMessage 保存用户消息并返回用户消息与助手回复
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ConversationID string `json:"conversation_id"`
		Message        string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.ConversationID == "" {
		utils.RespondError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	exchange, err := h.chatSvc.Exchange(r.Context(), middleware.UserID(r.Context()), payload.ConversationID, payload.Message, h.responder)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, sendResponse{
		UserMessage:      exchange.User,
		AssistantMessage: exchange.Assistant,
	})
}

type sendResponse struct {
	UserMessage      chat.Message `json:"user_message"`
	AssistantMessage chat.Message `json:"assistant_message"`
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrConversationNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrTitleRequired), errors.Is(err, chatService.ErrMessageRequired):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Str("component", "chat").Msg("request failed")
		utils.RespondError(w, http.StatusBadGateway, "the assistant could not answer, please try again")
	}
}
