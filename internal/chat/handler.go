package chat

import (
	"encoding/json"
	"errors"
	myMiddleware "go-dm/internal/middleware"
	"go-dm/internal/user"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	service *Service
	log     *zap.Logger
}

func NewHandler(service *Service, log *zap.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// SendRequest is the body the frontend posts to send a message.
type SendRequest struct {
	ChatID string `json:"chatId"`
	Text   string `json:"text"`
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	sender, ok := myMiddleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusUnprocessableEntity)
		return
	}

	msg, err := h.service.Send(r.Context(), sender, req.ChatID, req.Text)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.Is(err, ErrInvalidConversation), errors.Is(err, ErrNotParticipant), errors.Is(err, ErrNotFriends):
			http.NotFound(w, r)
		case errors.As(err, &verr):
			http.Error(w, verr.Reason, http.StatusBadRequest)
		default:
			h.log.Error("send message failed", zap.String("chat_id", req.ChatID), zap.Error(err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}

// GetChatHistory answers 404 for every failure a stranger could use to learn
// whether a conversation exists, and for history that does not validate.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	viewer, ok := myMiddleware.UserFromContext(r.Context())
	if !ok {
		http.NotFound(w, r)
		return
	}
	chatID := chi.URLParam(r, "chatId")

	conv, err := h.service.Conversation(r.Context(), viewer.ID, chatID)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.Is(err, ErrInvalidConversation), errors.Is(err, ErrNotParticipant), errors.Is(err, user.ErrNotFound):
		case errors.As(err, &verr):
			h.log.Warn("conversation failed validation", zap.String("chat_id", chatID), zap.Error(err))
		default:
			h.log.Error("load conversation failed", zap.String("chat_id", chatID), zap.Error(err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conv)
}
