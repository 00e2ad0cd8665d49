package friend

import (
	"encoding/json"
	"errors"
	myMiddleware "go-dm/internal/middleware"
	"go-dm/internal/user"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type AddRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type IDRequest struct {
	ID string `json:"id" validate:"required"`
}

type Handler struct {
	graph    *Graph
	users    user.Directory
	validate *validator.Validate
	log      *zap.Logger
}

func NewHandler(graph *Graph, users user.Directory, log *zap.Logger) *Handler {
	return &Handler{
		graph:    graph,
		users:    users,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

// decode reads and validates a JSON body, writing the error response itself.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid request payload", http.StatusUnprocessableEntity)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		http.Error(w, "Invalid request payload", http.StatusUnprocessableEntity)
		return false
	}
	return true
}

func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	me, ok := myMiddleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req AddRequest
	if !h.decode(w, r, &req) {
		return
	}

	idToAdd, err := h.users.LookupEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			http.Error(w, "This person does not exist.", http.StatusBadRequest)
			return
		}
		h.fail(w, "lookup email", err)
		return
	}

	if err := h.graph.RequestFriend(r.Context(), me, idToAdd); err != nil {
		h.writeGraphError(w, "request friend", err)
		return
	}
	w.Write([]byte("OK"))
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	me, ok := myMiddleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req IDRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.graph.AcceptFriend(r.Context(), me, req.ID); err != nil {
		h.writeGraphError(w, "accept friend", err)
		return
	}
	w.Write([]byte("OK"))
}

func (h *Handler) Deny(w http.ResponseWriter, r *http.Request) {
	me, ok := myMiddleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req IDRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.graph.DenyFriend(r.Context(), me.ID, req.ID); err != nil {
		h.writeGraphError(w, "deny friend", err)
		return
	}
	w.Write([]byte("OK"))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	me, ok := myMiddleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	friends, err := h.graph.Friends(r.Context(), me.ID)
	if err != nil {
		h.fail(w, "list friends", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(friends)
}

func (h *Handler) Requests(w http.ResponseWriter, r *http.Request) {
	me, ok := myMiddleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	requests, err := h.graph.IncomingRequests(r.Context(), me.ID)
	if err != nil {
		h.fail(w, "list requests", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(requests)
}

func (h *Handler) writeGraphError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrSelfRequest):
		http.Error(w, "You cannot add yourself as a friend", http.StatusBadRequest)
	case errors.Is(err, ErrDuplicateRequest):
		http.Error(w, "Already added this user", http.StatusBadRequest)
	case errors.Is(err, ErrAlreadyFriends):
		http.Error(w, "Already friends with this user", http.StatusBadRequest)
	case errors.Is(err, ErrNoSuchRequest):
		http.Error(w, "No pending request from this user", http.StatusBadRequest)
	default:
		h.fail(w, op, err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.log.Error(op+" failed", zap.Error(err))
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
