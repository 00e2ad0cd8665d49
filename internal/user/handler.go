package user

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// SessionUser extracts the signed-in user from a request context.
type SessionUser func(ctx context.Context) (User, bool)

type Handler struct {
	store   Store
	session SessionUser
	log     *zap.Logger
}

func NewHandler(store Store, session SessionUser, log *zap.Logger) *Handler {
	return &Handler{store: store, session: session, log: log}
}

// Register records the session user's profile so friends can find them by
// email. Signing in again refreshes it.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	me, ok := h.session(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err := me.Validate(); err != nil {
		http.Error(w, "Invalid session profile", http.StatusBadRequest)
		return
	}

	if err := h.store.Save(r.Context(), me); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			http.Error(w, "Email already registered", http.StatusConflict)
			return
		}
		h.log.Error("save user failed", zap.String("user_id", me.ID), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(me)
}

// Me returns the stored profile of the session user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	me, ok := h.session(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	u, err := h.store.Get(r.Context(), me.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		h.log.Error("get user failed", zap.String("user_id", me.ID), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(u)
}
