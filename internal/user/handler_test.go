package user

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

type ctxKey struct{}

func sessionFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxKey{}).(User)
	return u, ok
}

func request(method string, u *User) *http.Request {
	r := httptest.NewRequest(method, "/api/users/me", nil)
	if u != nil {
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, *u))
	}
	return r
}

func TestRegisterStoresSessionProfile(t *testing.T) {
	_, d := newTestDirectory(t)
	h := NewHandler(d, sessionFromContext, zap.NewNop())
	me := User{ID: "u1", Name: "Ada", Email: "ada@example.com"}

	w := httptest.NewRecorder()
	h.Me(w, request(http.MethodGet, &me))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before sign in, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.Register(w, request(http.MethodPost, &me))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}

	w = httptest.NewRecorder()
	h.Me(w, request(http.MethodGet, &me))
	var got User
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != me {
		t.Fatalf("expected %+v, got %+v", me, got)
	}
	if id, err := d.LookupEmail(context.Background(), "ADA@example.com"); err != nil || id != "u1" {
		t.Fatalf("email index: %q %v", id, err)
	}
}

func TestRegisterRejects(t *testing.T) {
	_, d := newTestDirectory(t)
	h := NewHandler(d, sessionFromContext, zap.NewNop())

	w := httptest.NewRecorder()
	h.Register(w, request(http.MethodPost, nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	for _, id := range []string{"a--b", "user:1", "x*", "-lead", "trail-"} {
		w = httptest.NewRecorder()
		h.Register(w, request(http.MethodPost, &User{ID: id}))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%q: expected 400, got %d", id, w.Code)
		}
	}
}

func TestRegisterConflictOnTakenEmail(t *testing.T) {
	_, d := newTestDirectory(t)
	h := NewHandler(d, sessionFromContext, zap.NewNop())

	w := httptest.NewRecorder()
	h.Register(w, request(http.MethodPost, &User{ID: "u1", Name: "Ada", Email: "ada@example.com"}))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}

	w = httptest.NewRecorder()
	h.Register(w, request(http.MethodPost, &User{ID: "u2", Name: "Eve", Email: "ada@example.com"}))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}
