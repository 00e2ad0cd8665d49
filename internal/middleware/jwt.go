package myMiddleware

import (
	"context"
	"errors"
	"go-dm/internal/user"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const SessionKey contextKey = "session_user"

// SessionClaims is what the identity provider puts in a session token.
type SessionClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"picture"`
	jwt.RegisteredClaims
}

// SessionMiddleware turns a bearer token into the session user on the request context.
type SessionMiddleware struct {
	secret []byte
	log    *zap.Logger
}

func NewSessionMiddleware(secret string, log *zap.Logger) *SessionMiddleware {
	return &SessionMiddleware{secret: []byte(secret), log: log}
}

// Require rejects requests without a valid session.
func (sm *SessionMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := sm.resolve(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// Resolve attaches the session user when there is one and lets the request
// through either way. Handlers that must hide resource existence use it.
func (sm *SessionMiddleware) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := sm.resolve(r)
		if err == nil {
			r = r.WithContext(WithUser(r.Context(), u))
		}
		next.ServeHTTP(w, r)
	})
}

func (sm *SessionMiddleware) resolve(r *http.Request) (user.User, error) {
	tokenString := ""

	// Check Authorization Header
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			tokenString = parts[1]
		}
	}

	// Fallback: browsers cannot set headers on a websocket handshake
	if tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}

	if tokenString == "" {
		return user.User{}, errors.New("missing session token")
	}

	u, err := sm.Validate(tokenString)
	if err != nil {
		sm.log.Debug("session rejected", zap.Error(err))
		return user.User{}, err
	}
	return u, nil
}

// Validate parses a session token and returns the user it names.
func (sm *SessionMiddleware) Validate(tokenString string) (user.User, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return sm.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return user.User{}, err
	}
	if !token.Valid || claims.Subject == "" {
		return user.User{}, errors.New("invalid session token")
	}

	return user.User{
		ID:    claims.Subject,
		Name:  claims.Name,
		Email: claims.Email,
		Image: claims.Image,
	}, nil
}

// SignSession mints a session token for u. The identity provider does this in
// production; tools and tests use it to stand in for it.
func SignSession(secret string, u user.User, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		Name:  u.Name,
		Email: u.Email,
		Image: u.Image,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    "go-dm",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	})
	return token.SignedString([]byte(secret))
}

func WithUser(ctx context.Context, u user.User) context.Context {
	return context.WithValue(ctx, SessionKey, u)
}

// UserFromContext returns the session user placed by the middleware.
func UserFromContext(ctx context.Context) (user.User, bool) {
	u, ok := ctx.Value(SessionKey).(user.User)
	return u, ok
}
