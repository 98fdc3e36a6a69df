package api

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"flight-arcade/internal/session"
)

const (
	// SessionCookieName carries the play token for browser clients
	SessionCookieName = "arcade_session"

	// SessionTokenHeader carries the play token for API clients
	SessionTokenHeader = "X-Session-Token"

	// Cookie lifetime; sessions are reaped long before this
	SessionCookieMaxAge = 24 * time.Hour
)

var (
	errInvalidToken = errors.New("invalid session token")
	errTokenMissing = errors.New("session token required")
)

// TokenSigner issues and verifies play tokens: the session id signed
// with HMAC-SHA256, so the server keeps no token state.
type TokenSigner struct {
	key []byte
}

// NewTokenSigner creates a signer. An empty secret generates a random key,
// which invalidates every token on restart.
func NewTokenSigner(secret string) *TokenSigner {
	if secret != "" {
		return &TokenSigner{key: []byte(secret)}
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		log.Printf("⚠️ Failed to generate token key: %v", err)
		key = []byte(time.Now().String())
	}
	return &TokenSigner{key: key}
}

func (t *TokenSigner) signature(id string) string {
	mac := hmac.New(sha256.New, t.key)
	mac.Write([]byte(id))
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign returns the play token for a session id.
func (t *TokenSigner) Sign(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id + "." + t.signature(id)))
}

// Verify checks a token and returns the session id it was issued for.
func (t *TokenSigner) Verify(token string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", errInvalidToken
	}
	id, sig, ok := strings.Cut(string(decoded), ".")
	if !ok || id == "" {
		return "", errInvalidToken
	}
	if !hmac.Equal([]byte(sig), []byte(t.signature(id))) {
		return "", errInvalidToken
	}
	return id, nil
}

// SetSessionCookie stores the play token for browser clients.
func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// requestToken finds a play token in the header, the query or the cookie.
func requestToken(r *http.Request) string {
	if tok := r.Header.Get(SessionTokenHeader); tok != "" {
		return tok
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// bearerToken extracts "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// isAdmin reports whether the request carries the admin token.
// An empty admin token disables admin access entirely.
func isAdmin(r *http.Request, adminToken string) bool {
	if adminToken == "" {
		return false
	}
	got := bearerToken(r)
	return got != "" && hmac.Equal([]byte(got), []byte(adminToken))
}

// AdminAuthMiddleware requires the admin bearer token.
func AdminAuthMiddleware(adminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminToken == "" {
				writeError(w, "admin access disabled", http.StatusForbidden)
				return
			}
			if !isAdmin(r, adminToken) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="arcade"`)
				writeError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type sessionCtxKey struct{}

// sessionFromContext returns the session loaded by SessionAccessMiddleware.
func sessionFromContext(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionCtxKey{}).(*session.Session)
	return s
}

// SessionAccessMiddleware loads the {id} session and requires either its
// play token or the admin token.
func SessionAccessMiddleware(store SessionStore, tokens *TokenSigner, adminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			s, ok := store.Get(id)
			if !ok {
				writeError(w, "session not found", http.StatusNotFound)
				return
			}

			if !isAdmin(r, adminToken) {
				tok := requestToken(r)
				if tok == "" {
					writeError(w, errTokenMissing.Error(), http.StatusUnauthorized)
					return
				}
				owner, err := tokens.Verify(tok)
				if err != nil {
					writeError(w, err.Error(), http.StatusUnauthorized)
					return
				}
				if owner != id {
					writeError(w, "token does not match session", http.StatusForbidden)
					return
				}
			}

			ctx := context.WithValue(r.Context(), sessionCtxKey{}, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
