package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/tokenboard/tokenboard/server/internal/database"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const (
	userKey  contextKey = "user"
	tokenKey contextKey = "apiToken"
)

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a password with a hash
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// GenerateToken generates a random API token secret
func GenerateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "tb_" + hex.EncodeToString(bytes), nil
}

// GenerateID generates a random hex ID
func GenerateID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// Middleware handles session and bearer-token authentication
type Middleware struct {
	db         *database.DB
	sessionMgr *scs.SessionManager
}

// NewMiddleware creates a new auth middleware
func NewMiddleware(db *database.DB, sessionMgr *scs.SessionManager) *Middleware {
	return &Middleware{
		db:         db,
		sessionMgr: sessionMgr,
	}
}

// RequireSession middleware requires a valid web session
func (m *Middleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := m.sessionMgr.GetString(r.Context(), "userID")
		if userID == "" {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}

		user, err := m.db.GetUserByID(userID)
		if err != nil || user == nil {
			m.sessionMgr.Destroy(r.Context())
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// RequireToken middleware requires a valid bearer token. The resolved token
// identifies both the account and the submitting device.
func (m *Middleware) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := r.Header.Get("X-API-Key")
		if secret == "" {
			header := r.Header.Get("Authorization")
			if strings.HasPrefix(header, "Bearer ") {
				secret = strings.TrimPrefix(header, "Bearer ")
			}
		}

		if secret == "" {
			http.Error(w, `{"error":"API token required"}`, http.StatusUnauthorized)
			return
		}

		token, err := m.db.GetAPIToken(secret)
		if err != nil || token == nil {
			http.Error(w, `{"error":"invalid API token"}`, http.StatusUnauthorized)
			return
		}

		user, err := m.db.GetUserByID(token.UserID)
		if err != nil || user == nil {
			http.Error(w, `{"error":"invalid API token"}`, http.StatusUnauthorized)
			return
		}

		ctx := withUser(r.Context(), user)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func withUser(ctx context.Context, user *database.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// GetUser returns the user from context
func GetUser(ctx context.Context) *database.User {
	if user, ok := ctx.Value(userKey).(*database.User); ok {
		return user
	}
	return nil
}

// GetToken returns the API token from context
func GetToken(ctx context.Context) *database.APIToken {
	if token, ok := ctx.Value(tokenKey).(*database.APIToken); ok {
		return token
	}
	return nil
}
