package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/tokenboard/tokenboard/server/internal/auth"
	"github.com/tokenboard/tokenboard/server/internal/database"
	"github.com/tokenboard/tokenboard/server/internal/handlers"
	"github.com/tokenboard/tokenboard/server/internal/middleware"
	"github.com/tokenboard/tokenboard/server/internal/templates"
)

func main() {
	// Load configuration from environment
	port := getEnv("PORT", "8080")
	dbPath := getEnv("DB_PATH", "./tokenboard.db")

	// Open database
	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Setup session manager with SQLite store
	sessionMgr := scs.New()
	sessionMgr.Store = sqlite3store.New(db.DB)
	sessionMgr.Lifetime = 7 * 24 * time.Hour
	sessionMgr.Cookie.Secure = false // Set to true in production with HTTPS
	sessionMgr.Cookie.SameSite = http.SameSiteLaxMode

	// Parse templates
	tmpl, err := templates.Parse()
	if err != nil {
		log.Fatalf("Failed to parse templates: %v", err)
	}

	// Create handlers
	h := handlers.New(db, sessionMgr, tmpl)
	authMiddleware := auth.NewMiddleware(db, sessionMgr)

	// Rate limit auth and submission endpoints
	authLimiter := middleware.NewIPRateLimiter(1, 5)
	submitLimiter := middleware.NewIPRateLimiter(2, 10)

	// Setup routes
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("/", h.Index)
	mux.Handle("/login", authLimiter.Limit(http.HandlerFunc(h.Login)))
	mux.Handle("/register", authLimiter.Limit(http.HandlerFunc(h.Register)))
	mux.HandleFunc("/health", h.Health)

	// Protected routes (session-based)
	mux.Handle("/logout", authMiddleware.RequireSession(http.HandlerFunc(h.Logout)))
	mux.Handle("/dashboard", authMiddleware.RequireSession(http.HandlerFunc(h.Dashboard)))
	mux.Handle("/settings/tokens", authMiddleware.RequireSession(http.HandlerFunc(h.CreateToken)))
	mux.Handle("/settings/tokens/delete", authMiddleware.RequireSession(http.HandlerFunc(h.DeleteToken)))

	// API routes
	mux.Handle("/api/submit", submitLimiter.Limit(authMiddleware.RequireToken(http.HandlerFunc(h.APISubmit))))
	mux.HandleFunc("/api/profile/", h.APIProfile)
	mux.HandleFunc("/api/leaderboard", h.APILeaderboard)

	// Wrap with session middleware and security headers
	handler := middleware.SecurityHeaders(sessionMgr.LoadAndSave(mux))

	// Start server
	addr := ":" + port
	log.Printf("Starting tokenboard-server on %s", addr)
	log.Printf("Database: %s", dbPath)

	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
