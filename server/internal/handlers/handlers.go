package handlers

import (
	"encoding/json"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
	"github.com/tokenboard/tokenboard/internal/aggregate"
	"github.com/tokenboard/tokenboard/internal/model"
	"github.com/tokenboard/tokenboard/server/internal/auth"
	"github.com/tokenboard/tokenboard/server/internal/database"
	"github.com/tokenboard/tokenboard/server/internal/validator"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	db         *database.DB
	sessionMgr *scs.SessionManager
	templates  *template.Template
}

// New creates a new Handler
func New(db *database.DB, sessionMgr *scs.SessionManager, templates *template.Template) *Handler {
	return &Handler{
		db:         db,
		sessionMgr: sessionMgr,
		templates:  templates,
	}
}

// SubmitMetrics summarizes the user's ledger after a merge.
type SubmitMetrics struct {
	TotalTokens int64           `json:"totalTokens"`
	TotalCost   float64         `json:"totalCost"`
	DateRange   model.DateRange `json:"dateRange"`
	ActiveDays  int             `json:"activeDays"`
	Sources     []string        `json:"sources"`
}

// SubmitResponse is the success body of the submit endpoint.
type SubmitResponse struct {
	Success      bool          `json:"success"`
	SubmissionID string        `json:"submissionId"`
	Username     string        `json:"username"`
	Fingerprint  string        `json:"fingerprint"`
	Metrics      SubmitMetrics `json:"metrics"`
	Mode         string        `json:"mode"`
	Warnings     []string      `json:"warnings,omitempty"`
}

// APISubmit ingests one device's full usage snapshot and merges it into the
// user's ledger.
func (h *Handler) APISubmit(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	token := auth.GetToken(r.Context())
	if user == nil || token == nil {
		h.jsonError(w, "Unauthorized", nil, http.StatusUnauthorized)
		return
	}

	var data model.ContributionData
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		h.jsonError(w, "Invalid request body", nil, http.StatusBadRequest)
		return
	}

	result, err := validator.Validate(&data, time.Now())
	if err != nil {
		if verr, ok := err.(*validator.ValidationError); ok {
			h.jsonError(w, "Validation failed", verr.Issues, http.StatusBadRequest)
			return
		}
		h.jsonError(w, "Validation failed", nil, http.StatusBadRequest)
		return
	}

	merge, err := h.db.MergeSubmission(user.ID, token.ID, &data)
	if err != nil {
		log.Printf("merge failed for user %s: %v", user.ID, err)
		h.jsonError(w, "Failed to store submission", nil, http.StatusInternalServerError)
		return
	}

	if err := h.db.TouchAPIToken(token.ID, time.Now()); err != nil {
		log.Printf("failed to update token last_used_at: %v", err)
	}

	agg := merge.Aggregate
	resp := SubmitResponse{
		Success:      true,
		SubmissionID: uuid.NewString(),
		Username:     user.Username,
		Fingerprint:  validator.Fingerprint(&data),
		Metrics: SubmitMetrics{
			TotalTokens: agg.TotalTokens,
			TotalCost:   agg.TotalCost,
			DateRange:   model.DateRange{Start: agg.FirstDate, End: agg.LastDate},
			ActiveDays:  agg.ActiveDays,
			Sources:     agg.Sources,
		},
		Mode:     merge.Mode,
		Warnings: result.Warnings,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ProfileResponse is the persisted graph for one user.
type ProfileResponse struct {
	Username      string                    `json:"username"`
	Summary       model.DataSummary         `json:"summary"`
	Years         []model.YearSummary       `json:"years"`
	Contributions []model.DailyContribution `json:"contributions"`
}

// APIProfile serves a user's merged ledger as graph data.
// Route: GET /api/profile/{username}?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) APIProfile(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimPrefix(r.URL.Path, "/api/profile/")
	if username == "" || strings.Contains(username, "/") {
		h.jsonError(w, "Invalid username", nil, http.StatusBadRequest)
		return
	}

	user, err := h.db.GetUserByUsername(username)
	if err != nil {
		h.jsonError(w, "Failed to load profile", nil, http.StatusInternalServerError)
		return
	}
	if user == nil {
		h.jsonError(w, "User not found", nil, http.StatusNotFound)
		return
	}

	contributions, err := h.db.GetUserDays(user.ID, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		h.jsonError(w, "Failed to load profile", nil, http.StatusInternalServerError)
		return
	}

	// Intensity is relative to the rendered set's own max day.
	aggregate.ApplyIntensities(contributions)

	resp := ProfileResponse{
		Username:      user.Username,
		Summary:       aggregate.Summarize(contributions),
		Years:         aggregate.Years(contributions),
		Contributions: contributions,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// APILeaderboard serves the top users by total tokens.
func (h *Handler) APILeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 25
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	entries, err := h.db.Leaderboard(limit)
	if err != nil {
		h.jsonError(w, "Failed to load leaderboard", nil, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []database.LeaderboardEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"entries": entries})
}

// Index shows the leaderboard, plus login state
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	entries, _ := h.db.Leaderboard(25)

	userID := h.sessionMgr.GetString(r.Context(), "userID")
	var user *database.User
	if userID != "" {
		user, _ = h.db.GetUserByID(userID)
	}

	h.templates.ExecuteTemplate(w, "index.html", map[string]interface{}{
		"User":    user,
		"Entries": entries,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, "Invalid form data")
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	if username == "" || password == "" {
		h.renderError(w, "Username and password are required")
		return
	}

	user, err := h.db.GetUserByUsername(username)
	if err != nil {
		h.renderError(w, "An error occurred")
		return
	}

	if user == nil || !auth.CheckPassword(password, user.PasswordHash) {
		h.renderError(w, "Invalid username or password")
		return
	}

	h.sessionMgr.Put(r.Context(), "userID", user.ID)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, "Invalid form data")
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	if username == "" || password == "" {
		h.renderError(w, "Username and password are required")
		return
	}

	if len(username) < 3 {
		h.renderError(w, "Username must be at least 3 characters")
		return
	}

	if len(password) < 8 {
		h.renderError(w, "Password must be at least 8 characters")
		return
	}

	existing, _ := h.db.GetUserByUsername(username)
	if existing != nil {
		h.renderError(w, "Username already taken")
		return
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		h.renderError(w, "An error occurred")
		return
	}

	userID, err := auth.GenerateID()
	if err != nil {
		h.renderError(w, "An error occurred")
		return
	}

	user := &database.User{
		ID:           userID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}

	if err := h.db.CreateUser(user); err != nil {
		h.renderError(w, "Failed to create account")
		return
	}

	h.sessionMgr.Put(r.Context(), "userID", user.ID)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// Logout handles user logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessionMgr.Destroy(r.Context())
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Dashboard shows the logged-in user's aggregate and API tokens
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	agg, _ := h.db.GetAggregate(user.ID)
	tokens, _ := h.db.ListAPITokens(user.ID)

	h.templates.ExecuteTemplate(w, "dashboard.html", map[string]interface{}{
		"User":      user,
		"Aggregate": agg,
		"Tokens":    tokens,
	})
}

// CreateToken mints a new API token for the logged-in user. The token
// becomes a new device identity for submissions.
func (h *Handler) CreateToken(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.renderError(w, "Invalid form data")
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = "unnamed device"
	}

	id, err := auth.GenerateID()
	if err != nil {
		h.renderError(w, "An error occurred")
		return
	}
	secret, err := auth.GenerateToken()
	if err != nil {
		h.renderError(w, "An error occurred")
		return
	}

	token := &database.APIToken{
		ID:        id,
		UserID:    user.ID,
		Token:     secret,
		Name:      name,
		CreatedAt: time.Now(),
	}
	if err := h.db.CreateAPIToken(token); err != nil {
		h.renderError(w, "Failed to create token")
		return
	}

	// The secret is shown once, on this page only.
	h.templates.ExecuteTemplate(w, "token-created.html", map[string]interface{}{
		"User":   user,
		"Name":   name,
		"Secret": secret,
	})
}

// DeleteToken revokes one of the user's API tokens
func (h *Handler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.renderError(w, "Invalid form data")
		return
	}

	tokenID := r.FormValue("token_id")
	if tokenID == "" {
		h.renderError(w, "token_id is required")
		return
	}

	if err := h.db.DeleteAPIToken(user.ID, tokenID); err != nil {
		h.renderError(w, "Failed to delete token")
		return
	}

	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) renderError(w http.ResponseWriter, message string) {
	h.templates.ExecuteTemplate(w, "error.html", map[string]interface{}{
		"Error": message,
	})
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, details []string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]interface{}{"error": message}
	if len(details) > 0 {
		body["details"] = details
	}
	json.NewEncoder(w).Encode(body)
}

// Health handles the health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "database unavailable"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}
