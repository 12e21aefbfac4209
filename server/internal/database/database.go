package database

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// schemaVersion 2 is the device-partitioned ledger. This store has no
// version 1 (pre-device) data path.
const schemaVersion = 2

// DB wraps the SQL database connection
type DB struct {
	*sql.DB

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// User represents a user account
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// APIToken identifies one submitting CLI installation. The token id doubles
// as the device id for merge accounting.
type APIToken struct {
	ID         string
	UserID     string
	Token      string
	Name       string
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// ErrUserNotFound is returned by lookups on missing users.
var ErrUserNotFound = fmt.Errorf("user not found")

// Open opens a SQLite database connection
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set busy timeout to avoid "database is locked" errors under concurrent load
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	return &DB{DB: db, userLocks: make(map[string]*sync.Mutex)}, nil
}

// Migrate creates the database schema
func (db *DB) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS api_tokens (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		token TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		last_used_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS contributions (
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		source TEXT NOT NULL,
		device_id TEXT NOT NULL,
		model_id TEXT NOT NULL,
		provider_id TEXT NOT NULL DEFAULT '',
		input_tokens INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		cache_read_tokens INTEGER NOT NULL DEFAULT 0,
		cache_write_tokens INTEGER NOT NULL DEFAULT 0,
		reasoning_tokens INTEGER NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		messages INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, date, source, device_id, model_id),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_contributions_user_date ON contributions(user_id, date);

	CREATE TABLE IF NOT EXISTS days (
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		total_tokens INTEGER NOT NULL,
		total_cost REAL NOT NULL,
		total_messages INTEGER NOT NULL,
		input_tokens INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		cache_read_tokens INTEGER NOT NULL,
		cache_write_tokens INTEGER NOT NULL,
		reasoning_tokens INTEGER NOT NULL,
		PRIMARY KEY (user_id, date),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS user_aggregates (
		user_id TEXT PRIMARY KEY,
		total_tokens INTEGER NOT NULL,
		total_cost REAL NOT NULL,
		input_tokens INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		cache_read_tokens INTEGER NOT NULL,
		cache_write_tokens INTEGER NOT NULL,
		reasoning_tokens INTEGER NOT NULL,
		active_days INTEGER NOT NULL,
		first_date TEXT NOT NULL DEFAULT '',
		last_date TEXT NOT NULL DEFAULT '',
		sources TEXT NOT NULL DEFAULT '[]',
		models TEXT NOT NULL DEFAULT '[]',
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_aggregates_tokens ON user_aggregates(total_tokens);

	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		expiry REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(expiry);
	`

	if _, err := db.Exec(schema); err != nil {
		return err
	}

	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
	return err
}

// CreateUser creates a new user
func (db *DB) CreateUser(user *User) error {
	_, err := db.Exec(
		`INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.Username, user.PasswordHash, user.CreatedAt,
	)
	return err
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(username string) (*User, error) {
	user := &User{}
	err := db.QueryRow(
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`,
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID
func (db *DB) GetUserByID(id string) (*User, error) {
	user := &User{}
	err := db.QueryRow(
		`SELECT id, username, password_hash, created_at FROM users WHERE id = ?`,
		id,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateAPIToken stores a new API token for a user
func (db *DB) CreateAPIToken(t *APIToken) error {
	_, err := db.Exec(
		`INSERT INTO api_tokens (id, user_id, token, name, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Token, t.Name, t.CreatedAt,
	)
	return err
}

// GetAPIToken resolves a bearer token secret to its token row, or nil when
// the secret is unknown.
func (db *DB) GetAPIToken(secret string) (*APIToken, error) {
	t := &APIToken{}
	var lastUsed sql.NullTime
	err := db.QueryRow(
		`SELECT id, user_id, token, name, last_used_at, created_at FROM api_tokens WHERE token = ?`,
		secret,
	).Scan(&t.ID, &t.UserID, &t.Token, &t.Name, &lastUsed, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		t.LastUsedAt = &lastUsed.Time
	}
	return t, nil
}

// ListAPITokens lists a user's tokens, newest first
func (db *DB) ListAPITokens(userID string) ([]APIToken, error) {
	rows, err := db.Query(
		`SELECT id, user_id, token, name, last_used_at, created_at
		 FROM api_tokens WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []APIToken
	for rows.Next() {
		var t APIToken
		var lastUsed sql.NullTime
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.Name, &lastUsed, &t.CreatedAt); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			t.LastUsedAt = &lastUsed.Time
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// DeleteAPIToken removes a token owned by the user. The token's device
// partitions in the ledger survive; only the credential is revoked.
func (db *DB) DeleteAPIToken(userID, tokenID string) error {
	_, err := db.Exec(`DELETE FROM api_tokens WHERE id = ? AND user_id = ?`, tokenID, userID)
	return err
}

// TouchAPIToken records when a token was last used for a submission
func (db *DB) TouchAPIToken(tokenID string, at time.Time) error {
	_, err := db.Exec(`UPDATE api_tokens SET last_used_at = ? WHERE id = ?`, at, tokenID)
	return err
}

// lockUser returns the mutex serializing merges for one user, creating it
// on first use. Merges for different users never share a lock.
func (db *DB) lockUser(userID string) *sync.Mutex {
	db.mu.Lock()
	defer db.mu.Unlock()

	mu, ok := db.userLocks[userID]
	if !ok {
		mu = &sync.Mutex{}
		db.userLocks[userID] = mu
	}
	return mu
}
