package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Session holds the cookies of an authenticated X web session. The auth_token
// cookie identifies the login; the ct0 cookie doubles as the CSRF token sent
// on every API call.
type Session struct {
	Username     string    `json:"username"`
	AuthToken    string    `json:"auth_token"`
	CSRFToken    string    `json:"csrf_token"`
	UserAgent    string    `json:"user_agent,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// CookieHeader renders the session as a Cookie request header value.
func (s *Session) CookieHeader() string {
	parts := []string{}
	if s.AuthToken != "" {
		parts = append(parts, "auth_token="+s.AuthToken)
	}
	if s.CSRFToken != "" {
		parts = append(parts, "ct0="+s.CSRFToken)
	}
	return strings.Join(parts, "; ")
}

// ParseCookieHeader extracts a session from a raw Cookie header pasted from
// the browser. The ct0 cookie is mandatory; auth_token is kept when present.
func ParseCookieHeader(cookie string) (*Session, error) {
	session := &Session{LastModified: time.Now()}
	for _, part := range strings.Split(cookie, ";") {
		part = strings.TrimSpace(part)
		name, value, ok := strings.Cut(part, "=")
		if !ok || value == "" {
			continue
		}
		switch name {
		case "auth_token":
			session.AuthToken = value
		case "ct0":
			session.CSRFToken = value
		}
	}
	if session.CSRFToken == "" {
		return nil, fmt.Errorf("%w: no ct0 cookie in header", ErrInvalidSession)
	}
	return session, nil
}

// SessionStore is the interface for storing and retrieving sessions.
type SessionStore interface {
	// Store saves a session keyed by username
	Store(session *Session) error

	// Retrieve gets the session for a specific username
	Retrieve(username string) (*Session, error)

	// List returns all stored sessions
	List() ([]*Session, error)

	// Delete removes the session for a specific username
	Delete(username string) error

	// Exists checks if a session exists for a username
	Exists(username string) bool
}

// Manager handles session storage with fallback mechanisms.
type Manager struct {
	stores []SessionStore
}

// NewManager creates a session manager with the available storage backends:
// system keychain first, encrypted file second, environment variables last.
func NewManager() (*Manager, error) {
	var stores []SessionStore

	keyringStore, err := NewKeyringStore()
	if err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "sessions.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// Store saves a session using the first store that accepts it.
func (m *Manager) Store(session *Session) error {
	if session.Username == "" {
		return errors.New("username is required")
	}
	if session.CSRFToken == "" {
		return errors.New("ct0 token is required")
	}

	session.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(session); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store session: %w", lastErr)
	}
	return errors.New("no available session stores")
}

// Retrieve gets a session from the first store that has it.
func (m *Manager) Retrieve(username string) (*Session, error) {
	for _, store := range m.stores {
		if session, err := store.Retrieve(username); err == nil && session != nil {
			return session, nil
		}
	}
	return nil, fmt.Errorf("session not found for user: %s", username)
}

// RetrieveDefault gets the environment session if one is configured, else the
// first stored session.
func (m *Manager) RetrieveDefault() (*Session, error) {
	if envStore, ok := m.stores[len(m.stores)-1].(*EnvironmentStore); ok {
		if session, err := envStore.Retrieve(""); err == nil && session != nil {
			return session, nil
		}
	}

	sessions, err := m.List()
	if err == nil && len(sessions) > 0 {
		return sessions[0], nil
	}

	return nil, errors.New("no session found")
}

// List returns all stored sessions across stores, deduplicated by username
// with the most recently modified version winning.
func (m *Manager) List() ([]*Session, error) {
	byUser := make(map[string]*Session)

	for _, store := range m.stores {
		sessions, err := store.List()
		if err != nil {
			continue
		}
		for _, session := range sessions {
			if existing, ok := byUser[session.Username]; !ok || session.LastModified.After(existing.LastModified) {
				byUser[session.Username] = session
			}
		}
	}

	var result []*Session
	for _, session := range byUser {
		result = append(result, session)
	}

	return result, nil
}

// Delete removes a session from all stores.
func (m *Manager) Delete(username string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(username); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete session: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("session not found for user: %s", username)
	}

	return nil
}

// DeleteAll removes every stored session.
func (m *Manager) DeleteAll() error {
	sessions, err := m.List()
	if err != nil {
		return err
	}

	for _, session := range sessions {
		_ = m.Delete(session.Username)
	}

	return nil
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "xfc")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "xfc")
	default: // Linux and others
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "xfc")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "xfc")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeSession creates a copy of the session with sensitive data masked
func SanitizeSession(session *Session) *Session {
	if session == nil {
		return nil
	}

	return &Session{
		Username:     session.Username,
		AuthToken:    maskString(session.AuthToken),
		CSRFToken:    maskString(session.CSRFToken),
		UserAgent:    session.UserAgent,
		LastModified: session.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidSession   = errors.New("invalid session")
	ErrStoreUnavailable = errors.New("session store unavailable")
)
