package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements SessionStore using environment variables. It
// supports a full pasted cookie header (XFC_SESSION_COOKIE) or the two
// cookies individually.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based session store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(session *Session) error {
	return ErrStoreUnavailable
}

// Retrieve builds a session from environment variables
func (e *EnvironmentStore) Retrieve(username string) (*Session, error) {
	if cookie := os.Getenv("XFC_SESSION_COOKIE"); cookie != "" {
		session, err := ParseCookieHeader(cookie)
		if err != nil {
			return nil, ErrSessionNotFound
		}
		session.Username = envUsername(username)
		session.UserAgent = os.Getenv("XFC_USER_AGENT")
		return session, nil
	}

	authToken := os.Getenv("XFC_AUTH_TOKEN")
	csrfToken := os.Getenv("XFC_CSRF_TOKEN")
	if csrfToken == "" {
		return nil, ErrSessionNotFound
	}

	return &Session{
		Username:     envUsername(username),
		AuthToken:    authToken,
		CSRFToken:    csrfToken,
		UserAgent:    os.Getenv("XFC_USER_AGENT"),
		LastModified: time.Now(),
	}, nil
}

// List returns a single session if environment variables are set
func (e *EnvironmentStore) List() ([]*Session, error) {
	session, err := e.Retrieve("")
	if err != nil {
		return []*Session{}, nil
	}
	return []*Session{session}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(username string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(username string) bool {
	_, err := e.Retrieve(username)
	return err == nil
}

// envUsername resolves the username for an environment session. Environment
// variables don't always carry one, so XFC_USERNAME and "default" back it up.
func envUsername(username string) string {
	if username != "" {
		return username
	}
	if u := os.Getenv("XFC_USERNAME"); u != "" {
		return u
	}
	return "default"
}
