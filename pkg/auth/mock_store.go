package auth

import (
	"fmt"
	"sync"
)

// MockStore implements SessionStore for testing purposes
type MockStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	// Error injection for testing
	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

// NewMockStore creates a new mock session store
func NewMockStore() *MockStore {
	return &MockStore{
		sessions: make(map[string]*Session),
	}
}

// Store saves a session to the mock store
func (m *MockStore) Store(session *Session) error {
	if m.StoreError != nil {
		return m.StoreError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if session == nil || session.Username == "" {
		return ErrInvalidSession
	}

	// Create a copy to avoid external modifications
	sessionCopy := *session
	m.sessions[session.Username] = &sessionCopy

	return nil
}

// Retrieve gets a session from the mock store
func (m *MockStore) Retrieve(username string) (*Session, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if username == "" {
		return nil, ErrInvalidSession
	}

	session, exists := m.sessions[username]
	if !exists {
		return nil, ErrSessionNotFound
	}

	sessionCopy := *session
	return &sessionCopy, nil
}

// List returns all stored sessions from the mock store
func (m *MockStore) List() ([]*Session, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var sessions []*Session
	for _, session := range m.sessions {
		sessionCopy := *session
		sessions = append(sessions, &sessionCopy)
	}

	return sessions, nil
}

// Delete removes a session from the mock store
func (m *MockStore) Delete(username string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if username == "" {
		return ErrInvalidSession
	}

	if _, exists := m.sessions[username]; !exists {
		return ErrSessionNotFound
	}

	delete(m.sessions, username)
	return nil
}

// Exists checks if a session exists in the mock store
func (m *MockStore) Exists(username string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.sessions[username]
	return exists
}

// Clear removes all sessions from the mock store (useful for test cleanup)
func (m *MockStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions = make(map[string]*Session)
}

// Count returns the number of sessions in the mock store (useful for testing)
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}

// NewMockManager creates a Manager with a mock store for testing
func NewMockManager() (*Manager, *MockStore) {
	mockStore := NewMockStore()
	manager := &Manager{
		stores: []SessionStore{mockStore},
	}
	return manager, mockStore
}

// NewMockManagerWithStores creates a Manager with multiple stores for testing
func NewMockManagerWithStores(stores ...SessionStore) *Manager {
	return &Manager{
		stores: stores,
	}
}

// GetSession returns a copy of the session for inspection (useful for testing)
func (m *MockStore) GetSession(username string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[username]
	if !exists {
		return nil, fmt.Errorf("session not found: %s", username)
	}

	sessionCopy := *session
	return &sessionCopy, nil
}
