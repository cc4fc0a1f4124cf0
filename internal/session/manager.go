package session

import (
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/davidjurgens/potato-sub004/internal/phase"
)

// Manager is the process-wide registry of user sessions and the single
// entry point for get-or-create semantics. Construct one at startup and
// inject it; there is no ambient global instance.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*UserSession

	model    *phase.Model
	settings Settings
	// stateDir, when set, is consulted on first sight of a user so a
	// restarted process resumes persisted sessions transparently.
	stateDir string
}

// NewManager creates an empty registry. stateDir may be empty to disable
// disk resumption.
func NewManager(model *phase.Model, settings Settings, stateDir string) *Manager {
	return &Manager{
		sessions: make(map[string]*UserSession),
		model:    model,
		settings: settings,
		stateDir: stateDir,
	}
}

// GetOrCreate returns the session for a user id, creating it on first
// sight. The check-then-act is guarded by the registry lock, so two
// near-simultaneous first requests for the same new user always converge
// on one session object.
func (m *Manager) GetOrCreate(userID string) *UserSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[userID]; ok {
		return existing
	}

	if m.stateDir != "" {
		restored, err := Load(m.stateDir, userID, m.model, m.settings)
		if err == nil {
			m.sessions[userID] = restored
			return restored
		}
		if !errors.Is(err, ErrStateNotFound) {
			log.Printf("session: resume %s failed, starting fresh: %v", userID, err)
		}
	}

	created := New(userID, m.model, m.settings)
	m.sessions[userID] = created
	return created
}

// Get returns the live session for a user id without creating one.
func (m *Manager) Get(userID string) (*UserSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// UserIDs lists every registered user, sorted.
func (m *Manager) UserIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sessions returns every live session.
func (m *Manager) Sessions() []*UserSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions := make([]*UserSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Count is the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Delete removes a session from the registry. This is the explicit
// administrative reset, not part of normal flow; persisted state on disk is
// left alone.
func (m *Manager) Delete(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[userID]; !ok {
		return false
	}
	delete(m.sessions, userID)
	return true
}
