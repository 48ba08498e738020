package adapters

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/lensa/domain/entities"
	"github.com/satriahrh/lensa/domain/repositories"
)

// MemorySessionRepository keeps sessions in process memory.
// Sessions hold uploaded images, so nothing here outlives the process.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*entities.Session // id -> session
	logger   *zap.Logger
}

var _ repositories.SessionRepository = (*MemorySessionRepository)(nil)

// NewMemorySessionRepository creates a new in-memory session repository
func NewMemorySessionRepository(logger *zap.Logger) *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[string]*entities.Session),
		logger:   logger,
	}
}

// Create implements SessionRepository interface
func (m *MemorySessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}

	if err := session.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; exists {
		return errors.New("session with this ID already exists")
	}

	sessionCopy := *session
	m.sessions[session.ID] = &sessionCopy

	m.logger.Info("Session created", zap.String("sessionId", session.ID))
	return nil
}

// Get implements SessionRepository interface. Expired sessions are reported as not found.
func (m *MemorySessionRepository) Get(ctx context.Context, id string) (*entities.Session, error) {
	if id == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists || session.IsExpired() {
		return nil, entities.ErrSessionNotFound
	}

	// Return a copy to prevent external modifications
	sessionCopy := *session
	return &sessionCopy, nil
}

// Update implements SessionRepository interface
func (m *MemorySessionRepository) Update(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}

	if err := session.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.sessions[session.ID]
	if !exists {
		return entities.ErrSessionNotFound
	}

	sessionCopy := *session
	sessionCopy.CreatedAt = existing.CreatedAt // Preserve original creation time
	m.sessions[session.ID] = &sessionCopy

	m.logger.Debug("Session updated", zap.String("sessionId", session.ID))
	return nil
}

// Modify implements SessionRepository interface
func (m *MemorySessionRepository) Modify(ctx context.Context, id string, fn func(*entities.Session) error) error {
	if id == "" {
		return errors.New("session ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.sessions[id]
	if !exists || existing.IsExpired() {
		return entities.ErrSessionNotFound
	}

	sessionCopy := *existing
	if err := fn(&sessionCopy); err != nil {
		return err
	}
	if err := sessionCopy.Validate(); err != nil {
		return err
	}
	sessionCopy.ID = existing.ID
	sessionCopy.CreatedAt = existing.CreatedAt
	m.sessions[id] = &sessionCopy

	m.logger.Debug("Session modified", zap.String("sessionId", id))
	return nil
}

// Delete implements SessionRepository interface
func (m *MemorySessionRepository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("session ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; !exists {
		return entities.ErrSessionNotFound
	}
	delete(m.sessions, id)

	m.logger.Info("Session deleted", zap.String("sessionId", id))
	return nil
}

// ExpireSessions implements SessionRepository interface
func (m *MemorySessionRepository) ExpireSessions(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for id, session := range m.sessions {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		if session.IsExpired() {
			delete(m.sessions, id)
			expired++
		}
	}

	if expired > 0 {
		m.logger.Info("Expired sessions removed",
			zap.Int("expired", expired),
			zap.Int("remaining", len(m.sessions)))
	}
	return expired, nil
}

// Count returns the number of stored sessions, expired ones included
func (m *MemorySessionRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
