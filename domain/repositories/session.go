package repositories

import (
	"context"

	"github.com/satriahrh/lensa/domain/entities"
)

// SessionRepository stores per-browser sessions
type SessionRepository interface {
	Create(ctx context.Context, session *entities.Session) error
	Get(ctx context.Context, id string) (*entities.Session, error)
	Update(ctx context.Context, session *entities.Session) error
	// Modify applies fn to the stored session atomically. Nothing is stored when fn fails.
	Modify(ctx context.Context, id string, fn func(*entities.Session) error) error
	Delete(ctx context.Context, id string) error
	// ExpireSessions removes expired sessions and returns how many were removed
	ExpireSessions(ctx context.Context) (int, error)
}
