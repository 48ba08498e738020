package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTTL is how long a session survives without activity
const DefaultSessionTTL = 30 * time.Minute

var (
	ErrNoCaption       = errors.New("no caption available yet, upload an image first")
	ErrSessionNotFound = errors.New("session not found")
)

// Session holds the transient state of one browser's interaction
type Session struct {
	ID           string         `json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActiveAt time.Time      `json:"last_active_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
	Language     string         `json:"language"`
	Image        *UploadedImage `json:"image,omitempty"`
	Caption      *Caption       `json:"caption,omitempty"`

	ttl time.Duration
}

// NewSession creates a session with a fresh ID
func NewSession(ttl time.Duration) *Session {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	now := time.Now()
	return &Session{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(ttl),
		Language:     "en-US",
		ttl:          ttl,
	}
}

// BeginUpload replaces the current image; the previous caption no longer applies
func (s *Session) BeginUpload(img *UploadedImage) {
	s.Image = img
	s.Caption = nil
	s.UpdateLastActive()
}

// SetCaption stores the caption generated for the current image
func (s *Session) SetCaption(caption *Caption) {
	s.Caption = caption
	s.UpdateLastActive()
}

// CurrentCaption returns the most recent caption or ErrNoCaption
func (s *Session) CurrentCaption() (*Caption, error) {
	if s.Caption == nil {
		return nil, ErrNoCaption
	}
	return s.Caption, nil
}

// UpdateLastActive updates the last active timestamp and extends expiration
func (s *Session) UpdateLastActive() {
	s.LastActiveAt = time.Now()
	s.ExpiresAt = s.LastActiveAt.Add(s.TTL())
}

// TTL returns the inactivity window of the session
func (s *Session) TTL() time.Duration {
	if s.ttl <= 0 {
		return DefaultSessionTTL
	}
	return s.ttl
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("session id is required")
	}
	if s.ExpiresAt.IsZero() {
		return errors.New("session expiration is required")
	}
	return nil
}
