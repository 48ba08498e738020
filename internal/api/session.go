package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/lensa/domain/entities"
)

const sessionContextKey = "session"

// sessionFrom returns the session attached by the middleware
func sessionFrom(c echo.Context) *entities.Session {
	session, _ := c.Get(sessionContextKey).(*entities.Session)
	return session
}

// lookupSession resolves the cookie to a live session, or nil
func (h *handler) lookupSession(c echo.Context) *entities.Session {
	cookie, err := c.Cookie(h.deps.Session.CookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	claims, err := h.deps.Tokens.ValidateToken(cookie.Value)
	if err != nil {
		h.deps.Logger.Debug("Ignoring invalid session cookie", zap.Error(err))
		return nil
	}

	session, err := h.deps.Sessions.Get(c.Request().Context(), claims.SessionID)
	if err != nil {
		return nil
	}
	return session
}

// withSession attaches the caller's session, starting a new one when the cookie is missing or stale.
// The cookie is reissued on every request so it expires with the session.
func (h *handler) withSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		session := h.lookupSession(c)
		if session == nil {
			session = entities.NewSession(h.deps.Session.TTL)
			if h.deps.Language != "" {
				session.Language = h.deps.Language
			}
			if err := h.deps.Sessions.Create(c.Request().Context(), session); err != nil {
				h.deps.Logger.Error("Failed to create session", zap.Error(err))
				return c.JSON(http.StatusInternalServerError, ErrorResponse{
					Error:   "session_failed",
					Message: "Failed to start a session",
				})
			}
			h.deps.Logger.Info("Session started", zap.String("sessionID", session.ID))
		}

		if err := h.setSessionCookie(c, session); err != nil {
			h.deps.Logger.Error("Failed to issue session token", zap.String("sessionID", session.ID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "token_generation_failed",
				Message: "Failed to issue session token",
			})
		}

		c.Set(sessionContextKey, session)
		return next(c)
	}
}

// requireSession rejects requests without a live session instead of starting one
func (h *handler) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		session := h.lookupSession(c)
		if session == nil {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "missing_session",
				Message: "Open the page first to start a session",
			})
		}
		c.Set(sessionContextKey, session)
		return next(c)
	}
}

func (h *handler) setSessionCookie(c echo.Context, session *entities.Session) error {
	token, err := h.deps.Tokens.GenerateSessionToken(session.ID)
	if err != nil {
		return err
	}

	c.SetCookie(&http.Cookie{
		Name:     h.deps.Session.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.deps.Session.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (h *handler) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     h.deps.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.deps.Session.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
