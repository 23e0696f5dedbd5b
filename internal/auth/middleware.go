package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	cookieName   = "denoise_session"
	sessionIDKey = "session_id"
)

type contextKey string

const userIDKey contextKey = "userID"

// Manager ties the signed browser cookie to the server-side session store.
type Manager struct {
	cookies sessions.Store
	store   SessionStore
	log     *zap.Logger
}

func NewManager(cookies sessions.Store, store SessionStore, log *zap.Logger) *Manager {
	return &Manager{cookies: cookies, store: store, log: log}
}

// NewCookieStore returns the signed cookie store shared with the OAuth flow.
func NewCookieStore(secret string, maxAge int, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.MaxAge(maxAge)
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = secure
	return store
}

// Login issues a new session for userID and stores its id in the cookie. A
// session the cookie already pointed at is deleted first.
func (m *Manager) Login(w http.ResponseWriter, r *http.Request, userID uint) error {
	cookie, _ := m.cookies.Get(r, cookieName)
	if previous, ok := cookie.Values[sessionIDKey].(string); ok && previous != "" {
		if err := m.store.Delete(r.Context(), previous); err != nil {
			return err
		}
	}

	session, err := m.store.Create(r.Context(), userID)
	if err != nil {
		return err
	}
	cookie.Values[sessionIDKey] = session.ID
	if err := cookie.Save(r, w); err != nil {
		_ = m.store.Delete(r.Context(), session.ID)
		return err
	}
	m.log.Info("session issued", zap.Uint("user_id", userID), zap.Time("expires_at", session.ExpiresAt))
	return nil
}

// Logout removes the server-side session and clears the cookie.
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) error {
	cookie, _ := m.cookies.Get(r, cookieName)
	if id, ok := cookie.Values[sessionIDKey].(string); ok && id != "" {
		if err := m.store.Delete(r.Context(), id); err != nil {
			return err
		}
	}
	delete(cookie.Values, sessionIDKey)
	cookie.Options.MaxAge = -1
	return cookie.Save(r, w)
}

// CurrentUser resolves the logged-in user id for the request, if any.
func (m *Manager) CurrentUser(r *http.Request) (uint, bool) {
	cookie, err := m.cookies.Get(r, cookieName)
	if err != nil {
		return 0, false
	}
	id, ok := cookie.Values[sessionIDKey].(string)
	if !ok || id == "" {
		return 0, false
	}

	session, err := m.store.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrSessionExpired) {
			m.log.Error("failed to load session", zap.Error(err))
		}
		return 0, false
	}
	return session.UserID, true
}

// UserMiddleware stores the logged-in user id in the request context when
// there is one. It never rejects a request; gated views check UserID.
func (m *Manager) UserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID, ok := m.CurrentUser(r); ok {
			r = r.WithContext(WithUserID(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserID(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(userIDKey).(uint)
	return id, ok
}
