package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/petermazzocco/go-denoise-project/internal/repository"
	"github.com/petermazzocco/go-denoise-project/models"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newGormStore(t *testing.T, c *clock) SessionStore {
	t.Helper()
	_, db := repository.NewTestRepository(t)
	store := NewGormSessionStore(db, time.Hour).(*gormSessionStore)
	store.now = c.now
	return store
}

func newRedisStore(t *testing.T, c *clock) (SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisSessionStore(client, time.Hour).(*redisSessionStore)
	store.now = c.now
	return store, mr
}

func TestSessionStores(t *testing.T) {
	backends := map[string]func(t *testing.T, c *clock) SessionStore{
		"gorm": newGormStore,
		"redis": func(t *testing.T, c *clock) SessionStore {
			s, _ := newRedisStore(t, c)
			return s
		},
	}

	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := &clock{t: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
			store := newStore(t, c)

			created, err := store.Create(ctx, 42)
			require.NoError(t, err)
			assert.Len(t, created.ID, 36)
			assert.True(t, created.ExpiresAt.Equal(c.t.Add(time.Hour)))

			got, err := store.Get(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, uint(42), got.UserID)

			other, err := store.Create(ctx, 42)
			require.NoError(t, err)
			assert.NotEqual(t, created.ID, other.ID)

			require.NoError(t, store.Delete(ctx, created.ID))
			_, err = store.Get(ctx, created.ID)
			assert.ErrorIs(t, err, ErrSessionNotFound)

			c.t = c.t.Add(time.Hour)
			_, err = store.Get(ctx, other.ID)
			assert.ErrorIs(t, err, ErrSessionExpired)
			_, err = store.Get(ctx, other.ID)
			assert.ErrorIs(t, err, ErrSessionNotFound, "expired session should be removed")

			_, err = store.Get(ctx, "unknown")
			assert.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestRedisSessionStore_KeyExpires(t *testing.T) {
	c := &clock{t: time.Now()}
	store, mr := newRedisStore(t, c)

	session, err := store.Create(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL(sessionKey(session.ID)))

	mr.FastForward(time.Hour + time.Second)
	_, err = store.Get(context.Background(), session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_LoginRoundTrip(t *testing.T) {
	c := &clock{t: time.Now()}
	m := NewManager(NewCookieStore("0123456789abcdef0123456789abcdef", 3600, false), newGormStore(t, c), zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, m.Login(rec, req, 5))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	var seen uint
	var loggedIn bool
	handler := m.UserMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, loggedIn = UserID(r.Context())
	}))

	next := httptest.NewRequest(http.MethodGet, "/denoise", nil)
	for _, ck := range cookies {
		next.AddCookie(ck)
	}
	handler.ServeHTTP(httptest.NewRecorder(), next)
	assert.True(t, loggedIn)
	assert.Equal(t, uint(5), seen)

	out := httptest.NewRecorder()
	require.NoError(t, m.Logout(out, next))
	_, ok := m.CurrentUser(next)
	assert.False(t, ok, "session should be gone after logout")
}

func TestManager_LoginAgainDropsPreviousSession(t *testing.T) {
	c := &clock{t: time.Now()}
	store := newGormStore(t, c)
	m := NewManager(NewCookieStore("0123456789abcdef0123456789abcdef", 3600, false), store, zap.NewNop())

	first := httptest.NewRecorder()
	require.NoError(t, m.Login(first, httptest.NewRequest(http.MethodPost, "/login", nil), 5))
	firstReq := httptest.NewRequest(http.MethodGet, "/denoise", nil)
	for _, ck := range first.Result().Cookies() {
		firstReq.AddCookie(ck)
	}
	firstCookie, err := m.cookies.Get(firstReq, cookieName)
	require.NoError(t, err)
	firstID, _ := firstCookie.Values[sessionIDKey].(string)
	require.NotEmpty(t, firstID)

	second := httptest.NewRecorder()
	loginReq := httptest.NewRequest(http.MethodPost, "/login", nil)
	for _, ck := range first.Result().Cookies() {
		loginReq.AddCookie(ck)
	}
	require.NoError(t, m.Login(second, loginReq, 6))

	_, err = store.Get(context.Background(), firstID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, ok := m.CurrentUser(firstReq)
	assert.False(t, ok, "the replaced cookie must no longer authenticate")

	secondReq := httptest.NewRequest(http.MethodGet, "/denoise", nil)
	for _, ck := range second.Result().Cookies() {
		secondReq.AddCookie(ck)
	}
	userID, ok := m.CurrentUser(secondReq)
	assert.True(t, ok)
	assert.Equal(t, uint(6), userID)
}

func TestManager_NoCookie(t *testing.T) {
	c := &clock{t: time.Now()}
	m := NewManager(NewCookieStore("0123456789abcdef0123456789abcdef", 3600, false), newGormStore(t, c), zap.NewNop())

	var loggedIn bool
	handler := m.UserMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, loggedIn = UserID(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/denoise", nil))

	assert.False(t, loggedIn)
}

func TestSessionExpired(t *testing.T) {
	s := &models.Session{ExpiresAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	assert.False(t, s.Expired(s.ExpiresAt.Add(-time.Nanosecond)))
	assert.True(t, s.Expired(s.ExpiresAt))
}
