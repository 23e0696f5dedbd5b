package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

// Routes builds the router. rateLimit caps register and login submissions per
// client IP and minute; zero disables the limit.
func (h *Handler) Routes(rateLimit int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.sessions.UserMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/register", http.StatusSeeOther)
	})

	r.Group(func(r chi.Router) {
		if rateLimit > 0 {
			r.Use(httprate.Limit(
				rateLimit,
				1*time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
			))
		}
		r.Post("/register", h.RegisterHandler)
		r.Post("/login", h.LoginHandler)
	})
	r.Get("/register", h.RegisterForm)
	r.Get("/login", h.LoginForm)
	r.Post("/logout", h.LogoutHandler)

	r.Get("/denoise", h.DenoiseForm)
	r.Post("/denoise", h.DenoiseHandler)
	r.Get("/denoise/more", h.MoreDenoiseForm)
	r.Post("/denoise/more", h.MoreDenoiseHandler)
	r.Get("/files/{kind}/{name}", h.FileHandler)

	if h.oauthEnabled {
		r.Get("/auth/google", h.OAuthBeginHandler)
		r.Get("/auth/google/callback", h.OAuthCallbackHandler)
	}
	return r
}
