package auth

import (
	"context"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"

	"github.com/petermazzocco/go-denoise-project/internal/config"
)

const GoogleProvider = "google"

// SetupOAuth registers the Google provider and makes gothic keep its state in
// the application's cookie store. It reports whether OAuth is enabled.
func SetupOAuth(cfg config.OAuthConfig, store sessions.Store) bool {
	if !cfg.Enabled() {
		return false
	}
	goth.UseProviders(google.New(cfg.GoogleKey, cfg.GoogleSecret, cfg.CallbackURL, "email"))
	gothic.Store = store
	return true
}

// WithProvider pins the provider gothic resolves for the request.
func WithProvider(r *http.Request, provider string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), gothic.ProviderParamKey, provider))
}
