package handlers

import (
	"embed"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/petermazzocco/go-denoise-project/internal/auth"
	"github.com/petermazzocco/go-denoise-project/internal/workflow"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	msgRegistered    = "Registered Successfully. You can now login."
	msgUsernameTaken = "Username already exists."
	msgInvalidCreds  = "Invalid credentials."
	msgLoginFirst    = "You need to log in first."
	msgSaved         = "Denoised image and results saved to the database."
	msgSavedMore     = "Denoised image and results saved."
	msgAccountExists = "An account with this email already exists. Log in with your password instead."
	historyLimit     = 10
)

type navItem struct {
	Label  string
	Path   string
	Active bool
}

var navigation = []navItem{
	{Label: "Register", Path: "/register"},
	{Label: "Login", Path: "/login"},
	{Label: "Upload & Denoise", Path: "/denoise"},
	{Label: "More Upload & Denoise", Path: "/denoise/more"},
}

type message struct {
	Kind string
	Text string
}

type page struct {
	Title        string
	Nav          []navItem
	LoggedIn     bool
	OAuthEnabled bool
	Messages     []message
}

func (p *page) success(text string) { p.Messages = append(p.Messages, message{"success", text}) }
func (p *page) fail(text string)    { p.Messages = append(p.Messages, message{"error", text}) }
func (p *page) warn(text string)    { p.Messages = append(p.Messages, message{"warning", text}) }

// Handler serves the four views.
type Handler struct {
	workflow     *workflow.Service
	sessions     *auth.Manager
	maxUpload    int64
	oauthEnabled bool
	log          *zap.Logger
}

func New(svc *workflow.Service, sessions *auth.Manager, maxUpload int64, oauthEnabled bool, log *zap.Logger) *Handler {
	return &Handler{
		workflow:     svc,
		sessions:     sessions,
		maxUpload:    maxUpload,
		oauthEnabled: oauthEnabled,
		log:          log,
	}
}

func (h *Handler) newPage(r *http.Request, title, path string) page {
	nav := make([]navItem, len(navigation))
	copy(nav, navigation)
	for i := range nav {
		nav[i].Active = nav[i].Path == path
	}
	_, loggedIn := auth.UserID(r.Context())
	return page{Title: title, Nav: nav, LoggedIn: loggedIn, OAuthEnabled: h.oauthEnabled}
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		h.log.Error("failed to render template", zap.String("template", name), zap.Error(err))
	}
}
