package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/markbates/goth/gothic"
	"go.uber.org/zap"

	"github.com/petermazzocco/go-denoise-project/internal/auth"
	"github.com/petermazzocco/go-denoise-project/internal/repository"
	"github.com/petermazzocco/go-denoise-project/internal/workflow"
)

type registerPage struct {
	page
	Form    workflow.Registration
	Genders []string
}

type loginPage struct {
	page
	Form struct{ Username string }
}

func (h *Handler) newRegisterPage(r *http.Request) *registerPage {
	return &registerPage{
		page:    h.newPage(r, "Register New User", "/register"),
		Form:    workflow.Registration{Gender: "Male"},
		Genders: []string{"Male", "Female", "Other"},
	}
}

func (h *Handler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "register.html", h.newRegisterPage(r))
}

func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	p := h.newRegisterPage(r)
	if err := r.ParseForm(); err != nil {
		p.fail("Invalid form submission.")
		h.render(w, http.StatusBadRequest, "register.html", p)
		return
	}
	p.Form = workflow.Registration{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
		Email:    r.PostForm.Get("email"),
		Phone:    r.PostForm.Get("phone"),
		Gender:   r.PostForm.Get("gender"),
		Address:  r.PostForm.Get("address"),
	}

	_, err := h.workflow.Register(r.Context(), p.Form)
	p.Form.Password = ""
	var verr *workflow.ValidationError
	switch {
	case err == nil:
		p.success(msgRegistered)
		h.render(w, http.StatusCreated, "register.html", p)
	case errors.Is(err, repository.ErrUsernameTaken):
		p.fail(msgUsernameTaken)
		h.render(w, http.StatusConflict, "register.html", p)
	case errors.As(err, &verr):
		p.fail(fmt.Sprintf("Please check these fields: %v.", verr.Fields))
		h.render(w, http.StatusBadRequest, "register.html", p)
	default:
		h.log.Error("registration failed", zap.Error(err))
		p.fail("Registration failed, please try again.")
		h.render(w, http.StatusInternalServerError, "register.html", p)
	}
}

func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "login.html", &loginPage{page: h.newPage(r, "Login", "/login")})
}

func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	p := &loginPage{page: h.newPage(r, "Login", "/login")}
	if err := r.ParseForm(); err != nil {
		p.fail(msgInvalidCreds)
		h.render(w, http.StatusBadRequest, "login.html", p)
		return
	}
	username := r.PostForm.Get("username")
	p.Form.Username = username

	user, err := h.workflow.Login(r.Context(), username, r.PostForm.Get("password"))
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, repository.ErrInvalidCredentials) {
			h.log.Error("login failed", zap.Error(err))
			status = http.StatusInternalServerError
		}
		p.fail(msgInvalidCreds)
		h.render(w, status, "login.html", p)
		return
	}

	if err := h.sessions.Login(w, r, user.ID); err != nil {
		h.log.Error("failed to issue session", zap.Error(err))
		p.fail("Failed to start session.")
		h.render(w, http.StatusInternalServerError, "login.html", p)
		return
	}
	p.LoggedIn = true
	p.success(fmt.Sprintf("Welcome, %s!", user.Username))
	h.render(w, http.StatusOK, "login.html", p)
}

func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(w, r); err != nil {
		h.log.Error("failed to end session", zap.Error(err))
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// OAuthBeginHandler starts the Google login.
func (h *Handler) OAuthBeginHandler(w http.ResponseWriter, r *http.Request) {
	gothic.BeginAuthHandler(w, auth.WithProvider(r, auth.GoogleProvider))
}

// OAuthCallbackHandler finds or creates the local account for the Google
// email and issues a session for it.
func (h *Handler) OAuthCallbackHandler(w http.ResponseWriter, r *http.Request) {
	r = auth.WithProvider(r, auth.GoogleProvider)
	gothUser, err := gothic.CompleteUserAuth(w, r)
	if err != nil {
		h.log.Warn("oauth callback failed", zap.Error(err))
		p := &loginPage{page: h.newPage(r, "Login", "/login")}
		p.fail(msgInvalidCreds)
		h.render(w, http.StatusUnauthorized, "login.html", p)
		return
	}

	user, err := h.workflow.LoginExternal(r.Context(), gothUser.Provider, gothUser.UserID, gothUser.Email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountExists) {
			p := &loginPage{page: h.newPage(r, "Login", "/login")}
			p.fail(msgAccountExists)
			h.render(w, http.StatusConflict, "login.html", p)
			return
		}
		h.log.Error("failed to resolve oauth user", zap.Error(err))
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}
	if err := h.sessions.Login(w, r, user.ID); err != nil {
		h.log.Error("failed to issue session", zap.Error(err))
		http.Error(w, "Failed to save session", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/denoise", http.StatusTemporaryRedirect)
}
