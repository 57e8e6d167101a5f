package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"

	"github.com/GisSunTech/mini-shop-full/internal/store"
)

type AuthHandler struct {
	Store        *store.Store
	SessionStore *sessions.CookieStore
	Templates    *TemplateCache
}

// NormalizeEmail is the canonical form every stored email uses.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (h *AuthHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	tmpl := h.Templates.Get("register.html")
	if tmpl == nil {
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}
	session, _ := h.SessionStore.Get(r, SessionName)
	data := map[string]interface{}{
		"CsrfField": csrf.TemplateField(r),
		"Flashes":   GetFlash(session),
	}
	session.Save(r, w)
	tmpl.Execute(w, data)
}

func (h *AuthHandler) RegisterPost(w http.ResponseWriter, r *http.Request) {
	session, _ := h.SessionStore.Get(r, SessionName)

	email := NormalizeEmail(r.FormValue("email"))
	password := r.FormValue("password")
	if email == "" || password == "" {
		redirectWithFlash(w, r, session, "danger", "Email and password are required", "/register")
		return
	}

	existing, err := h.Store.GetUserByEmail(email)
	if err != nil {
		slog.Error("Registration lookup failed", "error", err)
		redirectWithFlash(w, r, session, "danger", "Internal Server Error", "/register")
		return
	}
	if existing != nil {
		redirectWithFlash(w, r, session, "danger", "Email already registered", "/register")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("Password hashing failed", "error", err)
		redirectWithFlash(w, r, session, "danger", "Internal Server Error", "/register")
		return
	}

	// The duplicate check above is not atomic; the UNIQUE constraint on
	// users.email catches the losing side of a concurrent registration.
	if _, err := h.Store.CreateUser(email, string(hash), false); err != nil {
		slog.Error("User creation failed", "error", err)
		if errors.Is(err, store.ErrEmailTaken) {
			redirectWithFlash(w, r, session, "danger", "Email already registered", "/register")
			return
		}
		redirectWithFlash(w, r, session, "danger", "Registration failed", "/register")
		return
	}

	redirectWithFlash(w, r, session, "success", "Registration successful. Please login.", "/login")
}

func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	tmpl := h.Templates.Get("login.html")
	if tmpl == nil {
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}
	session, _ := h.SessionStore.Get(r, SessionName)
	data := map[string]interface{}{
		"CsrfField": csrf.TemplateField(r),
		"Flashes":   GetFlash(session),
		"Next":      r.URL.Query().Get("next"),
	}
	session.Save(r, w)
	tmpl.Execute(w, data)
}

func (h *AuthHandler) LoginPost(w http.ResponseWriter, r *http.Request) {
	session, _ := h.SessionStore.Get(r, SessionName)

	email := NormalizeEmail(r.FormValue("email"))
	password := r.FormValue("password")

	user, err := h.Store.GetUserByEmail(email)
	if err != nil {
		slog.Error("Login lookup failed", "error", err)
		redirectWithFlash(w, r, session, "danger", "Internal Server Error", "/login")
		return
	}

	// Same message for unknown email and wrong password; don't let the
	// response reveal which emails are registered.
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		redirectWithFlash(w, r, session, "danger", "Invalid credentials", "/login")
		return
	}

	session.Values["authenticated"] = true
	session.Values["user_id"] = user.ID
	session.Values["is_admin"] = user.IsAdmin
	session.AddFlash(FlashMessage{Type: "success", Message: "Logged in successfully"})

	if err := session.Save(r, w); err != nil {
		slog.Error("Failed to save session", "error", err)
		http.Error(w, "Failed to save session", http.StatusInternalServerError)
		return
	}

	slog.Info("Login successful", "user_id", user.ID)
	http.Redirect(w, r, safeNext(r.FormValue("next")), http.StatusSeeOther)
}

// safeNext only honors same-site relative destinations.
func safeNext(next string) string {
	if strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") {
		return next
	}
	return "/"
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.SessionStore.Get(r, SessionName)
	session.Values["authenticated"] = false
	delete(session.Values, "user_id")
	delete(session.Values, "is_admin")
	redirectWithFlash(w, r, session, "info", "Logged out", "/")
}

// RequireLogin redirects anonymous requests to the login page, preserving
// the originally requested destination.
func (h *AuthHandler) RequireLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := h.SessionStore.Get(r, SessionName)
		if _, _, ok := currentIdentity(session); !ok {
			http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

// RequireAdmin guards the admin panel: the request must carry an
// authenticated admin identity, otherwise it is bounced to the login page
// with a warning and nothing is mutated.
func (h *AuthHandler) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := h.SessionStore.Get(r, SessionName)
		if _, isAdmin, ok := currentIdentity(session); !ok || !isAdmin {
			slog.Info("Admin route denied", "path", r.URL.Path)
			redirectWithFlash(w, r, session, "warning", "Admins only", "/login")
			return
		}
		next(w, r)
	}
}
