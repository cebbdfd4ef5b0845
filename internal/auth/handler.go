package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const (
	maxJSONBodyBytes = 1 << 20

	// bcrypt truncates beyond 72 bytes; reject instead of silently losing
	// entropy.
	maxPasswordBytes = 72

	refreshCookieName = "refresh_token"
	refreshCookiePath = "/api/auth"

	rememberedCookieAge = 7 * 24 * time.Hour
	sessionCookieAge    = 24 * time.Hour
)

type Handler struct {
	service       *Service
	secureCookies bool
}

func NewHandler(service *Service, secureCookies bool) *Handler {
	return &Handler{service: service, secureCookies: secureCookies}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body registerRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	body.Name = strings.TrimSpace(body.Name)
	body.Email = strings.TrimSpace(body.Email)
	if body.Name == "" || body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return
	}
	if !emailRegex.MatchString(body.Email) {
		writeError(w, http.StatusBadRequest, "Email format is invalid")
		return
	}
	if len(body.Password) > maxPasswordBytes {
		writeError(w, http.StatusBadRequest, "Password is too long")
		return
	}

	user, token, err := h.service.Register(r.Context(), body.Name, body.Email, body.Password)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			writeError(w, http.StatusBadRequest, "User already exists")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"token":   token,
		"user":    user.Public(),
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body loginRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, tokens, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusBadRequest, "Invalid credentials")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	// The cookie max-age and the refresh token's own signed expiry are
	// independent; the effective session length is the minimum of the two.
	cookieAge := sessionCookieAge
	if body.RememberMe {
		cookieAge = rememberedCookieAge
	}
	h.setRefreshCookie(w, tokens.RefreshToken, int(cookieAge.Seconds()))

	writeJSON(w, http.StatusOK, map[string]any{
		"token": tokens.AccessToken,
		"user":  user.Public(),
	})
}

// Refresh reads the refresh token from its cookie only, never from a header
// or body. It deliberately runs outside the bearer middleware: it exists
// precisely to recover from an expired access token.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		writeError(w, http.StatusUnauthorized, "No refresh token")
		return
	}

	token, err := h.service.Refresh(cookie.Value)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			writeError(w, http.StatusForbidden, "Invalid refresh token")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Logout clears the refresh cookie. Access tokens already in the wild stay
// valid until their natural expiry: there is no server-side registry to
// revoke them against.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.setRefreshCookie(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// Profile is a protected probe route: it simply echoes the authenticated
// subject back, proving the bearer middleware ran.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	subject, ok := SubjectFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Access granted",
		"userId":  subject,
	})
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     refreshCookiePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
