package security

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/noah-isme/yevea-countertop/internal/common"
)

const (
	defaultCSRFHeader = "X-CSRF-Token"
	defaultCSRFCookie = "yevea_csrf"
	defaultCSRFField  = "csrf_token"
)

type csrfCtxKey struct{}

// CSRF protects cookie-based flows using the double-submit technique. Safe
// requests get a token cookie; unsafe requests must echo it in the header or
// in the form field. With ExposeToken set, safe responses also carry the
// token in the header so script clients can echo it.
type CSRF struct {
	Header      string
	Cookie      string
	FormField   string
	Secure      bool
	SameSite    http.SameSite
	Path        string
	ExposeToken bool
}

// Token returns the CSRF token issued for the current request, for embedding in forms.
func Token(ctx context.Context) string {
	v, _ := ctx.Value(csrfCtxKey{}).(string)
	return v
}

// Middleware issues and enforces the CSRF token.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	headerName := valueOr(c.Header, defaultCSRFHeader)
	cookieName := valueOr(c.Cookie, defaultCSRFCookie)
	fieldName := valueOr(c.FormField, defaultCSRFField)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookieToken := ""
		if cookie, err := r.Cookie(cookieName); err == nil {
			cookieToken = strings.TrimSpace(cookie.Value)
		}

		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			if cookieToken == "" {
				token, err := newToken()
				if err != nil {
					http.Error(w, "csrf token unavailable", http.StatusInternalServerError)
					return
				}
				cookieToken = token
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    token,
					Path:     valueOr(c.Path, "/"),
					Secure:   c.Secure,
					SameSite: c.sameSite(),
					HttpOnly: true,
				})
			}
			if c.ExposeToken {
				w.Header().Set(headerName, cookieToken)
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfCtxKey{}, cookieToken)))
			return
		}

		if cookieToken == "" {
			reject(w, r, "missing csrf cookie")
			return
		}
		token := strings.TrimSpace(r.Header.Get(headerName))
		if token == "" {
			token = strings.TrimSpace(r.PostFormValue(fieldName))
		}
		if token == "" {
			reject(w, r, "missing csrf token")
			return
		}
		if subtleConstantTimeCompare(token, cookieToken) != 1 {
			reject(w, r, "invalid csrf token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfCtxKey{}, cookieToken)))
	})
}

func reject(w http.ResponseWriter, r *http.Request, message string) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		common.JSONError(w, http.StatusForbidden, "CSRF_FAILED", message, nil)
		return
	}
	http.Error(w, message, http.StatusForbidden)
}

func (c CSRF) sameSite() http.SameSite {
	if c.SameSite == 0 {
		return http.SameSiteLaxMode
	}
	return c.SameSite
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func subtleConstantTimeCompare(a, b string) int {
	if len(a) != len(b) {
		return 0
	}
	if len(a) == 0 {
		return 1
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b))
}

func valueOr(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}
