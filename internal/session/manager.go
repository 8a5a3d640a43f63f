package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"

	"github.com/noah-isme/yevea-countertop/internal/common"
	"github.com/noah-isme/yevea-countertop/internal/obs"
)

const defaultIssuer = "yevea-countertop"

// Manager issues and verifies signed session tokens carried in a cookie.
type Manager struct {
	Secret     []byte
	TTL        time.Duration
	CookieName string
	Domain     string
	Secure     bool
	SameSite   http.SameSite
	Issuer     string
	Now        func() time.Time
	Logger     zerolog.Logger
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Manager) ttl() time.Duration {
	if m.TTL <= 0 {
		return 24 * time.Hour
	}
	return m.TTL
}

func (m *Manager) issuer() string {
	if m.Issuer == "" {
		return defaultIssuer
	}
	return m.Issuer
}

func (m *Manager) cookieName() string {
	if m.CookieName == "" {
		return "yevea_session"
	}
	return m.CookieName
}

// Issue signs a token for sessionID and returns it with its expiry.
func (m *Manager) Issue(sessionID string) (string, time.Time, error) {
	if len(m.Secret) == 0 {
		return "", time.Time{}, errors.New("session: secret not configured")
	}
	now := m.now()
	expiresAt := now.Add(m.ttl())
	token, err := jwt.NewBuilder().
		Subject(sessionID).
		Issuer(m.issuer()).
		IssuedAt(now).
		NotBefore(now).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, m.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

// Verify checks the signature, issuer and lifetime of token and returns its session id.
func (m *Manager) Verify(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", errors.New("session: missing token")
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(jwa.HS256, m.Secret), jwt.WithValidate(false))
	if err != nil {
		return "", fmt.Errorf("session: parse token: %w", err)
	}
	err = jwt.Validate(parsed,
		jwt.WithClock(jwt.ClockFunc(m.now)),
		jwt.WithIssuer(m.issuer()),
	)
	if err != nil {
		return "", fmt.Errorf("session: validate token: %w", err)
	}
	sessionID := parsed.Subject()
	if _, err := uuid.Parse(sessionID); err != nil {
		return "", fmt.Errorf("session: invalid subject: %w", err)
	}
	return sessionID, nil
}

// Middleware attaches the session id to the request context. Requests
// without a valid token start a fresh session and receive a new cookie.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(m.cookieName()); err == nil {
			sessionID, err := m.Verify(cookie.Value)
			if err == nil {
				obs.NoteSession(r.Context(), sessionID)
				next.ServeHTTP(w, r.WithContext(common.WithSessionID(r.Context(), sessionID)))
				return
			}
			m.Logger.Debug().Err(err).Msg("discarding invalid session token")
		}

		sessionID := uuid.NewString()
		token, expiresAt, err := m.Issue(sessionID)
		if err != nil {
			m.Logger.Error().Err(err).Msg("issue session token")
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", common.MsgInternal, nil)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     m.cookieName(),
			Value:    token,
			Domain:   m.Domain,
			Path:     "/",
			Expires:  expiresAt,
			HttpOnly: true,
			Secure:   m.Secure,
			SameSite: m.SameSite,
		})
		obs.NoteSession(r.Context(), sessionID)
		next.ServeHTTP(w, r.WithContext(common.WithSessionID(r.Context(), sessionID)))
	})
}
