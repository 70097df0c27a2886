package authapi

import (
	"net/http"
	"strings"
	"time"

	"expertly/cmd/internal/auth/session"
)

const (
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
)

// setSessionCookies installs both token cookies. Browsers never see the
// tokens from script: both cookies are httpOnly. Cross-site deployments
// (production) need SameSite=None with Secure; local development keeps Lax
// so plain-http frontends still work.
func (h *Handler) setSessionCookies(w http.ResponseWriter, pair session.TokenPair) {
	h.setCookie(w, accessCookieName, pair.AccessToken, pair.AccessExpiresAt)
	h.setCookie(w, refreshCookieName, pair.RefreshToken, pair.RefreshExpiresAt)
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	h.expireCookie(w, accessCookieName)
	h.expireCookie(w, refreshCookieName)
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, exp time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		Expires:  exp,
		MaxAge:   int(time.Until(exp).Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.Production(),
		SameSite: h.cookieSameSite(),
	})
}

func (h *Handler) expireCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.Production(),
		SameSite: h.cookieSameSite(),
	})
}

func (h *Handler) cookieSameSite() http.SameSite {
	if h.cfg.Production() {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}
