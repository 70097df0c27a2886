package authapi

import (
	"net"
	"net/http"
	"strings"
)

// Audit events go to the structured log rather than a table: they exist for
// operators tailing the stream, and the identifier field is already
// normalized so it never leaks raw credentials.

func (h *Handler) auditLoginFailed(r *http.Request, accountID, identifier, reason string) {
	h.audit("auth.login.failed", r, "account_id", accountID, "identifier", identifier, "reason", reason)
}

func (h *Handler) auditLoginSuccess(r *http.Request, accountID, identifier string) {
	h.audit("auth.login.success", r, "account_id", accountID, "identifier", identifier)
}

func (h *Handler) auditLoginRateLimited(r *http.Request, identifier string) {
	h.audit("auth.login.rate_limited", r, "identifier", identifier)
}

func (h *Handler) auditRegistered(r *http.Request, accountID, role string) {
	h.audit("auth.registered", r, "account_id", accountID, "role", role)
}

func (h *Handler) auditRefreshDenied(r *http.Request, reason string) {
	h.audit("auth.refresh.denied", r, "reason", reason)
}

func (h *Handler) auditRefreshSuccess(r *http.Request, accountID string) {
	h.audit("auth.refresh.success", r, "account_id", accountID)
}

func (h *Handler) auditLogout(r *http.Request) {
	h.audit("auth.logout", r)
}

func (h *Handler) audit(action string, r *http.Request, attrs ...any) {
	args := make([]any, 0, len(attrs)+4)
	args = append(args, "action", action)
	if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
		args = append(args, "ip", ip.String())
	}
	if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
		args = append(args, "ua", ua)
	}
	args = append(args, attrs...)
	h.log.Info("audit", args...)
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
