package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/Kiongsoh/CS50W/internal/domain/auth"
	"github.com/Kiongsoh/CS50W/internal/session"
)

// CookieName is the session cookie set on login.
const CookieName = "kitchen_session"

const loginURL = "/api/auth/login"

type principalKey struct{}

func withPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// principalFrom returns the authenticated principal of the request, if any.
func principalFrom(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(auth.Principal)
	return p, ok
}

// sessionToken returns the raw token from the session cookie or a Bearer
// Authorization header.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if v := r.Header.Get("Authorization"); v != "" {
		if token, ok := strings.CutPrefix(v, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return ""
}

// authenticate resolves the session of every request. Requests with a missing
// or stale token continue anonymously.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := sessionToken(r)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		s, err := h.sessions.Resolve(ctx, raw)
		if err != nil {
			if !errors.Is(err, session.ErrInvalid) {
				zctx.From(ctx).Warn("Resolve session", zap.Error(err))
			}
			next.ServeHTTP(w, r)
			return
		}
		u, err := h.users.GetByID(ctx, s.UserID)
		if err != nil {
			if !errors.Is(err, auth.ErrNotFound) {
				zctx.From(ctx).Warn("Load session user", zap.Int64("user_id", s.UserID), zap.Error(err))
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx = withPrincipal(ctx, u.Principal())
		ctx = zctx.With(ctx, zap.Int64("user_id", u.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type principalHandler func(w http.ResponseWriter, r *http.Request, p auth.Principal)

// customer rejects anonymous requests with 401.
func (h *Handler) customer(fn principalHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFrom(r.Context())
		if !ok {
			writeAuthRequired(w)
			return
		}
		fn(w, r, p)
	}
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
