// Package identity assigns every visitor an opaque, unauthenticated user ID
// kept in a signed session cookie, and hands it to handlers explicitly through
// the request context.
package identity

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

const userIDKey = "user_id"

type ctxKey struct{}

// Provider resolves the user ID of a request from its session cookie.
type Provider struct {
	store sessions.Store
	name  string
	log   *slog.Logger
}

// NewProvider creates a provider whose cookies are signed with secret.
func NewProvider(secret []byte, name string, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &Provider{
		store: store,
		name:  name,
		log:   logger.With("component", "identity"),
	}
}

// NewUserID generates a fresh opaque user ID.
func NewUserID() string {
	return "user_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Middleware makes sure every request carries a user ID, issuing one on the
// first visit, and stores it in the request context.
func (p *Provider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := p.store.Get(r, p.name)
		if err != nil {
			// An unreadable cookie still yields a usable fresh session.
			p.log.Debug("Discarding invalid session cookie", "error", err)
		}

		id, _ := session.Values[userIDKey].(string)
		if id == "" {
			id = NewUserID()
			session.Values[userIDKey] = id
			if err := session.Save(r, w); err != nil {
				p.log.Warn("Failed to save session", "error", err)
			}
			p.log.Info("Issued new user id", "user_id", id)
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
	})
}

// WithUserID returns a copy of ctx carrying id.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// UserID returns the user ID stored in ctx, or "" if there is none.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
