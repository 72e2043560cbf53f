package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/assettrack/assettrack/internal/platform/httpx"
	"github.com/assettrack/assettrack/internal/shared"
	"github.com/assettrack/assettrack/internal/users"
)

// Authenticator verifies bearer tokens and loads the acting user.
type Authenticator struct {
	tokens *Tokens
	users  users.Repository
	logger *slog.Logger
}

// NewAuthenticator builds an Authenticator.
func NewAuthenticator(tokens *Tokens, repo users.Repository, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{tokens: tokens, users: repo, logger: logger}
}

// Middleware rejects requests without a valid bearer token. The principal is
// rebuilt from the stored account so role changes and deactivation apply to
// tokens that are already issued.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			httpx.RespondError(w, a.logger, shared.ErrMissingToken)
			return
		}
		claims, err := a.tokens.Parse(raw)
		if err != nil {
			httpx.RespondError(w, a.logger, err)
			return
		}
		user, err := a.users.Get(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, users.ErrNotFound) {
				err = shared.ErrInvalidToken
			}
			httpx.RespondError(w, a.logger, err)
			return
		}
		if !user.IsActive {
			httpx.RespondError(w, a.logger, shared.ErrInactiveUser)
			return
		}
		ctx := shared.ContextWithPrincipal(r.Context(), user.Principal())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}
