// Package middleware provides HTTP middlewares for token authentication and logging.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/atinyakov/smsglue/internal/account"
	"github.com/go-chi/chi/v5"
)

type ctxKey string

const accountKey ctxKey = "account"

// TokenParam is the URL parameter holding the bearer token.
const TokenParam = "token"

// Resolver decodes bearer tokens.
type Resolver interface {
	Resolve(token string) (*account.Account, error)
}

// TokenAuth decodes the {token} URL parameter and stores the account in the
// request context. Undecodable tokens get the invalid-parameters envelope.
func TokenAuth(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acc, err := resolver.Resolve(chi.URLParam(r, TokenParam))
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]any{
					"response": map[string]any{"error": http.StatusBadRequest, "description": "Invalid parameters"},
				})
				return
			}
			ctx := context.WithValue(r.Context(), accountKey, acc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountFromContext returns the account stored by TokenAuth, or nil.
func AccountFromContext(ctx context.Context) *account.Account {
	acc, _ := ctx.Value(accountKey).(*account.Account)
	return acc
}
