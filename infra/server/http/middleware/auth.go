package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/webitel/im-chat-hub/internal/domain/model"
	"github.com/webitel/im-chat-hub/internal/service"
)

type contextKey string

const (
	// IdentityContextKey is the key used to store/retrieve the caller identity from context
	IdentityContextKey contextKey = "identity"
)

// BearerAuth validates "Authorization: Bearer <jwt>" before the handler runs.
func BearerAuth(verifier service.CredentialVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// [PRE_AUTH] Validate identity before the request reaches the API
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				token = ""
			}
			id, err := verifier.Verify(r.Context(), strings.TrimSpace(token))
			if err != nil {
				WriteError(w, http.StatusUnauthorized, err)
				return
			}

			// [ENRICHMENT] Inject the identity into the context for downstream handlers
			ctx := context.WithValue(r.Context(), IdentityContextKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ServiceAuth admits only callers presenting the shared service token.
// End-user tokens are refused with 403; an empty secret refuses everyone.
func ServiceAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			token = strings.TrimSpace(token)
			if !ok || token == "" {
				WriteError(w, http.StatusUnauthorized, model.NewAuthError(model.ReasonMissingToken))
				return
			}
			if secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				WriteError(w, http.StatusForbidden, &model.Error{
					Kind:    model.KindAuth,
					Message: "service credential required",
					Err:     errors.New("caller is not a trusted service"),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFrom is a helper to extract the identity from context safely.
func IdentityFrom(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(IdentityContextKey).(model.Identity)
	return id, ok
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, err error) {
	WriteJSON(w, status, map[string]string{
		"error": model.PublicMessage(err),
		"kind":  string(model.KindOf(err)),
	})
}
