package auth

import (
	"context"
	"net/http"

	"courier/internal/domain"
)

type principalKey struct{}

// Verifier validates a raw token.
type Verifier interface {
	Verify(token string) (domain.Principal, error)
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by Middleware.
func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok
}

// Middleware rejects requests without a valid token and stores the principal
// in the request context. onError writes the rejection.
func Middleware(v Verifier, onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := v.Verify(TokenFromRequest(r))
			if err != nil {
				onError(w, r, AsDomainError(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
