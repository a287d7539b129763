package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/retailops/crewdeck/pkg/autherr"
	"github.com/retailops/crewdeck/pkg/contextkeys"
	"github.com/retailops/crewdeck/pkg/observability"
	"github.com/retailops/crewdeck/pkg/principal"
	"github.com/retailops/crewdeck/pkg/tenancy"
)

// APIKeyHeader carries raw API-key secrets on machine-to-machine requests.
const APIKeyHeader = "X-Api-Key"

// TokenVerifier is the opaque token authenticator. It verifies signature
// and expiry and yields the claims payload; all interpretation of the
// payload belongs to the principal resolver.
type TokenVerifier interface {
	VerifyToken(token string) (principal.TokenClaims, error)
}

// Auth resolves the request credential into a principal and stores it in
// the request context.
type Auth struct {
	verifier TokenVerifier
	resolver *principal.Resolver
	log      *observability.Logger
	metrics  *observability.Metrics
}

// NewAuth creates the authentication middleware. metrics may be nil.
func NewAuth(verifier TokenVerifier, resolver *principal.Resolver, log *observability.Logger, metrics *observability.Metrics) *Auth {
	return &Auth{verifier: verifier, resolver: resolver, log: log, metrics: metrics}
}

// Handler wraps an HTTP handler with principal resolution. A request must
// carry exactly one credential: a Bearer token or an API-key header.
func (a *Auth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.resolve(r)
		if err != nil {
			WriteError(w, a.metrics, err)
			return
		}

		ctx := contextkeys.WithPrincipal(r.Context(), p)
		ctx = observability.WithPrincipalID(ctx, p.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) resolve(r *http.Request) (tenancy.Principal, error) {
	if rawKey := r.Header.Get(APIKeyHeader); rawKey != "" {
		return a.resolver.ResolveAPIKey(r.Context(), rawKey)
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return tenancy.Principal{}, autherr.Unauthenticated("missing credentials")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return tenancy.Principal{}, autherr.Unauthenticated("invalid authorization header format")
	}

	claims, err := a.verifier.VerifyToken(parts[1])
	if err != nil {
		return tenancy.Principal{}, autherr.Wrap(autherr.KindUnauthenticated, "invalid or expired token", err)
	}

	return a.resolver.ResolveToken(r.Context(), claims)
}

// GetPrincipal extracts the resolved principal from a request.
func GetPrincipal(r *http.Request) (tenancy.Principal, bool) {
	p, ok := r.Context().Value(contextkeys.PrincipalKey).(tenancy.Principal)
	return p, ok
}

// GetResolvedContext extracts the resolved store context from a request.
func GetResolvedContext(r *http.Request) (tenancy.ResolvedContext, bool) {
	rc, ok := r.Context().Value(contextkeys.ResolvedContextKey).(tenancy.ResolvedContext)
	return rc, ok
}

// WriteError maps an authorization failure onto an HTTP response. This is
// the only place error kinds turn into status codes; the resolvers
// propagate kinds unmodified.
func WriteError(w http.ResponseWriter, metrics *observability.Metrics, err error) {
	kind := autherr.KindOf(err)

	status := http.StatusInternalServerError
	message := "internal error"
	switch kind {
	case autherr.KindUnauthenticated:
		status = http.StatusUnauthorized
		message = "authentication required"
	case autherr.KindValidation:
		status = http.StatusBadRequest
		message = err.Error()
	case autherr.KindForbidden:
		status = http.StatusForbidden
		message = "access denied"
	case autherr.KindNotFound:
		status = http.StatusNotFound
		message = "not found"
	case autherr.KindConfiguration:
		// Fail closed without detail; a misconfigured credential is an
		// operator problem, not caller information.
		status = http.StatusInternalServerError
		message = "internal error"
	}

	if metrics != nil && kind != "" {
		metrics.AccessDeniedTotal.WithLabelValues(string(kind)).Inc()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
