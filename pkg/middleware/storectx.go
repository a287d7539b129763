package middleware

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/retailops/crewdeck/pkg/autherr"
	"github.com/retailops/crewdeck/pkg/contextkeys"
	"github.com/retailops/crewdeck/pkg/keyguard"
	"github.com/retailops/crewdeck/pkg/observability"
	"github.com/retailops/crewdeck/pkg/scope"
	"github.com/retailops/crewdeck/pkg/tenancy"
)

var (
	errNoPrincipal = autherr.Unauthenticated("no principal in request context")
	errNoGrant     = autherr.Configuration("api key principal has no grant")
)

// StoreIDParam is the query parameter carrying a caller-supplied store id.
const StoreIDParam = "store_id"

// StoreContext resolves the effective store scope for the request and
// stores it in the request context. The route declares whether it can
// tolerate a tenant overview (scope.ModeOptional) or needs exactly one
// store (scope.ModeRequired), and whether sellers may reach it.
func StoreContext(resolver *scope.Resolver, metrics *observability.Metrics, mode scope.Mode, opts ...scope.ResolveOption) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := GetPrincipal(r)
			if !ok {
				WriteError(w, metrics, errNoPrincipal)
				return
			}

			rc, err := resolver.ResolveContext(r.Context(), p, requestedStoreID(r), mode, opts...)
			if err != nil {
				WriteError(w, metrics, err)
				return
			}

			ctx := contextkeys.WithResolvedContext(r.Context(), rc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestedStoreID reads the caller-supplied store id. A path parameter
// wins over the query parameter: the path names the store that gets
// access-checked, and nothing else may redirect the request.
func requestedStoreID(r *http.Request) string {
	if id, ok := mux.Vars(r)[StoreIDParam]; ok && id != "" {
		return id
	}
	return r.URL.Query().Get(StoreIDParam)
}

// RequireScope enforces an API-key permission scope. Human principals pass
// through untouched; their access is governed by role and store scope, not
// key permissions.
func RequireScope(guard *keyguard.Guard, metrics *observability.Metrics, s tenancy.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := GetPrincipal(r)
			if !ok {
				WriteError(w, metrics, errNoPrincipal)
				return
			}

			if p.Role == tenancy.RoleAPIKey {
				if p.Grant == nil {
					WriteError(w, metrics, errNoGrant)
					return
				}
				if err := guard.RequireScope(*p.Grant, s); err != nil {
					WriteError(w, metrics, err)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
