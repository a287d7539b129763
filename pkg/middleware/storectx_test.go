package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailops/crewdeck/pkg/contextkeys"
	"github.com/retailops/crewdeck/pkg/keyguard"
	"github.com/retailops/crewdeck/pkg/observability"
	"github.com/retailops/crewdeck/pkg/scope"
	"github.com/retailops/crewdeck/pkg/tenancy"
)

type fakeStores struct {
	stores map[string]*tenancy.Store
}

func (f *fakeStores) FindStoreByID(ctx context.Context, id string) (*tenancy.Store, error) {
	return f.stores[id], nil
}

func testScopeResolver() *scope.Resolver {
	stores := &fakeStores{stores: map[string]*tenancy.Store{
		"store-1": {ID: "store-1", TenantID: "tenant-1", Active: true},
		"store-2": {ID: "store-2", TenantID: "tenant-2", Active: true},
	}}
	log := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return scope.NewResolver(stores, keyguard.NewGuard(stores), log, nil)
}

// withPrincipal simulates the auth middleware having run.
func withPrincipal(req *http.Request, p tenancy.Principal) *http.Request {
	return req.WithContext(contextkeys.WithPrincipal(req.Context(), p))
}

func captureContext(t *testing.T, captured *tenancy.ResolvedContext) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, ok := GetResolvedContext(r)
		require.True(t, ok)
		*captured = rc
		w.WriteHeader(http.StatusOK)
	})
}

func TestStoreContextOwnerQueryParam(t *testing.T) {
	var rc tenancy.ResolvedContext
	handler := StoreContext(testScopeResolver(), nil, scope.ModeRequired)(captureContext(t, &rc))

	req := httptest.NewRequest(http.MethodGet, "/?store_id=store-1", nil)
	req = withPrincipal(req, tenancy.Principal{ID: "tenant-1", Role: tenancy.RoleOwner, TenantID: "tenant-1"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "store-1", rc.StoreID)
	assert.Equal(t, tenancy.ViewActingAsManager, rc.ViewMode)
}

func TestStoreContextPathParamWinsOverQuery(t *testing.T) {
	var rc tenancy.ResolvedContext
	router := mux.NewRouter()
	router.Handle("/stores/{store_id}/x", StoreContext(testScopeResolver(), nil, scope.ModeRequired)(captureContext(t, &rc)))

	// The query names a foreign store; the path is what gets checked.
	req := httptest.NewRequest(http.MethodGet, "/stores/store-1/x?store_id=store-2", nil)
	req = withPrincipal(req, tenancy.Principal{ID: "tenant-1", Role: tenancy.RoleOwner, TenantID: "tenant-1"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "store-1", rc.StoreID)
}

func TestStoreContextMissingStoreRequired(t *testing.T) {
	handler := StoreContext(testScopeResolver(), nil, scope.ModeRequired)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = withPrincipal(req, tenancy.Principal{ID: "tenant-1", Role: tenancy.RoleOwner, TenantID: "tenant-1"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStoreContextForeignStoreRequired(t *testing.T) {
	handler := StoreContext(testScopeResolver(), nil, scope.ModeRequired)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/?store_id=store-2", nil)
	req = withPrincipal(req, tenancy.Principal{ID: "tenant-1", Role: tenancy.RoleOwner, TenantID: "tenant-1"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStoreContextNoPrincipal(t *testing.T) {
	handler := StoreContext(testScopeResolver(), nil, scope.ModeOptional)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStoreContextSellerOptIn(t *testing.T) {
	sellerPrincipal := tenancy.Principal{ID: "sel-1", Role: tenancy.RoleSeller, TenantID: "tenant-1", StoreID: "store-1"}

	denied := StoreContext(testScopeResolver(), nil, scope.ModeRequired)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	denied.ServeHTTP(rec, withPrincipal(req, sellerPrincipal))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var rc tenancy.ResolvedContext
	allowed := StoreContext(testScopeResolver(), nil, scope.ModeRequired, scope.WithSellerAccess())(captureContext(t, &rc))
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	allowed.ServeHTTP(rec, withPrincipal(req, sellerPrincipal))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "store-1", rc.StoreID)
}

func TestRequireScopeAPIKey(t *testing.T) {
	guard := keyguard.NewGuard(&fakeStores{})
	grant := tenancy.KeyGrant{KeyID: "key-1", TenantID: "tenant-1", Permissions: []tenancy.Scope{tenancy.ScopeStoresRead}}
	keyPrincipal := tenancy.Principal{ID: "key-1", Role: tenancy.RoleAPIKey, TenantID: "tenant-1", Grant: &grant}

	ok := RequireScope(guard, nil, tenancy.ScopeStoresRead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	ok.ServeHTTP(rec, withPrincipal(req, keyPrincipal))
	assert.Equal(t, http.StatusOK, rec.Code)

	denied := RequireScope(guard, nil, tenancy.ScopeUsersWrite)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	denied.ServeHTTP(rec, withPrincipal(req, keyPrincipal))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireScopeHumansPassThrough(t *testing.T) {
	guard := keyguard.NewGuard(&fakeStores{})
	handler := RequireScope(guard, nil, tenancy.ScopeUsersWrite)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withPrincipal(req, tenancy.Principal{ID: "mgr-1", Role: tenancy.RoleManager, TenantID: "tenant-1"}))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireScopeAPIKeyWithoutGrant(t *testing.T) {
	guard := keyguard.NewGuard(&fakeStores{})
	handler := RequireScope(guard, nil, tenancy.ScopeStoresRead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withPrincipal(req, tenancy.Principal{ID: "key-1", Role: tenancy.RoleAPIKey, TenantID: "tenant-1"}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
