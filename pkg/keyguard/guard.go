// Package keyguard enforces the delegated-access model for API keys:
// permission-scope membership and store allow-list membership. It composes
// with the principal and scope resolvers rather than duplicating them.
package keyguard

import (
	"context"
	"fmt"

	"github.com/retailops/crewdeck/pkg/autherr"
	"github.com/retailops/crewdeck/pkg/tenancy"
)

// StoreLookup loads live store records. Implementations return (nil, nil)
// when no store with the given id exists.
type StoreLookup interface {
	FindStoreByID(ctx context.Context, id string) (*tenancy.Store, error)
}

// Guard enforces API-key scoping.
type Guard struct {
	stores StoreLookup
}

// NewGuard creates a scope guard backed by the given store lookup.
func NewGuard(stores StoreLookup) *Guard {
	return &Guard{stores: stores}
}

// RequireScope fails with Forbidden unless the grant carries the scope.
func (g *Guard) RequireScope(grant tenancy.KeyGrant, scope tenancy.Scope) error {
	if !grant.HasScope(scope) {
		return autherr.Forbidden(fmt.Sprintf("key lacks scope %q", scope))
	}
	return nil
}

// RequireStoreAccess confirms the key may act on the given store and
// returns the live store record.
//
// The tenant is always taken from the grant, never from request input, and
// the checks run in a fixed order: tenant membership and existence first,
// allow-list second. A store of a foreign tenant therefore reads as
// NotFound (its existence must not leak), while a store of the key's own
// tenant outside the allow-list reads as Forbidden (existence is already
// implied by the caller's tenant membership).
func (g *Guard) RequireStoreAccess(ctx context.Context, grant tenancy.KeyGrant, storeID string) (*tenancy.Store, error) {
	if storeID == "" {
		return nil, autherr.Validation("store id is required")
	}
	if grant.TenantID == "" {
		return nil, autherr.Configuration("key grant has no tenant")
	}

	store, err := g.stores.FindStoreByID(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up store: %w", err)
	}
	if store == nil || !store.Active || store.TenantID != grant.TenantID {
		return nil, autherr.NotFound("store not found")
	}

	if !grant.AllowsStore(storeID) {
		return nil, autherr.Forbidden("key not entitled to this store")
	}

	return store, nil
}

// StoreBound is implemented by mutation payloads that carry a store id.
type StoreBound interface {
	SetStoreID(id string)
}

// BindStorePath forces the access-checked path store id onto a decoded
// payload. The path value is authoritative; any conflicting store id in
// the request body is silently discarded so the body can never redirect a
// write to a store other than the one that was access-checked.
func BindStorePath(pathStoreID string, payload StoreBound) {
	payload.SetStoreID(pathStoreID)
}
