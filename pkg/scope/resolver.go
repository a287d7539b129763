package scope

import (
	"context"
	"fmt"

	"github.com/retailops/crewdeck/pkg/autherr"
	"github.com/retailops/crewdeck/pkg/observability"
	"github.com/retailops/crewdeck/pkg/tenancy"
)

// Mode states whether the calling route can tolerate a tenant-wide
// overview or needs exactly one store.
type Mode int

const (
	// ModeOptional routes accept a tenant overview when no store id is
	// supplied. Optional resolution never fails on a missing store id.
	ModeOptional Mode = iota
	// ModeRequired routes need exactly one resolved store. Required
	// resolution always fails on a missing store id.
	ModeRequired
)

func (m Mode) String() string {
	if m == ModeRequired {
		return "required"
	}
	return "optional"
}

// StoreLookup loads live store records. Implementations return (nil, nil)
// when no store with the given id exists.
type StoreLookup interface {
	FindStoreByID(ctx context.Context, id string) (*tenancy.Store, error)
}

// KeyAccessGuard enforces API-key store access; implemented by
// keyguard.Guard. The scope resolver delegates rather than re-implements
// the allow-list ordering rules.
type KeyAccessGuard interface {
	RequireStoreAccess(ctx context.Context, grant tenancy.KeyGrant, storeID string) (*tenancy.Store, error)
}

// ResolveOption configures a single resolution call.
type ResolveOption func(*resolveConfig)

type resolveConfig struct {
	allowSellers bool
}

// WithSellerAccess opts the calling route into seller-capable resolution.
// Routes that never serve sellers keep the default, where a seller
// principal fails closed.
func WithSellerAccess() ResolveOption {
	return func(c *resolveConfig) { c.allowSellers = true }
}

// Resolver computes resolved store contexts.
type Resolver struct {
	stores  StoreLookup
	guard   KeyAccessGuard
	log     *observability.Logger
	metrics *observability.Metrics
}

// NewResolver creates a store context resolver. metrics may be nil.
func NewResolver(stores StoreLookup, guard KeyAccessGuard, log *observability.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{stores: stores, guard: guard, log: log, metrics: metrics}
}

// ResolveContext computes the effective store scope for the request.
// It is side-effect-free: resolving the same inputs twice yields identical
// results.
func (r *Resolver) ResolveContext(ctx context.Context, p tenancy.Principal, requestedStoreID string, mode Mode, opts ...ResolveOption) (tenancy.ResolvedContext, error) {
	var cfg resolveConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	switch p.Role {
	case tenancy.RoleManager:
		return r.resolveStaff(ctx, p)
	case tenancy.RoleOwner:
		return r.resolveOwner(ctx, p, requestedStoreID, mode)
	case tenancy.RoleSeller:
		if !cfg.allowSellers {
			return tenancy.ResolvedContext{}, autherr.Forbidden("sellers cannot access this resource")
		}
		return r.resolveStaff(ctx, p)
	case tenancy.RoleAPIKey:
		return r.resolveAPIKey(ctx, p, requestedStoreID, mode)
	default:
		// A role that was never normalized reaching this point is a
		// programming error upstream. Fail closed.
		return tenancy.ResolvedContext{}, autherr.Forbidden(fmt.Sprintf("role %q cannot resolve a store context", p.Role))
	}
}

// resolveStaff scopes a manager or seller to their own assigned store. Any
// requested store id was already ignored by the caller switch: staff can
// never widen their own scope. The assignment is re-verified against the
// live store record on every resolution; the staff row alone is never
// trusted.
func (r *Resolver) resolveStaff(ctx context.Context, p tenancy.Principal) (tenancy.ResolvedContext, error) {
	if p.StoreID == "" {
		// Data-integrity failure, not an authorization failure.
		return tenancy.ResolvedContext{}, autherr.Validation("staff member has no assigned store")
	}

	store, err := r.stores.FindStoreByID(ctx, p.StoreID)
	if err != nil {
		return tenancy.ResolvedContext{}, fmt.Errorf("failed to look up store: %w", err)
	}
	if store == nil || !store.Active {
		// An inactive store does not exist for resolution purposes. Staff
		// of a closed store lose access until reassigned.
		return tenancy.ResolvedContext{}, autherr.NotFound("store not found")
	}
	if store.TenantID != p.TenantID {
		// A staff record pointing into another tenant is corrupt data.
		r.log.WithFields(map[string]interface{}{
			"principal_id": p.ID,
			"store_id":     p.StoreID,
			"tenant_id":    p.TenantID,
		}).Error("staff store assignment crosses tenants")
		return tenancy.ResolvedContext{}, autherr.Configuration("staff store assignment is invalid")
	}

	return r.resolved(tenancy.ResolvedContext{
		Principal: p,
		StoreID:   p.StoreID,
		ViewMode:  tenancy.ViewSelf,
	}), nil
}

func (r *Resolver) resolveOwner(ctx context.Context, p tenancy.Principal, requestedStoreID string, mode Mode) (tenancy.ResolvedContext, error) {
	if requestedStoreID == "" {
		if mode == ModeRequired {
			return tenancy.ResolvedContext{}, autherr.Validation("store id is required")
		}
		return r.resolved(tenancy.ResolvedContext{
			Principal: p,
			ViewMode:  tenancy.ViewTenantOverview,
		}), nil
	}

	store, err := r.stores.FindStoreByID(ctx, requestedStoreID)
	if err != nil {
		// Unexpected lookup errors fail closed instead of degrading to
		// an overview.
		return tenancy.ResolvedContext{}, fmt.Errorf("failed to look up store: %w", err)
	}

	if reason := rejectReason(store, p.TenantID); reason != "" {
		log := r.log.WithFields(map[string]interface{}{
			"tenant_id": p.TenantID,
			"store_id":  requestedStoreID,
			"reason":    reason,
			"mode":      mode.String(),
		})
		if mode == ModeOptional {
			// Degrade gracefully: an owner browsing with an imprecise
			// store id gets the tenant overview. The caller cannot tell
			// a missing store from a foreign or inactive one.
			log.Debug("owner store request degraded to tenant overview")
			return r.resolved(tenancy.ResolvedContext{
				Principal: p,
				ViewMode:  tenancy.ViewTenantOverview,
			}), nil
		}
		// Uniform external error; the reason stays in the log so which
		// stores exist never leaks to the caller.
		log.Info("owner store request rejected")
		return tenancy.ResolvedContext{}, autherr.NotFound("store not found")
	}

	return r.resolved(tenancy.ResolvedContext{
		Principal: p,
		StoreID:   store.ID,
		ViewMode:  tenancy.ViewActingAsManager,
	}), nil
}

func (r *Resolver) resolveAPIKey(ctx context.Context, p tenancy.Principal, requestedStoreID string, mode Mode) (tenancy.ResolvedContext, error) {
	if p.Grant == nil {
		return tenancy.ResolvedContext{}, autherr.Configuration("api key principal has no grant")
	}

	if requestedStoreID == "" {
		if mode == ModeRequired {
			return tenancy.ResolvedContext{}, autherr.Validation("store id is required")
		}
		return r.resolved(tenancy.ResolvedContext{
			Principal: p,
			ViewMode:  tenancy.ViewTenantOverview,
		}), nil
	}

	store, err := r.guard.RequireStoreAccess(ctx, *p.Grant, requestedStoreID)
	if err != nil {
		// NotFound / Forbidden propagate unmodified; no downgrading.
		return tenancy.ResolvedContext{}, err
	}

	return r.resolved(tenancy.ResolvedContext{
		Principal: p,
		StoreID:   store.ID,
		ViewMode:  tenancy.ViewActingAsManager,
	}), nil
}

// rejectReason classifies why a store cannot serve an owner request, for
// logging only. An empty reason means the store is usable.
func rejectReason(store *tenancy.Store, tenantID string) string {
	switch {
	case store == nil:
		return "missing"
	case !store.Active:
		return "inactive"
	case store.TenantID != tenantID:
		return "foreign_tenant"
	default:
		return ""
	}
}

func (r *Resolver) resolved(rc tenancy.ResolvedContext) tenancy.ResolvedContext {
	if r.metrics != nil {
		r.metrics.StoreContextsTotal.WithLabelValues(string(rc.Principal.Role), string(rc.ViewMode)).Inc()
	}
	return rc
}
