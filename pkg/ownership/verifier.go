// Package ownership verifies that a single resource is reachable from a
// resolved store context.
//
// Every "one resource under a store" route goes through the same generic
// choke point, so a new resource type inherits cross-tenant protection by
// construction instead of by convention. The verifier never trusts a
// resource's self-reported linkage fields: lookups are store-scoped reads
// against the repository, and the returned record is cross-checked again.
package ownership

import (
	"context"
	"fmt"

	"github.com/retailops/crewdeck/pkg/autherr"
	"github.com/retailops/crewdeck/pkg/tenancy"
)

// ResourceType names a class of store-scoped business resources.
type ResourceType string

const (
	ResourceSeller     ResourceType = "sellers"
	ResourceObjective  ResourceType = "objectives"
	ResourceChallenge  ResourceType = "challenges"
	ResourceDebrief    ResourceType = "debriefs"
	ResourceEvaluation ResourceType = "evaluations"
	ResourceSale       ResourceType = "sales"
)

// Resource is a generic view of a store-scoped business document. Payload
// carries the business fields this core has no opinion about.
type Resource struct {
	Type     ResourceType   `json:"type"`
	ID       string         `json:"id"`
	StoreID  string         `json:"store_id"`
	TenantID string         `json:"tenant_id"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// ResourceLookup loads one resource scoped to a store. Implementations
// must filter on both id and store id in the same read and return
// (nil, nil) when nothing matches.
type ResourceLookup interface {
	FindResource(ctx context.Context, typ ResourceType, id, storeID string) (*Resource, error)
}

// Verifier is the reusable ownership choke point.
type Verifier struct {
	resources ResourceLookup
}

// NewVerifier creates an ownership verifier.
func NewVerifier(resources ResourceLookup) *Verifier {
	return &Verifier{resources: resources}
}

// VerifyResourceInStore confirms that a resource of the given type exists
// under the resolved store and returns it.
//
// The caller must have required a concrete store before reaching here; an
// absent store id is a Validation failure. A resource that does not exist
// under that store is NotFound, whether it truly does not exist or lives
// under a store the caller cannot see.
func (v *Verifier) VerifyResourceInStore(ctx context.Context, typ ResourceType, resourceID, resolvedStoreID string) (*Resource, error) {
	if resolvedStoreID == "" {
		return nil, autherr.Validation("a concrete store is required for this resource")
	}
	if resourceID == "" {
		return nil, autherr.Validation("resource id is required")
	}

	res, err := v.resources.FindResource(ctx, typ, resourceID, resolvedStoreID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", typ, err)
	}
	if res == nil {
		return nil, autherr.NotFound(fmt.Sprintf("%s not found", typ))
	}

	// Stored linkage fields are a hint, not proof. A record the
	// repository returned for the wrong store is treated as absent.
	if res.StoreID != resolvedStoreID {
		return nil, autherr.NotFound(fmt.Sprintf("%s not found", typ))
	}

	return res, nil
}

// VerifySellerAccess is the seller-resource variant of the choke point.
// A seller principal may only verify itself; managers and owners must
// match on the resolved store.
func (v *Verifier) VerifySellerAccess(ctx context.Context, caller tenancy.Principal, sellerID string, rc tenancy.ResolvedContext) (*Resource, error) {
	if caller.Role == tenancy.RoleSeller && sellerID != caller.ID {
		return nil, autherr.Forbidden("sellers may only access their own record")
	}
	return v.VerifyResourceInStore(ctx, ResourceSeller, sellerID, rc.StoreID)
}
