package tenancy

import "time"

// Role is the closed set of principal roles. Raw role strings from
// credentials may come in locale variants; they are normalized into this
// enum exactly once, at principal-resolution time. Nothing else in the
// system compares raw role strings.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleSeller  Role = "seller"
	RoleAPIKey  Role = "api_key"
)

// ViewMode describes the shape of the store scope a request operates under.
type ViewMode string

const (
	// ViewSelf is a staff member acting on their own assigned store.
	ViewSelf ViewMode = "self"
	// ViewActingAsManager is an owner or API key operating on one
	// explicitly requested store of their tenant.
	ViewActingAsManager ViewMode = "acting_as_manager"
	// ViewTenantOverview is an owner browsing across all stores of the
	// tenant, with no single store selected.
	ViewTenantOverview ViewMode = "tenant_overview"
)

// Scope is an API-key permission scope, e.g. "stores:read".
type Scope string

const (
	ScopeStoresRead  Scope = "stores:read"
	ScopeStoresWrite Scope = "stores:write"
	ScopeUsersRead   Scope = "users:read"
	ScopeUsersWrite  Scope = "users:write"
	ScopeKPIRead     Scope = "kpis:read"
	ScopeKPIWrite    Scope = "kpis:write"
	// ScopeAll grants every permission scope.
	ScopeAll Scope = "*"
)

// StoreWildcard inside an API key's store allow-list grants access to
// every store of the key's tenant.
const StoreWildcard = "*"

// Tenant is the top of the ownership hierarchy. Its ID is both the tenant
// identifier and the ID of the human owner account.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store belongs to exactly one Tenant. An inactive store is treated as
// non-existent for all resolution purposes, not merely forbidden, so that
// lookups against it never leak its existence.
type Store struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	Name          string     `json:"name"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

// StaffMember is a manager or seller bound to exactly one Store. The
// ManagerID back-reference on sellers is informational and never an
// authorization boundary. Stored linkage fields are untrusted input to
// authorization; the resolvers re-verify them against live Store records.
type StaffMember struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	StoreID   string    `json:"store_id"`
	Role      Role      `json:"role"`
	ManagerID *string   `json:"manager_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	FullName  string    `json:"full_name,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// APIKey is a delegated machine credential owned by a Tenant.
//
// TenantID is the source of truth for the key's tenant binding and is
// immutable once assigned. A key created without one must be backfilled
// exactly once from its owning user, or deactivated if that is impossible.
// StoreIDs is an optional allow-list: nil means unrestricted within the
// tenant, and a list containing StoreWildcard is likewise unrestricted.
type APIKey struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id,omitempty"`
	OwnerUserID  string     `json:"owner_user_id"`
	Name         string     `json:"name"`
	SecretHash   string     `json:"-"` // never expose the hash
	SecretPrefix string     `json:"secret_prefix"`
	Permissions  []Scope    `json:"permissions"`
	StoreIDs     []string   `json:"store_ids,omitempty"`
	Active       bool       `json:"active"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Grant derives the key's authorization grant. The caller must only invoke
// it after the key's tenant binding has been established.
func (k *APIKey) Grant() KeyGrant {
	return KeyGrant{
		KeyID:       k.ID,
		TenantID:    k.TenantID,
		Permissions: k.Permissions,
		StoreIDs:    k.StoreIDs,
	}
}

// KeyGrant is the authorization payload of a verified API key: its tenant
// binding, permission scopes and optional store allow-list.
type KeyGrant struct {
	KeyID       string   `json:"key_id"`
	TenantID    string   `json:"tenant_id"`
	Permissions []Scope  `json:"permissions"`
	StoreIDs    []string `json:"store_ids,omitempty"`
}

// HasScope reports whether the grant carries the given permission scope.
// The ScopeAll wildcard satisfies every scope.
func (g KeyGrant) HasScope(scope Scope) bool {
	for _, s := range g.Permissions {
		if s == ScopeAll || s == scope {
			return true
		}
	}
	return false
}

// Unrestricted reports whether the grant's store allow-list places no
// restriction within the tenant: either no list was set, or the list
// contains the wildcard marker.
func (g KeyGrant) Unrestricted() bool {
	if g.StoreIDs == nil {
		return true
	}
	for _, id := range g.StoreIDs {
		if id == StoreWildcard {
			return true
		}
	}
	return false
}

// AllowsStore reports whether the allow-list admits the given store.
// It says nothing about the store's tenant; callers must verify tenant
// membership against the live store record first.
func (g KeyGrant) AllowsStore(storeID string) bool {
	if g.Unrestricted() {
		return true
	}
	for _, id := range g.StoreIDs {
		if id == storeID {
			return true
		}
	}
	return false
}

// Principal is the normalized view of the authenticated caller. It is
// derived per request and never persisted.
type Principal struct {
	ID       string    `json:"id"`
	Role     Role      `json:"role"`
	TenantID string    `json:"tenant_id"`
	StoreID  string    `json:"store_id,omitempty"` // staff only
	Grant    *KeyGrant `json:"grant,omitempty"`    // api_key only
}

// IsStaff reports whether the principal is a store-bound human.
func (p Principal) IsStaff() bool {
	return p.Role == RoleManager || p.Role == RoleSeller
}

// ResolvedContext is the effective store scope computed for one request.
// An empty StoreID together with ViewTenantOverview means the request
// operates across the whole tenant.
type ResolvedContext struct {
	Principal Principal `json:"principal"`
	StoreID   string    `json:"store_id,omitempty"`
	ViewMode  ViewMode  `json:"view_mode"`
}

// StoreScoped reports whether the context narrows to a single store.
func (rc ResolvedContext) StoreScoped() bool {
	return rc.StoreID != ""
}
