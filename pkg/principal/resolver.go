package principal

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/retailops/crewdeck/pkg/apikey"
	"github.com/retailops/crewdeck/pkg/autherr"
	"github.com/retailops/crewdeck/pkg/observability"
	"github.com/retailops/crewdeck/pkg/tenancy"
)

// TokenClaims is the claims payload handed over by the opaque token
// authenticator. Signature and expiry verification happened before this
// point; the resolver only interprets the payload.
type TokenClaims struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	Email   string `json:"email,omitempty"`
}

// CredentialStore is the persistence collaborator of the resolver. The
// resolver never issues raw queries; these narrow lookups are all it may
// perform.
type CredentialStore interface {
	// FindStaffByID returns the staff record for an id, or nil when no
	// such staff member exists.
	FindStaffByID(ctx context.Context, id string) (*tenancy.StaffMember, error)

	// FindAPIKeyCandidatesByPrefix returns every stored key sharing the
	// given secret prefix, active or not.
	FindAPIKeyCandidatesByPrefix(ctx context.Context, prefix string) ([]*tenancy.APIKey, error)

	// FindTenantIDForUser derives the tenant a user belongs to: the user
	// id itself when the user is a tenant owner account, the staff
	// record's tenant otherwise. Returns "" when no tenant can be derived.
	FindTenantIDForUser(ctx context.Context, userID string) (string, error)

	// BackfillKeyTenant assigns a tenant to a key with set-if-absent
	// semantics, so concurrent backfills converge to a single value.
	BackfillKeyTenant(ctx context.Context, keyID, tenantID string) error

	// DeactivateKey marks a key inactive.
	DeactivateKey(ctx context.Context, keyID string) error

	// TouchKeyUsage records the last-used timestamp for a key.
	TouchKeyUsage(ctx context.Context, keyID string, usedAt time.Time) error
}

// NormalizeRole maps a raw credential role string onto the closed Role
// enum. Role strings arrive with locale variants from older clients; both
// spellings of a role must land on the same enum value. Raw strings are
// never compared anywhere past this function.
func NormalizeRole(raw string) (tenancy.Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "owner", "gerant", "gérant":
		return tenancy.RoleOwner, nil
	case "manager", "responsable":
		return tenancy.RoleManager, nil
	case "seller", "vendeur":
		return tenancy.RoleSeller, nil
	default:
		return "", autherr.Unauthenticated(fmt.Sprintf("unknown role %q", raw))
	}
}

// Resolver resolves raw credentials into principals.
type Resolver struct {
	creds   CredentialStore
	log     *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewResolver creates a principal resolver. metrics may be nil.
func NewResolver(creds CredentialStore, log *observability.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		creds:   creds,
		log:     log,
		metrics: metrics,
		now:     time.Now,
	}
}

// ResolveToken resolves verified bearer-token claims into a principal.
//
// Owners are their own tenant: tenant_id equals the principal id. Staff
// tenant and store bindings are read from the live staff record, never
// from the claims payload.
func (r *Resolver) ResolveToken(ctx context.Context, claims TokenClaims) (tenancy.Principal, error) {
	if claims.Subject == "" {
		return tenancy.Principal{}, r.deny("token", "", autherr.Unauthenticated("token has no subject"))
	}

	role, err := NormalizeRole(claims.Role)
	if err != nil {
		return tenancy.Principal{}, r.deny("token", "", err)
	}

	if role == tenancy.RoleOwner {
		p := tenancy.Principal{
			ID:       claims.Subject,
			Role:     tenancy.RoleOwner,
			TenantID: claims.Subject,
		}
		r.count("token", string(role), "ok")
		return p, nil
	}

	staff, err := r.creds.FindStaffByID(ctx, claims.Subject)
	if err != nil {
		return tenancy.Principal{}, fmt.Errorf("failed to look up staff member: %w", err)
	}
	if staff == nil || !staff.IsActive {
		return tenancy.Principal{}, r.deny("token", string(role), autherr.Unauthenticated("staff member not found or inactive"))
	}

	p := tenancy.Principal{
		ID:       staff.ID,
		Role:     role,
		TenantID: staff.TenantID,
		StoreID:  staff.StoreID,
	}
	r.count("token", string(role), "ok")
	return p, nil
}

// ResolveAPIKey resolves a raw API-key secret into a principal carrying a
// KeyGrant. The stored key's tenant_id is the source of truth for the
// grant's tenant binding; a key that was created without one is backfilled
// exactly once from its owning user, and deactivated when that is
// impossible.
func (r *Resolver) ResolveAPIKey(ctx context.Context, rawKey string) (tenancy.Principal, error) {
	if err := apikey.ValidateFormat(rawKey); err != nil {
		return tenancy.Principal{}, r.deny("api_key", "", autherr.Wrap(autherr.KindUnauthenticated, "malformed api key", err))
	}

	candidates, err := r.creds.FindAPIKeyCandidatesByPrefix(ctx, apikey.ExtractPrefix(rawKey))
	if err != nil {
		return tenancy.Principal{}, fmt.Errorf("failed to look up api key candidates: %w", err)
	}

	key := matchSecret(rawKey, candidates)
	if key == nil {
		r.countVerification("no_match")
		return tenancy.Principal{}, r.deny("api_key", "", autherr.Unauthenticated("unknown api key"))
	}
	r.countVerification("match")

	if !key.Active {
		return tenancy.Principal{}, r.deny("api_key", "", autherr.Unauthenticated("api key is inactive"))
	}
	if key.ExpiresAt != nil && !r.now().Before(*key.ExpiresAt) {
		return tenancy.Principal{}, r.deny("api_key", "", autherr.Unauthenticated("api key is expired"))
	}

	tenantID := key.TenantID
	if tenantID == "" {
		tenantID, err = r.backfillTenant(ctx, key)
		if err != nil {
			return tenancy.Principal{}, r.deny("api_key", "", err)
		}
	}

	r.touchUsage(ctx, key.ID)

	grant := tenancy.KeyGrant{
		KeyID:       key.ID,
		TenantID:    tenantID,
		Permissions: key.Permissions,
		StoreIDs:    key.StoreIDs,
	}
	p := tenancy.Principal{
		ID:       key.ID,
		Role:     tenancy.RoleAPIKey,
		TenantID: tenantID,
		Grant:    &grant,
	}
	r.count("api_key", string(tenancy.RoleAPIKey), "ok")
	return p, nil
}

// matchSecret compares the full secret hash against every candidate in
// constant time. It deliberately scans the whole slice without breaking on
// the first match: prefix collisions are expected, and short-circuiting
// would leak comparison order through timing.
func matchSecret(rawKey string, candidates []*tenancy.APIKey) *tenancy.APIKey {
	hash := []byte(apikey.HashSecret(rawKey))

	var matched *tenancy.APIKey
	for _, cand := range candidates {
		if subtle.ConstantTimeCompare(hash, []byte(cand.SecretHash)) == 1 && matched == nil {
			matched = cand
		}
	}
	return matched
}

// backfillTenant derives and persists the tenant binding for a legacy key
// that was stored without one. A key whose tenant cannot be derived is
// deactivated and the request fails closed: "unscoped" never means "full
// access".
func (r *Resolver) backfillTenant(ctx context.Context, key *tenancy.APIKey) (string, error) {
	log := r.log.WithField("key_id", key.ID)

	derived := ""
	if key.OwnerUserID != "" {
		var err error
		derived, err = r.creds.FindTenantIDForUser(ctx, key.OwnerUserID)
		if err != nil {
			return "", fmt.Errorf("failed to derive tenant for api key: %w", err)
		}
	}

	if derived == "" {
		if err := r.creds.DeactivateKey(ctx, key.ID); err != nil {
			log.WithError(err).Error("failed to deactivate unresolvable api key")
		}
		return "", autherr.Configuration("api key has no resolvable tenant")
	}

	// Set-if-absent: concurrent backfills of the same key converge to the
	// same derived value instead of alternating.
	if err := r.creds.BackfillKeyTenant(ctx, key.ID, derived); err != nil {
		return "", autherr.Wrap(autherr.KindConfiguration, "failed to persist api key tenant", err)
	}

	log.WithField("tenant_id", derived).Info("backfilled api key tenant")
	return derived, nil
}

// touchUsage records the key's last-used timestamp without blocking or
// failing the caller's success path.
func (r *Resolver) touchUsage(ctx context.Context, keyID string) {
	usedAt := r.now()
	bg := context.WithoutCancel(ctx)
	go func() {
		defer observability.RecoverPanic(r.log, "api key usage recording")

		ctx, cancel := context.WithTimeout(bg, 5*time.Second)
		defer cancel()
		if err := r.creds.TouchKeyUsage(ctx, keyID, usedAt); err != nil {
			r.log.WithError(err).WithField("key_id", keyID).Warn("failed to record api key usage")
		}
	}()
}

func (r *Resolver) deny(credential, role string, err error) error {
	outcome := string(autherr.KindOf(err))
	if outcome == "" {
		outcome = "error"
	}
	r.count(credential, role, outcome)
	return err
}

func (r *Resolver) count(credential, role, outcome string) {
	if r.metrics != nil {
		r.metrics.PrincipalResolutionsTotal.WithLabelValues(credential, role, outcome).Inc()
	}
}

func (r *Resolver) countVerification(outcome string) {
	if r.metrics != nil {
		r.metrics.KeyVerificationsTotal.WithLabelValues(outcome).Inc()
	}
}
