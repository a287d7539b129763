// Package repo implements the persistence collaborators of the
// authorization core over database/sql. Postgres backs production; tests
// run the same queries against in-memory sqlite.
//
// The resolvers only ever see the narrow CredentialStore, StoreLookup and
// ResourceLookup interfaces; nothing outside this package issues queries
// against the tenancy tables. That boundary is what keeps the cross-tenant
// filtering logic centralized and auditable.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/retailops/crewdeck/pkg/ownership"
	"github.com/retailops/crewdeck/pkg/tenancy"
)

// Repo provides SQL-backed lookups for the authorization core.
type Repo struct {
	db *sql.DB
}

// New creates a repository over an open database handle.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// CreateTenant inserts a tenant.
func (r *Repo) CreateTenant(ctx context.Context, t *tenancy.Tenant) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, email, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.Name, t.Email, t.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

// CreateStore inserts a store.
func (r *Repo) CreateStore(ctx context.Context, s *tenancy.Store) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stores (id, tenant_id, name, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.TenantID, s.Name, s.Active, now, now)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

// DeactivateStore soft-deactivates a store. Stores are never hard-deleted
// while resources reference them.
func (r *Repo) DeactivateStore(ctx context.Context, id string) error {
	now := time.Now()
	result, err := r.db.ExecContext(ctx, `
		UPDATE stores SET active = FALSE, deactivated_at = $1, updated_at = $2 WHERE id = $3
	`, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate store: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("store not found")
	}
	return nil
}

// FindStoreByID returns a store by id, or nil when it does not exist.
func (r *Repo) FindStoreByID(ctx context.Context, id string) (*tenancy.Store, error) {
	query := `
		SELECT id, tenant_id, name, active, created_at, updated_at, deactivated_at
		FROM stores
		WHERE id = $1
	`
	store := &tenancy.Store{}
	var deactivatedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&store.ID, &store.TenantID, &store.Name, &store.Active,
		&store.CreatedAt, &store.UpdatedAt, &deactivatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get store: %w", err)
	}
	if deactivatedAt.Valid {
		t := deactivatedAt.Time
		store.DeactivatedAt = &t
	}
	return store, nil
}

// CreateStaff inserts a staff member.
func (r *Repo) CreateStaff(ctx context.Context, m *tenancy.StaffMember) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO staff_members (id, tenant_id, store_id, role, manager_id, email, full_name, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, m.ID, m.TenantID, m.StoreID, m.Role, m.ManagerID, m.Email, m.FullName, m.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("failed to create staff member: %w", err)
	}
	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

// FindStaffByID returns a staff member by id, or nil when none exists.
func (r *Repo) FindStaffByID(ctx context.Context, id string) (*tenancy.StaffMember, error) {
	query := `
		SELECT id, tenant_id, store_id, role, manager_id, email, full_name, is_active, created_at, updated_at
		FROM staff_members
		WHERE id = $1
	`
	m := &tenancy.StaffMember{}
	var managerID sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.TenantID, &m.StoreID, &m.Role, &managerID,
		&m.Email, &m.FullName, &m.IsActive, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staff member: %w", err)
	}
	if managerID.Valid {
		s := managerID.String
		m.ManagerID = &s
	}
	return m, nil
}

// CreateAPIKey inserts an API key.
func (r *Repo) CreateAPIKey(ctx context.Context, k *tenancy.APIKey) error {
	permissionsJSON, err := json.Marshal(k.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	var storeIDsJSON interface{}
	if k.StoreIDs != nil {
		b, err := json.Marshal(k.StoreIDs)
		if err != nil {
			return fmt.Errorf("failed to marshal store ids: %w", err)
		}
		storeIDsJSON = string(b)
	}

	var tenantID interface{}
	if k.TenantID != "" {
		tenantID = k.TenantID
	}

	now := time.Now()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, tenant_id, owner_user_id, name, secret_hash, secret_prefix, permissions, store_ids, active, expires_at, last_used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, k.ID, tenantID, k.OwnerUserID, k.Name, k.SecretHash, k.SecretPrefix,
		string(permissionsJSON), storeIDsJSON, k.Active, k.ExpiresAt, k.LastUsedAt, now)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	k.CreatedAt = now
	return nil
}

// FindAPIKeyCandidatesByPrefix returns every key sharing a secret prefix.
func (r *Repo) FindAPIKeyCandidatesByPrefix(ctx context.Context, prefix string) ([]*tenancy.APIKey, error) {
	query := `
		SELECT id, tenant_id, owner_user_id, name, secret_hash, secret_prefix, permissions, store_ids, active, expires_at, last_used_at, created_at
		FROM api_keys
		WHERE secret_prefix = $1
	`
	rows, err := r.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query api key candidates: %w", err)
	}
	defer rows.Close()

	var keys []*tenancy.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// FindTenantIDForUser derives the tenant a user belongs to. A tenant owner
// account's id is the tenant id itself; staff resolve through their staff
// record. Returns "" when no tenant can be derived.
func (r *Repo) FindTenantIDForUser(ctx context.Context, userID string) (string, error) {
	var tenantID string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM tenants WHERE id = $1 AND is_active = TRUE`, userID,
	).Scan(&tenantID)
	if err == nil {
		return tenantID, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to look up tenant: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT tenant_id FROM staff_members WHERE id = $1`, userID,
	).Scan(&tenantID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up staff tenant: %w", err)
	}
	return tenantID, nil
}

// BackfillKeyTenant assigns a tenant to a key only if none is set yet.
// Concurrent backfills of the same key converge: the second write matches
// zero rows and is a no-op.
func (r *Repo) BackfillKeyTenant(ctx context.Context, keyID, tenantID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE api_keys
		SET tenant_id = $1
		WHERE id = $2 AND (tenant_id IS NULL OR tenant_id = '')
	`, tenantID, keyID)
	if err != nil {
		return fmt.Errorf("failed to backfill api key tenant: %w", err)
	}
	return nil
}

// DeactivateKey marks a key inactive.
func (r *Repo) DeactivateKey(ctx context.Context, keyID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE api_keys SET active = FALSE WHERE id = $1`, keyID)
	if err != nil {
		return fmt.Errorf("failed to deactivate api key: %w", err)
	}
	return nil
}

// TouchKeyUsage records the last-used timestamp for a key. Concurrent
// touches race harmlessly; last write wins.
func (r *Repo) TouchKeyUsage(ctx context.Context, keyID string, usedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, usedAt, keyID)
	if err != nil {
		return fmt.Errorf("failed to record api key usage: %w", err)
	}
	return nil
}

// DeactivateExpiredKeys marks every active key past its expiry inactive
// and returns how many were affected.
func (r *Repo) DeactivateExpiredKeys(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE api_keys
		SET active = FALSE
		WHERE active = TRUE AND expires_at IS NOT NULL AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired api keys: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected, nil
}

// CreateResource inserts a store-scoped business resource.
func (r *Repo) CreateResource(ctx context.Context, res *ownership.Resource) error {
	payloadJSON, err := json.Marshal(res.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO resources (type, id, store_id, tenant_id, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, res.Type, res.ID, res.StoreID, res.TenantID, string(payloadJSON), now, now)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}
	return nil
}

// FindResource returns one resource scoped to a store, or nil when no
// resource of that type and id exists under that store. The store filter
// is part of the read itself, never applied after the fact.
func (r *Repo) FindResource(ctx context.Context, typ ownership.ResourceType, id, storeID string) (*ownership.Resource, error) {
	query := `
		SELECT type, id, store_id, tenant_id, payload
		FROM resources
		WHERE type = $1 AND id = $2 AND store_id = $3
	`
	res := &ownership.Resource{}
	var payloadJSON string
	err := r.db.QueryRowContext(ctx, query, typ, id, storeID).Scan(
		&res.Type, &res.ID, &res.StoreID, &res.TenantID, &payloadJSON,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}

	if payloadJSON != "" {
		if err := json.Unmarshal([]byte(payloadJSON), &res.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}
	return res, nil
}

// scanAPIKey scans an api key from a database row
func scanAPIKey(scanner interface {
	Scan(dest ...interface{}) error
}) (*tenancy.APIKey, error) {
	var key tenancy.APIKey
	var tenantID sql.NullString
	var permissionsJSON string
	var storeIDsJSON sql.NullString
	var expiresAt, lastUsedAt sql.NullTime

	err := scanner.Scan(
		&key.ID,
		&tenantID,
		&key.OwnerUserID,
		&key.Name,
		&key.SecretHash,
		&key.SecretPrefix,
		&permissionsJSON,
		&storeIDsJSON,
		&key.Active,
		&expiresAt,
		&lastUsedAt,
		&key.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan api key: %w", err)
	}

	if tenantID.Valid {
		key.TenantID = tenantID.String
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		key.ExpiresAt = &t
	}
	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		key.LastUsedAt = &t
	}

	if permissionsJSON != "" {
		if err := json.Unmarshal([]byte(permissionsJSON), &key.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}
	if key.Permissions == nil {
		key.Permissions = []tenancy.Scope{}
	}

	// A stored NULL means unrestricted; an empty list means no stores.
	if storeIDsJSON.Valid && storeIDsJSON.String != "" {
		if err := json.Unmarshal([]byte(storeIDsJSON.String), &key.StoreIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal store ids: %w", err)
		}
		if key.StoreIDs == nil {
			key.StoreIDs = []string{}
		}
	}

	return &key, nil
}
