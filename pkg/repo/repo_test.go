package repo

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailops/crewdeck/pkg/apikey"
	"github.com/retailops/crewdeck/pkg/ownership"
	"github.com/retailops/crewdeck/pkg/tenancy"
)

func setupTestRepo(t *testing.T) *Repo {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	// sqlite resets on each new connection to :memory:
	db.SetMaxOpenConns(1)

	require.NoError(t, RunMigrations(context.Background(), db))
	return New(db)
}

// seedTenantStore creates an active tenant with one active store.
func seedTenantStore(t *testing.T, r *Repo, tenantID, storeID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, r.CreateTenant(ctx, &tenancy.Tenant{ID: tenantID, Name: tenantID, IsActive: true}))
	require.NoError(t, r.CreateStore(ctx, &tenancy.Store{ID: storeID, TenantID: tenantID, Name: storeID, Active: true}))
}

func TestRunMigrationsIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, db))
	require.NoError(t, RunMigrations(ctx, db))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM tenancy_migrations").Scan(&count))
	assert.Equal(t, len(GetMigrations()), count)
}

func TestFindStoreByID(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	seedTenantStore(t, r, "tenant-1", "store-1")

	store, err := r.FindStoreByID(ctx, "store-1")
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, "tenant-1", store.TenantID)
	assert.True(t, store.Active)

	missing, err := r.FindStoreByID(ctx, "no-such-store")
	require.NoError(t, err)
	assert.Nil(t, missing, "missing store is (nil, nil), not an error")
}

func TestDeactivateStore(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	seedTenantStore(t, r, "tenant-1", "store-1")

	require.NoError(t, r.DeactivateStore(ctx, "store-1"))

	store, err := r.FindStoreByID(ctx, "store-1")
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.False(t, store.Active)
	assert.NotNil(t, store.DeactivatedAt)
}

func TestFindStaffByID(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	seedTenantStore(t, r, "tenant-1", "store-1")

	managerID := "mgr-1"
	require.NoError(t, r.CreateStaff(ctx, &tenancy.StaffMember{
		ID: "mgr-1", TenantID: "tenant-1", StoreID: "store-1",
		Role: tenancy.RoleManager, IsActive: true,
	}))
	require.NoError(t, r.CreateStaff(ctx, &tenancy.StaffMember{
		ID: "sel-1", TenantID: "tenant-1", StoreID: "store-1",
		Role: tenancy.RoleSeller, ManagerID: &managerID, IsActive: true,
	}))

	staff, err := r.FindStaffByID(ctx, "sel-1")
	require.NoError(t, err)
	require.NotNil(t, staff)
	assert.Equal(t, tenancy.RoleSeller, staff.Role)
	assert.Equal(t, "store-1", staff.StoreID)
	require.NotNil(t, staff.ManagerID)
	assert.Equal(t, "mgr-1", *staff.ManagerID)

	missing, err := r.FindStaffByID(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindAPIKeyCandidatesByPrefix(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	seedTenantStore(t, r, "tenant-1", "store-1")

	_, hash1, prefix, err := apikey.GenerateSecret()
	require.NoError(t, err)
	_, hash2, _, err := apikey.GenerateSecret()
	require.NoError(t, err)

	// Two keys sharing the same index prefix, one with another prefix.
	require.NoError(t, r.CreateAPIKey(ctx, &tenancy.APIKey{
		ID: "key-1", TenantID: "tenant-1", OwnerUserID: "tenant-1", Name: "a",
		SecretHash: hash1, SecretPrefix: prefix,
		Permissions: []tenancy.Scope{tenancy.ScopeStoresRead}, Active: true,
	}))
	require.NoError(t, r.CreateAPIKey(ctx, &tenancy.APIKey{
		ID: "key-2", TenantID: "tenant-1", OwnerUserID: "tenant-1", Name: "b",
		SecretHash: hash2, SecretPrefix: prefix,
		StoreIDs: []string{"store-1"}, Active: false,
	}))
	require.NoError(t, r.CreateAPIKey(ctx, &tenancy.APIKey{
		ID: "key-3", TenantID: "tenant-1", OwnerUserID: "tenant-1", Name: "c",
		SecretHash: hash2, SecretPrefix: "ck_other000", Active: true,
	}))

	keys, err := r.FindAPIKeyCandidatesByPrefix(ctx, prefix)
	require.NoError(t, err)
	require.Len(t, keys, 2, "inactive candidates are returned too")

	byID := map[string]*tenancy.APIKey{}
	for _, k := range keys {
		byID[k.ID] = k
	}
	assert.Equal(t, []tenancy.Scope{tenancy.ScopeStoresRead}, byID["key-1"].Permissions)
	assert.Nil(t, byID["key-1"].StoreIDs, "stored NULL reads back as unrestricted")
	assert.Equal(t, []string{"store-1"}, byID["key-2"].StoreIDs)
	assert.False(t, byID["key-2"].Active)
}

func TestFindAPIKeyCandidatesCorruptPermissions(t *testing.T) {
	// A permissions document that fails to parse must surface as an error,
	// not silently read back as a zero-scope key.
	r := setupTestRepo(t)
	ctx := context.Background()
	seedTenantStore(t, r, "tenant-1", "store-1")

	_, hash, prefix, err := apikey.GenerateSecret()
	require.NoError(t, err)
	require.NoError(t, r.CreateAPIKey(ctx, &tenancy.APIKey{
		ID: "key-1", TenantID: "tenant-1", OwnerUserID: "tenant-1", Name: "a",
		SecretHash: hash, SecretPrefix: prefix,
		Permissions: []tenancy.Scope{tenancy.ScopeStoresRead}, Active: true,
	}))

	_, err = r.db.ExecContext(ctx,
		`UPDATE api_keys SET permissions = '{not json' WHERE id = $1`, "key-1")
	require.NoError(t, err)

	keys, err := r.FindAPIKeyCandidatesByPrefix(ctx, prefix)
	require.Error(t, err)
	assert.Nil(t, keys)
	assert.Contains(t, err.Error(), "failed to unmarshal permissions")
}

func TestFindTenantIDForUser(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	seedTenantStore(t, r, "tenant-1", "store-1")
	require.NoError(t, r.CreateStaff(ctx, &tenancy.StaffMember{
		ID: "mgr-1", TenantID: "tenant-1", StoreID: "store-1",
		Role: tenancy.RoleManager, IsActive: true,
	}))

	// Owner account: the user id is the tenant id.
	tenantID, err := r.FindTenantIDForUser(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tenantID)

	// Staff resolve through their staff record.
	tenantID, err = r.FindTenantIDForUser(ctx, "mgr-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tenantID)

	// Unknown users derive nothing.
	tenantID, err = r.FindTenantIDForUser(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, "", tenantID)
}

func TestBackfillKeyTenantSetIfAbsent(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	seedTenantStore(t, r, "tenant-1", "store-1")

	_, hash, prefix, err := apikey.GenerateSecret()
	require.NoError(t, err)
	require.NoError(t, r.CreateAPIKey(ctx, &tenancy.APIKey{
		ID: "key-1", OwnerUserID: "tenant-1", Name: "legacy",
		SecretHash: hash, SecretPrefix: prefix, Active: true,
	}))

	require.NoError(t, r.BackfillKeyTenant(ctx, "key-1", "tenant-1"))
	// A later backfill with a different value must be a no-op.
	require.NoError(t, r.BackfillKeyTenant(ctx, "key-1", "tenant-other"))

	keys, err := r.FindAPIKeyCandidatesByPrefix(ctx, prefix)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "tenant-1", keys[0].TenantID)
}

func TestDeactivateKeyAndTouchUsage(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	seedTenantStore(t, r, "tenant-1", "store-1")

	_, hash, prefix, err := apikey.GenerateSecret()
	require.NoError(t, err)
	require.NoError(t, r.CreateAPIKey(ctx, &tenancy.APIKey{
		ID: "key-1", TenantID: "tenant-1", OwnerUserID: "tenant-1", Name: "k",
		SecretHash: hash, SecretPrefix: prefix, Active: true,
	}))

	usedAt := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	require.NoError(t, r.TouchKeyUsage(ctx, "key-1", usedAt))
	require.NoError(t, r.DeactivateKey(ctx, "key-1"))

	keys, err := r.FindAPIKeyCandidatesByPrefix(ctx, prefix)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.False(t, keys[0].Active)
	require.NotNil(t, keys[0].LastUsedAt)
	assert.True(t, keys[0].LastUsedAt.Equal(usedAt))
}

func TestDeactivateExpiredKeys(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	seedTenantStore(t, r, "tenant-1", "store-1")

	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	_, hash, prefix, err := apikey.GenerateSecret()
	require.NoError(t, err)
	require.NoError(t, r.CreateAPIKey(ctx, &tenancy.APIKey{
		ID: "expired", TenantID: "tenant-1", OwnerUserID: "tenant-1", Name: "a",
		SecretHash: hash, SecretPrefix: prefix, Active: true, ExpiresAt: &past,
	}))
	require.NoError(t, r.CreateAPIKey(ctx, &tenancy.APIKey{
		ID: "live", TenantID: "tenant-1", OwnerUserID: "tenant-1", Name: "b",
		SecretHash: hash, SecretPrefix: prefix, Active: true, ExpiresAt: &future,
	}))
	require.NoError(t, r.CreateAPIKey(ctx, &tenancy.APIKey{
		ID: "eternal", TenantID: "tenant-1", OwnerUserID: "tenant-1", Name: "c",
		SecretHash: hash, SecretPrefix: prefix, Active: true,
	}))

	count, err := r.DeactivateExpiredKeys(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	keys, err := r.FindAPIKeyCandidatesByPrefix(ctx, prefix)
	require.NoError(t, err)
	active := map[string]bool{}
	for _, k := range keys {
		active[k.ID] = k.Active
	}
	assert.False(t, active["expired"])
	assert.True(t, active["live"])
	assert.True(t, active["eternal"])
}

func TestFindResourceStoreScoped(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	seedTenantStore(t, r, "tenant-1", "store-1")
	require.NoError(t, r.CreateStore(ctx, &tenancy.Store{ID: "store-2", TenantID: "tenant-1", Name: "s2", Active: true}))

	require.NoError(t, r.CreateResource(ctx, &ownership.Resource{
		Type: ownership.ResourceObjective, ID: "obj-1",
		StoreID: "store-1", TenantID: "tenant-1",
		Payload: map[string]any{"target": float64(100)},
	}))

	res, err := r.FindResource(ctx, ownership.ResourceObjective, "obj-1", "store-1")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, float64(100), res.Payload["target"])

	// The same id read from another store yields nothing: the store filter
	// is part of the read, not a post-check.
	res, err = r.FindResource(ctx, ownership.ResourceObjective, "obj-1", "store-2")
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = r.FindResource(ctx, ownership.ResourceSale, "obj-1", "store-1")
	require.NoError(t, err)
	assert.Nil(t, res, "type is part of the key")
}
