package repo

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all tenancy migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create tenants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenants (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					email TEXT,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
		{
			Version:     2,
			Description: "Create stores table",
			SQL: `
				CREATE TABLE IF NOT EXISTS stores (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL REFERENCES tenants(id),
					name TEXT NOT NULL,
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					deactivated_at TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_stores_tenant_id ON stores(tenant_id);
			`,
		},
		{
			Version:     3,
			Description: "Create staff_members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS staff_members (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL REFERENCES tenants(id),
					store_id TEXT NOT NULL REFERENCES stores(id),
					role TEXT NOT NULL,
					manager_id TEXT,
					email TEXT,
					full_name TEXT,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_staff_members_store_id ON staff_members(store_id);
				CREATE INDEX IF NOT EXISTS idx_staff_members_tenant_id ON staff_members(tenant_id);
			`,
		},
		{
			Version:     4,
			Description: "Create api_keys table",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_keys (
					id TEXT PRIMARY KEY,
					tenant_id TEXT,
					owner_user_id TEXT NOT NULL,
					name TEXT NOT NULL,
					secret_hash TEXT NOT NULL,
					secret_prefix TEXT NOT NULL,
					permissions TEXT NOT NULL DEFAULT '[]',
					store_ids TEXT,
					active BOOLEAN NOT NULL DEFAULT TRUE,
					expires_at TIMESTAMP,
					last_used_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_api_keys_secret_prefix ON api_keys(secret_prefix);
				CREATE INDEX IF NOT EXISTS idx_api_keys_tenant_id ON api_keys(tenant_id);
			`,
		},
		{
			Version:     5,
			Description: "Create resources table",
			SQL: `
				CREATE TABLE IF NOT EXISTS resources (
					type TEXT NOT NULL,
					id TEXT NOT NULL,
					store_id TEXT NOT NULL REFERENCES stores(id),
					tenant_id TEXT NOT NULL REFERENCES tenants(id),
					payload TEXT NOT NULL DEFAULT '{}',
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (type, id)
				);

				CREATE INDEX IF NOT EXISTS idx_resources_store_id ON resources(store_id);
			`,
		},
	}
}

// RunMigrations applies pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	// Create migrations tracking table
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tenancy_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Load applied versions
	rows, err := db.QueryContext(ctx, "SELECT version FROM tenancy_migrations")
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}
	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	rows.Close()

	// Run pending migrations
	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO tenancy_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
