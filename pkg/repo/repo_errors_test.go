package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Driver-level failures are exercised against sqlmock; the sqlite tests
// cover the happy paths. Lookup errors must surface as errors, never as
// a nil "not found" result, so the resolvers can fail closed.

func TestFindStoreByIDQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM stores").
		WillReturnError(errors.New("connection reset"))

	store, getErr := New(db).FindStoreByID(context.Background(), "store-1")
	require.Error(t, getErr)
	assert.Nil(t, store)
	assert.Contains(t, getErr.Error(), "failed to get store")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindAPIKeyCandidatesQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM api_keys").
		WithArgs("abcd1234").
		WillReturnError(errors.New("connection reset"))

	keys, queryErr := New(db).FindAPIKeyCandidatesByPrefix(context.Background(), "abcd1234")
	require.Error(t, queryErr)
	assert.Nil(t, keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindAPIKeyCandidatesScanError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// One column short of what scanAPIKey expects.
	rows := sqlmock.NewRows([]string{"id", "tenant_id"}).AddRow("key-1", "tenant-1")
	mock.ExpectQuery("SELECT (.+) FROM api_keys").WillReturnRows(rows)

	keys, scanErr := New(db).FindAPIKeyCandidatesByPrefix(context.Background(), "abcd1234")
	require.Error(t, scanErr)
	assert.Nil(t, keys)
	assert.Contains(t, scanErr.Error(), "failed to scan api key")
}

func TestFindTenantIDForUserQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM tenants").
		WillReturnError(errors.New("connection reset"))

	tenantID, lookupErr := New(db).FindTenantIDForUser(context.Background(), "user-1")
	require.Error(t, lookupErr)
	assert.Empty(t, tenantID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBackfillKeyTenantExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE api_keys").
		WillReturnError(errors.New("connection reset"))

	backfillErr := New(db).BackfillKeyTenant(context.Background(), "key-1", "tenant-1")
	require.Error(t, backfillErr)
	assert.Contains(t, backfillErr.Error(), "failed to backfill api key tenant")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateExpiredKeysExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE api_keys").
		WillReturnError(errors.New("connection reset"))

	count, sweepErr := New(db).DeactivateExpiredKeys(context.Background(), time.Now())
	require.Error(t, sweepErr)
	assert.Zero(t, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
