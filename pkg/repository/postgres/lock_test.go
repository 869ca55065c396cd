package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockStoreTryAcquireReportsExclusionViaRowsAffected(t *testing.T) {
	db, mock := newMockStore(t)
	store := NewLockStore(db)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectExec(`INSERT INTO locks`).
		WithArgs("asset-1", "holder-a", now, now.Add(time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := store.TryAcquire(ctx, "asset-1", "holder-a", time.Minute, now)
	require.NoError(t, err)
	assert.True(t, ok)

	// A rival holder's conditional upsert affects zero rows when the
	// WHERE guard (expired or already this holder) doesn't hold.
	mock.ExpectExec(`INSERT INTO locks`).
		WithArgs("asset-1", "holder-b", now, now.Add(time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = store.TryAcquire(ctx, "asset-1", "holder-b", time.Minute, now)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockStoreReleaseByWrongHolderIsConflict(t *testing.T) {
	db, mock := newMockStore(t)
	store := NewLockStore(db)
	ctx := context.Background()

	mock.ExpectExec(`DELETE FROM locks`).
		WithArgs("asset-1", "holder-b").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT holder_id FROM locks WHERE lock_key = \$1`).
		WithArgs("asset-1").
		WillReturnRows(sqlmock.NewRows([]string{"holder_id"}).AddRow("holder-a"))

	err := store.Release(ctx, "asset-1", "holder-b")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
