package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/execcore/pkg/shared/apperr"
)

func TestQueueStoreDequeueReturnsNilWhenEmpty(t *testing.T) {
	db, mock := newMockStore(t)
	store := NewQueueStore(db)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM queue_items`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows(nil))
	mock.ExpectRollback()

	item, err := store.Dequeue(ctx, "worker-1", time.Minute, now)
	require.NoError(t, err)
	assert.Nil(t, item)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueStoreDequeuePicksAndLeasesRow(t *testing.T) {
	db, mock := newMockStore(t)
	store := NewQueueStore(db)
	ctx := context.Background()
	now := time.Now()

	cols := []string{
		"item_id", "execution_id", "priority", "available_at",
		"lease_holder", "lease_expires_at", "attempt", "max_attempts", "enqueued_at",
	}
	rows := sqlmock.NewRows(cols).AddRow(
		"item-1", "exec-1", 5, now, "", nil, 0, 3, now,
	)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM queue_items`).WithArgs(now).WillReturnRows(rows)
	mock.ExpectExec(`UPDATE queue_items SET lease_holder`).
		WithArgs("item-1", "worker-1", now.Add(time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	item, err := store.Dequeue(ctx, "worker-1", time.Minute, now)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "item-1", item.ItemID)
	assert.Equal(t, "worker-1", item.LeaseHolder)
	assert.Equal(t, 1, item.Attempt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueStoreRenewLeaseUsesThreeArgsNotFour(t *testing.T) {
	db, mock := newMockStore(t)
	store := NewQueueStore(db)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectExec(`UPDATE queue_items SET lease_expires_at = \$3`).
		WithArgs("item-1", "worker-1", now.Add(time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.RenewLease(ctx, "item-1", "worker-1", time.Minute, now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueStoreRenewLeaseMismatchedHolderIsConflict(t *testing.T) {
	db, mock := newMockStore(t)
	store := NewQueueStore(db)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectExec(`UPDATE queue_items SET lease_expires_at = \$3`).
		WithArgs("item-1", "worker-2", now.Add(time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	cols := []string{
		"item_id", "execution_id", "priority", "available_at",
		"lease_holder", "lease_expires_at", "attempt", "max_attempts", "enqueued_at",
	}
	mock.ExpectQuery(`SELECT \* FROM queue_items WHERE item_id = \$1`).
		WithArgs("item-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("item-1", "exec-1", 5, now, "worker-1", now, 1, 3, now))

	err := store.RenewLease(ctx, "item-1", "worker-2", time.Minute, now)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}
