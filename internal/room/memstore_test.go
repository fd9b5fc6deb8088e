// internal/room/memstore_test.go
package room

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sea314/gameserver/internal/models"
)

// TestMemStoreRollback: a failing transaction must leave no partial writes.
func TestMemStoreRollback(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	userID := uuid.New()
	roomID := uuid.New()
	require.NoError(t, store.RunTx(ctx, func(tx Tx) error {
		if err := tx.InsertUser(ctx, &models.User{ID: userID, Name: "u"}); err != nil {
			return err
		}
		return tx.CreateRoom(ctx, &models.Room{
			ID:              roomID,
			LiveID:          1,
			JoinedUserCount: 1,
			MaxUserCount:    models.MaxRoomUserCount,
			Status:          models.RoomOpen,
		})
	}))

	boom := errors.New("boom")
	err := store.RunTx(ctx, func(tx Tx) error {
		if err := tx.InsertRoomUser(ctx, &models.RoomMember{RoomID: roomID, UserID: userID}); err != nil {
			return err
		}
		if err := tx.IncrementJoined(ctx, roomID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, store.RunTx(ctx, func(tx Tx) error {
		r, err := tx.GetRoom(ctx, roomID)
		require.NoError(t, err)
		assert.Equal(t, 1, r.JoinedUserCount, "increment must have rolled back")

		members, err := tx.ListRoomUsers(ctx, roomID)
		require.NoError(t, err)
		assert.Empty(t, members, "insert must have rolled back")

		n, err := tx.CountUserMemberships(ctx, userID)
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	}))
}

// TestMemStoreNotFoundSentinels: absent rows surface the shared sentinels.
func TestMemStoreNotFoundSentinels(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	require.NoError(t, store.RunTx(ctx, func(tx Tx) error {
		_, err := tx.GetRoom(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrRoomNotFound)

		_, err = tx.LockRoom(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrRoomNotFound)

		_, err = tx.GetUser(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrUserNotFound)
		return nil
	}))
}
