// internal/database/roomstore.go
package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sea314/gameserver/internal/models"
	"github.com/sea314/gameserver/internal/room"
)

// RoomStore is the Postgres implementation of room.Store. Each RunTx call
// is one transaction: begun on entry, committed when the callback returns
// nil, rolled back on any error. Row locks taken inside (FOR UPDATE) are
// released with the transaction on every exit path.
type RoomStore struct {
	pool *pgxpool.Pool
}

// NewRoomStore wraps the given pool. Pass database.DB after ConnectDB.
func NewRoomStore(pool *pgxpool.Pool) *RoomStore {
	return &RoomStore{pool: pool}
}

func (s *RoomStore) RunTx(ctx context.Context, fn func(tx room.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(&roomTx{tx: tx})
	})
}

// roomTx implements room.Tx over a single pgx transaction.
type roomTx struct {
	tx pgx.Tx
}

func (t *roomTx) CreateRoom(ctx context.Context, r *models.Room) error {
	q := `
	INSERT INTO rooms (id, live_id, joined_user_count, max_user_count, status)
	VALUES ($1, $2, $3, $4, $5)
	`
	_, err := t.tx.Exec(ctx, q, r.ID, r.LiveID, r.JoinedUserCount, r.MaxUserCount, r.Status)
	return err
}

const roomColumns = `id, live_id, joined_user_count, max_user_count, status`

func (t *roomTx) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	q := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`
	return t.scanRoom(t.tx.QueryRow(ctx, q, id))
}

func (t *roomTx) LockRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	// The lock attempt observes existence atomically with acquiring the
	// row lock; the lock is held until this transaction ends.
	q := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1 FOR UPDATE`
	return t.scanRoom(t.tx.QueryRow(ctx, q, id))
}

func (t *roomTx) scanRoom(row pgx.Row) (*models.Room, error) {
	var r models.Room
	err := row.Scan(&r.ID, &r.LiveID, &r.JoinedUserCount, &r.MaxUserCount, &r.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, room.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *roomTx) ListOpenRooms(ctx context.Context, liveID int64) ([]models.RoomInfo, error) {
	q := `
	SELECT id, live_id, joined_user_count, max_user_count
	FROM rooms
	WHERE status = 'open' AND joined_user_count < max_user_count
	`
	args := []any{}
	if liveID != models.LiveIDNull {
		q += ` AND live_id = $1`
		args = append(args, liveID)
	}
	q += ` ORDER BY created_at`

	rows, err := t.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []models.RoomInfo
	for rows.Next() {
		var info models.RoomInfo
		if err := rows.Scan(&info.RoomID, &info.LiveID, &info.JoinedUserCount, &info.MaxUserCount); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (t *roomTx) SetRoomStatus(ctx context.Context, id uuid.UUID, status models.RoomStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE rooms SET status = $1 WHERE id = $2`, status, id)
	return err
}

func (t *roomTx) IncrementJoined(ctx context.Context, id uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `UPDATE rooms SET joined_user_count = joined_user_count + 1 WHERE id = $1`, id)
	return err
}

func (t *roomTx) DecrementJoined(ctx context.Context, id uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `UPDATE rooms SET joined_user_count = joined_user_count - 1 WHERE id = $1`, id)
	return err
}

func (t *roomTx) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM room_users WHERE room_id = $1`, id); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	return err
}

func (t *roomTx) InsertRoomUser(ctx context.Context, m *models.RoomMember) error {
	q := `
	INSERT INTO room_users (room_id, user_id, select_difficulty, is_host)
	VALUES ($1, $2, $3, $4)
	`
	_, err := t.tx.Exec(ctx, q, m.RoomID, m.UserID, int(m.SelectDifficulty), m.IsHost)
	return err
}

func (t *roomTx) ListRoomUsers(ctx context.Context, roomID uuid.UUID) ([]models.RoomMember, error) {
	q := `
	SELECT ru.room_id, ru.user_id, u.name, u.leader_card_id,
	       ru.select_difficulty, ru.is_host, ru.score, ru.judge_counts
	FROM room_users ru
	JOIN users u ON ru.user_id = u.id
	WHERE ru.room_id = $1
	ORDER BY ru.is_host DESC, ru.joined_at
	`
	rows, err := t.tx.Query(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.RoomMember
	for rows.Next() {
		var (
			m           models.RoomMember
			difficulty  int
			judgeCounts []int32
		)
		err := rows.Scan(
			&m.RoomID, &m.UserID, &m.Name, &m.LeaderCardID,
			&difficulty, &m.IsHost, &m.Score, &judgeCounts,
		)
		if err != nil {
			return nil, err
		}
		m.SelectDifficulty = models.LiveDifficulty(difficulty)
		if judgeCounts != nil {
			m.JudgeCountList = make([]int, len(judgeCounts))
			for i, c := range judgeCounts {
				m.JudgeCountList[i] = int(c)
			}
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (t *roomTx) DeleteRoomUser(ctx context.Context, roomID, userID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM room_users WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	return err
}

func (t *roomTx) CountUserMemberships(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM room_users WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

func (t *roomTx) SetResult(ctx context.Context, roomID, userID uuid.UUID, score int64, judgeCounts []int) error {
	counts := make([]int32, len(judgeCounts))
	for i, c := range judgeCounts {
		counts[i] = int32(c)
	}
	q := `
	UPDATE room_users
	SET score = $1, judge_counts = $2
	WHERE room_id = $3 AND user_id = $4
	`
	_, err := t.tx.Exec(ctx, q, score, counts, roomID, userID)
	return err
}
