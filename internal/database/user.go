package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sea314/gameserver/internal/models"
	"github.com/sea314/gameserver/internal/room"
)

// User operations of the room.Tx contract. Kept in their own file so the
// identity table's SQL lives apart from the room tables'.

func (t *roomTx) InsertUser(ctx context.Context, u *models.User) error {
	q := `INSERT INTO users (id, name, leader_card_id) VALUES ($1, $2, $3)`
	_, err := t.tx.Exec(ctx, q, u.ID, u.Name, u.LeaderCardID)
	return err
}

func (t *roomTx) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	q := `SELECT id, name, leader_card_id FROM users WHERE id = $1`
	err := t.tx.QueryRow(ctx, q, id).Scan(&u.ID, &u.Name, &u.LeaderCardID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, room.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (t *roomTx) UpdateUser(ctx context.Context, u *models.User) error {
	q := `UPDATE users SET name = $1, leader_card_id = $2 WHERE id = $3`
	tag, err := t.tx.Exec(ctx, q, u.Name, u.LeaderCardID, u.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return room.ErrUserNotFound
	}
	return nil
}
