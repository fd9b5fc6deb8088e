// internal/room/memstore.go
package room

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sea314/gameserver/internal/models"
)

// MemStore is an in-memory Store used by tests and when the server runs
// without a configured database. A single mutex serializes transactions,
// which gives the same observable admission semantics as the row lock: at
// most one transaction at a time touches a room's joined count.
type MemStore struct {
	mu      sync.Mutex
	users   map[uuid.UUID]models.User
	rooms   map[uuid.UUID]models.Room
	members map[uuid.UUID][]models.RoomMember
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		users:   make(map[uuid.UUID]models.User),
		rooms:   make(map[uuid.UUID]models.Room),
		members: make(map[uuid.UUID][]models.RoomMember),
	}
}

// RunTx runs fn against a deep copy of the store state. The copy replaces
// the live state only if fn returns nil, so any error rolls back every
// write the callback made.
func (s *MemStore) RunTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		users:   cloneUsers(s.users),
		rooms:   cloneRooms(s.rooms),
		members: cloneMembers(s.members),
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.users = tx.users
	s.rooms = tx.rooms
	s.members = tx.members
	return nil
}

type memTx struct {
	users   map[uuid.UUID]models.User
	rooms   map[uuid.UUID]models.Room
	members map[uuid.UUID][]models.RoomMember
}

func (t *memTx) InsertUser(_ context.Context, u *models.User) error {
	if _, ok := t.users[u.ID]; ok {
		return fmt.Errorf("duplicate user id %v", u.ID)
	}
	t.users[u.ID] = *u
	return nil
}

func (t *memTx) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := t.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (t *memTx) UpdateUser(_ context.Context, u *models.User) error {
	if _, ok := t.users[u.ID]; !ok {
		return ErrUserNotFound
	}
	t.users[u.ID] = *u
	return nil
}

func (t *memTx) CreateRoom(_ context.Context, r *models.Room) error {
	if _, ok := t.rooms[r.ID]; ok {
		return fmt.Errorf("duplicate room id %v", r.ID)
	}
	t.rooms[r.ID] = *r
	return nil
}

func (t *memTx) GetRoom(_ context.Context, id uuid.UUID) (*models.Room, error) {
	r, ok := t.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return &r, nil
}

func (t *memTx) LockRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	// The store mutex already grants exclusive access for the whole
	// transaction, so the lock read is a plain read here.
	return t.GetRoom(ctx, id)
}

func (t *memTx) ListOpenRooms(_ context.Context, liveID int64) ([]models.RoomInfo, error) {
	var infos []models.RoomInfo
	for _, r := range t.rooms {
		if r.Status != models.RoomOpen || r.JoinedUserCount >= r.MaxUserCount {
			continue
		}
		if liveID != models.LiveIDNull && r.LiveID != liveID {
			continue
		}
		infos = append(infos, models.RoomInfo{
			RoomID:          r.ID,
			LiveID:          r.LiveID,
			JoinedUserCount: r.JoinedUserCount,
			MaxUserCount:    r.MaxUserCount,
		})
	}
	return infos, nil
}

func (t *memTx) SetRoomStatus(_ context.Context, id uuid.UUID, status models.RoomStatus) error {
	if r, ok := t.rooms[id]; ok {
		r.Status = status
		t.rooms[id] = r
	}
	return nil
}

func (t *memTx) IncrementJoined(_ context.Context, id uuid.UUID) error {
	if r, ok := t.rooms[id]; ok {
		r.JoinedUserCount++
		t.rooms[id] = r
	}
	return nil
}

func (t *memTx) DecrementJoined(_ context.Context, id uuid.UUID) error {
	if r, ok := t.rooms[id]; ok {
		r.JoinedUserCount--
		t.rooms[id] = r
	}
	return nil
}

func (t *memTx) DeleteRoom(_ context.Context, id uuid.UUID) error {
	delete(t.rooms, id)
	delete(t.members, id)
	return nil
}

func (t *memTx) InsertRoomUser(_ context.Context, m *models.RoomMember) error {
	for _, existing := range t.members[m.RoomID] {
		if existing.UserID == m.UserID {
			return fmt.Errorf("duplicate membership (%v, %v)", m.RoomID, m.UserID)
		}
	}
	t.members[m.RoomID] = append(t.members[m.RoomID], cloneMember(*m))
	return nil
}

func (t *memTx) ListRoomUsers(_ context.Context, roomID uuid.UUID) ([]models.RoomMember, error) {
	rows := t.members[roomID]
	out := make([]models.RoomMember, 0, len(rows))
	// Host first, then insertion order. The host is inserted first at
	// creation, so insertion order already satisfies this; keep the
	// explicit pass in case that ever changes.
	for _, m := range rows {
		if m.IsHost {
			out = append(out, t.joined(m))
		}
	}
	for _, m := range rows {
		if !m.IsHost {
			out = append(out, t.joined(m))
		}
	}
	return out, nil
}

// joined fills in the user columns the SQL implementation gets from a JOIN.
func (t *memTx) joined(m models.RoomMember) models.RoomMember {
	c := cloneMember(m)
	if u, ok := t.users[m.UserID]; ok {
		c.Name = u.Name
		c.LeaderCardID = u.LeaderCardID
	}
	return c
}

func (t *memTx) DeleteRoomUser(_ context.Context, roomID, userID uuid.UUID) error {
	rows := t.members[roomID]
	for i, m := range rows {
		if m.UserID == userID {
			t.members[roomID] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (t *memTx) CountUserMemberships(_ context.Context, userID uuid.UUID) (int, error) {
	n := 0
	for _, rows := range t.members {
		for _, m := range rows {
			if m.UserID == userID {
				n++
			}
		}
	}
	return n, nil
}

func (t *memTx) SetResult(_ context.Context, roomID, userID uuid.UUID, score int64, judgeCounts []int) error {
	rows := t.members[roomID]
	for i, m := range rows {
		if m.UserID == userID {
			sc := score
			rows[i].Score = &sc
			rows[i].JudgeCountList = append([]int(nil), judgeCounts...)
			return nil
		}
	}
	return nil
}

func cloneUsers(src map[uuid.UUID]models.User) map[uuid.UUID]models.User {
	dst := make(map[uuid.UUID]models.User, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneRooms(src map[uuid.UUID]models.Room) map[uuid.UUID]models.Room {
	dst := make(map[uuid.UUID]models.Room, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneMembers(src map[uuid.UUID][]models.RoomMember) map[uuid.UUID][]models.RoomMember {
	dst := make(map[uuid.UUID][]models.RoomMember, len(src))
	for k, rows := range src {
		cp := make([]models.RoomMember, len(rows))
		for i, m := range rows {
			cp[i] = cloneMember(m)
		}
		dst[k] = cp
	}
	return dst
}

func cloneMember(m models.RoomMember) models.RoomMember {
	if m.Score != nil {
		sc := *m.Score
		m.Score = &sc
	}
	if m.JudgeCountList != nil {
		m.JudgeCountList = append([]int(nil), m.JudgeCountList...)
	}
	return m
}
