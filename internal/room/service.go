// internal/room/service.go
package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sea314/gameserver/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrInvalidToken indicates the supplied credential did not resolve to a
// user. It is a precondition failure, distinct from the JoinRoomResult
// domain outcomes, and maps to an authorization failure at the API layer.
var ErrInvalidToken = errors.New("invalid token")

// ErrInvalidJudgeCounts indicates a submitted result did not carry exactly
// one count per judgment tier.
var ErrInvalidJudgeCounts = errors.New("judge count list must have one entry per tier")

// errRollback forces RunTx to roll back while the service returns a domain
// outcome instead of an error.
var errRollback = errors.New("rollback")

// Authenticator issues and verifies the opaque credentials carried by
// requests. Implemented by auth.TokenAuthority.
type Authenticator interface {
	Issue(userID uuid.UUID) (string, error)
	Verify(token string) (uuid.UUID, error)
}

// EventPublisher receives room lifecycle events after commit, best effort.
// Implemented by cache.QueuePublisher.
type EventPublisher interface {
	PublishRoomEvent(ctx context.Context, rec models.RoomEventRecord) error
}

// Service owns the room lifecycle: creation, admission, start, leaving,
// result submission, and the waiting/listing/result reads. Every operation
// runs in exactly one store transaction; the store transaction is the sole
// synchronization primitive, there is no in-process locking here.
type Service struct {
	store  Store
	auth   Authenticator
	events EventPublisher
	log    *logrus.Logger
}

// NewService builds a Service. events may be nil, in which case lifecycle
// events are not published.
func NewService(store Store, auth Authenticator, events EventPublisher, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.New()
	}
	return &Service{store: store, auth: auth, events: events, log: log}
}

// resolveUser verifies the credential and loads the identity row inside the
// given transaction. Any failure collapses to ErrInvalidToken.
func (s *Service) resolveUser(ctx context.Context, tx Tx, token string) (*models.User, error) {
	id, err := s.auth.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	u, err := tx.GetUser(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser registers a new identity and returns its credential.
func (s *Service) CreateUser(ctx context.Context, name string, leaderCardID int) (string, error) {
	u := &models.User{ID: uuid.New(), Name: name, LeaderCardID: leaderCardID}
	err := s.store.RunTx(ctx, func(tx Tx) error {
		return tx.InsertUser(ctx, u)
	})
	if err != nil {
		return "", fmt.Errorf("failed to insert user: %w", err)
	}
	return s.auth.Issue(u.ID)
}

// GetMe returns the identity behind a credential.
func (s *Service) GetMe(ctx context.Context, token string) (*models.User, error) {
	var u *models.User
	err := s.store.RunTx(ctx, func(tx Tx) error {
		var err error
		u, err = s.resolveUser(ctx, tx, token)
		return err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateUser replaces the caller's profile fields.
func (s *Service) UpdateUser(ctx context.Context, token, name string, leaderCardID int) error {
	return s.store.RunTx(ctx, func(tx Tx) error {
		u, err := s.resolveUser(ctx, tx, token)
		if err != nil {
			return err
		}
		u.Name = name
		u.LeaderCardID = leaderCardID
		return tx.UpdateUser(ctx, u)
	})
}

// CreateRoom creates a room for the given live with the caller seated as
// host. The room starts open with one occupied slot; capacity is fixed for
// the life of the room.
func (s *Service) CreateRoom(ctx context.Context, token string, liveID int64, difficulty models.LiveDifficulty) (uuid.UUID, error) {
	r := &models.Room{
		ID:              uuid.New(),
		LiveID:          liveID,
		JoinedUserCount: 1,
		MaxUserCount:    models.MaxRoomUserCount,
		Status:          models.RoomOpen,
	}
	var host *models.User
	err := s.store.RunTx(ctx, func(tx Tx) error {
		u, err := s.resolveUser(ctx, tx, token)
		if err != nil {
			return err
		}
		host = u
		if err := tx.CreateRoom(ctx, r); err != nil {
			return err
		}
		return tx.InsertRoomUser(ctx, &models.RoomMember{
			RoomID:           r.ID,
			UserID:           u.ID,
			SelectDifficulty: difficulty,
			IsHost:           true,
		})
	})
	if err != nil {
		return uuid.Nil, err
	}
	s.publish(ctx, models.RoomEventRecord{
		RoomID:    r.ID,
		UserID:    host.ID,
		LiveID:    liveID,
		EventType: models.EventRoomCreated,
	})
	return r.ID, nil
}

// ListRooms returns open rooms with spare capacity for the given live.
// liveID of models.LiveIDNull lists across all lives. Read-only, no locking.
func (s *Service) ListRooms(ctx context.Context, liveID int64) ([]models.RoomInfo, error) {
	var infos []models.RoomInfo
	err := s.store.RunTx(ctx, func(tx Tx) error {
		var err error
		infos, err = tx.ListOpenRooms(ctx, liveID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// JoinRoom runs the admission protocol. The capacity check happens after
// acquiring the row lock, never before: checking unlocked and then locking
// would let two joiners both observe one free slot and both insert. The
// lock is held until commit so no interleaving transaction can act on a
// stale joined count.
func (s *Service) JoinRoom(ctx context.Context, token string, roomID uuid.UUID, difficulty models.LiveDifficulty) (models.JoinRoomResult, error) {
	var (
		outcome = models.JoinOtherError
		user    *models.User
		liveID  int64
	)
	err := s.store.RunTx(ctx, func(tx Tx) error {
		u, err := s.resolveUser(ctx, tx, token)
		if err != nil {
			return err
		}
		user = u

		r, err := tx.LockRoom(ctx, roomID)
		if errors.Is(err, ErrRoomNotFound) {
			outcome = models.JoinDisbanded
			return errRollback
		}
		if err != nil {
			return err
		}
		liveID = r.LiveID

		if r.JoinedUserCount >= r.MaxUserCount || r.Status != models.RoomOpen {
			outcome = models.JoinRoomFull
			return errRollback
		}

		if err := tx.InsertRoomUser(ctx, &models.RoomMember{
			RoomID:           roomID,
			UserID:           u.ID,
			SelectDifficulty: difficulty,
			IsHost:           false,
		}); err != nil {
			return err
		}
		if err := tx.IncrementJoined(ctx, roomID); err != nil {
			return err
		}

		// Consistency assertion, not the capacity guard: the insert must
		// leave the user seated in exactly one live room system-wide.
		n, err := tx.CountUserMemberships(ctx, u.ID)
		if err != nil {
			return err
		}
		if n != 1 {
			outcome = models.JoinOtherError
			return errRollback
		}

		outcome = models.JoinOk
		return nil
	})
	if err != nil && !errors.Is(err, errRollback) {
		return models.JoinOtherError, err
	}
	if outcome == models.JoinOtherError {
		s.log.WithFields(logrus.Fields{
			"room_id": roomID,
			"user_id": user.ID,
		}).Warn("join rolled back: user seated in more than one room")
	}
	if outcome == models.JoinOk {
		s.publish(ctx, models.RoomEventRecord{
			RoomID:    roomID,
			UserID:    user.ID,
			LiveID:    liveID,
			EventType: models.EventRoomJoined,
		})
	}
	return outcome, nil
}

// WaitRoom is the poll read for seated members. A missing room is a normal
// outcome (Dissolution with an empty member list), never an error, because
// rooms dissolve while clients are polling.
func (s *Service) WaitRoom(ctx context.Context, token string, roomID uuid.UUID) (*models.WaitRoomResult, error) {
	res := &models.WaitRoomResult{RoomUserList: []models.RoomUser{}}
	err := s.store.RunTx(ctx, func(tx Tx) error {
		u, err := s.resolveUser(ctx, tx, token)
		if err != nil {
			return err
		}

		r, err := tx.GetRoom(ctx, roomID)
		if errors.Is(err, ErrRoomNotFound) {
			res.Status = models.WaitDissolution
			return nil
		}
		if err != nil {
			return err
		}

		members, err := tx.ListRoomUsers(ctx, roomID)
		if err != nil {
			return err
		}
		for _, m := range members {
			res.RoomUserList = append(res.RoomUserList, models.RoomUser{
				UserID:           m.UserID,
				Name:             m.Name,
				LeaderCardID:     m.LeaderCardID,
				SelectDifficulty: m.SelectDifficulty,
				IsMe:             m.UserID == u.ID,
				IsHost:           m.IsHost,
			})
		}
		if r.Status == models.RoomPlaying {
			res.Status = models.WaitLiveStart
		} else {
			res.Status = models.WaitWaiting
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// StartRoom transitions the room to playing. Host authorization is the API
// layer's concern and is not re-verified here. Starting an already playing
// room is a no-op success.
func (s *Service) StartRoom(ctx context.Context, token string, roomID uuid.UUID) error {
	var userID uuid.UUID
	err := s.store.RunTx(ctx, func(tx Tx) error {
		u, err := s.resolveUser(ctx, tx, token)
		if err != nil {
			return err
		}
		userID = u.ID
		return tx.SetRoomStatus(ctx, roomID, models.RoomPlaying)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, models.RoomEventRecord{
		RoomID:    roomID,
		UserID:    userID,
		EventType: models.EventRoomStarted,
	})
	return nil
}

// LeaveRoom removes the caller's seat. A departing host, or the last seated
// member, disbands the room: the row is deleted and later observers see
// Disbanded/Dissolution. Leaving a room that no longer exists, or that the
// caller is not seated in, is a no-op success.
func (s *Service) LeaveRoom(ctx context.Context, token string, roomID uuid.UUID) error {
	var (
		left      bool
		disbanded bool
		user      *models.User
		liveID    int64
	)
	err := s.store.RunTx(ctx, func(tx Tx) error {
		u, err := s.resolveUser(ctx, tx, token)
		if err != nil {
			return err
		}
		user = u

		r, err := tx.LockRoom(ctx, roomID)
		if errors.Is(err, ErrRoomNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		liveID = r.LiveID

		members, err := tx.ListRoomUsers(ctx, roomID)
		if err != nil {
			return err
		}
		var me *models.RoomMember
		for i := range members {
			if members[i].UserID == u.ID {
				me = &members[i]
				break
			}
		}
		if me == nil {
			return nil
		}

		left = true
		if me.IsHost || r.JoinedUserCount <= 1 {
			disbanded = true
			return tx.DeleteRoom(ctx, roomID)
		}
		if err := tx.DeleteRoomUser(ctx, roomID, u.ID); err != nil {
			return err
		}
		return tx.DecrementJoined(ctx, roomID)
	})
	if err != nil {
		return err
	}
	if !left {
		return nil
	}
	ev := models.EventRoomLeft
	if disbanded {
		ev = models.EventRoomDisbanded
	}
	s.publish(ctx, models.RoomEventRecord{
		RoomID:    roomID,
		UserID:    user.ID,
		LiveID:    liveID,
		EventType: ev,
	})
	return nil
}

// EndRoom records the caller's play result onto their membership row.
// judgeCounts is ordered best tier first and must have exactly
// models.JudgeCountTiers entries.
func (s *Service) EndRoom(ctx context.Context, token string, roomID uuid.UUID, score int64, judgeCounts []int) error {
	if len(judgeCounts) != models.JudgeCountTiers {
		return ErrInvalidJudgeCounts
	}
	var userID uuid.UUID
	err := s.store.RunTx(ctx, func(tx Tx) error {
		u, err := s.resolveUser(ctx, tx, token)
		if err != nil {
			return err
		}
		userID = u.ID
		if _, err := tx.GetRoom(ctx, roomID); err != nil {
			return err
		}
		return tx.SetResult(ctx, roomID, u.ID, score, judgeCounts)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, models.RoomEventRecord{
		RoomID:    roomID,
		UserID:    userID,
		EventType: models.EventResultSubmitted,
	})
	return nil
}

// ResultRoom aggregates results for a finished session. complete is false
// until every seated member has submitted; callers keep polling until it
// flips. When complete, entries are ordered host first, then join order.
func (s *Service) ResultRoom(ctx context.Context, roomID uuid.UUID) ([]models.ResultUser, bool, error) {
	var (
		results  []models.ResultUser
		complete bool
	)
	err := s.store.RunTx(ctx, func(tx Tx) error {
		members, err := tx.ListRoomUsers(ctx, roomID)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return nil
		}
		for _, m := range members {
			if !m.HasResult() {
				return nil
			}
		}
		complete = true
		for _, m := range members {
			results = append(results, models.ResultUser{
				UserID:         m.UserID,
				JudgeCountList: m.JudgeCountList,
				Score:          *m.Score,
			})
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return results, complete, nil
}

// publish sends a lifecycle event after the transaction committed, best
// effort. Event loss is tolerated; the queue is an analytics feed, not part
// of the room state machine.
func (s *Service) publish(ctx context.Context, rec models.RoomEventRecord) {
	if s.events == nil {
		return
	}
	rec.Timestamp = time.Now().UnixMilli()
	if err := s.events.PublishRoomEvent(ctx, rec); err != nil {
		s.log.WithFields(logrus.Fields{
			"room_id": rec.RoomID,
			"event":   rec.EventType,
		}).Warnf("failed to publish room event: %v", err)
	}
}
