// internal/room/service_test.go
package room

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sea314/gameserver/internal/auth"
	"github.com/sea314/gameserver/internal/models"
)

// eventRecorder collects published events instead of sending them to Redis.
type eventRecorder struct {
	mu     sync.Mutex
	events []models.RoomEventRecord
}

func (er *eventRecorder) PublishRoomEvent(_ context.Context, rec models.RoomEventRecord) error {
	er.mu.Lock()
	defer er.mu.Unlock()
	er.events = append(er.events, rec)
	return nil
}

func (er *eventRecorder) types() []string {
	er.mu.Lock()
	defer er.mu.Unlock()
	out := make([]string, len(er.events))
	for i, ev := range er.events {
		out[i] = ev.EventType
	}
	return out
}

func newTestService(t *testing.T) (*Service, *eventRecorder) {
	t.Helper()
	auth.Init()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	rec := &eventRecorder{}
	return NewService(NewMemStore(), auth.TokenAuthority{}, rec, logger), rec
}

func createTestUser(t *testing.T, svc *Service, name string) string {
	t.Helper()
	token, err := svc.CreateUser(context.Background(), name, 1000)
	require.NoError(t, err, "CreateUser(%s) failed", name)
	return token
}

// TestRoomScenario walks the whole lifecycle: create, list, fill to
// capacity, reject the fifth joiner, start, submit results, aggregate.
func TestRoomScenario(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	hostToken := createTestUser(t, svc, "host")
	roomID, err := svc.CreateRoom(ctx, hostToken, 1001, models.DifficultyNormal)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, roomID)

	infos, err := svc.ListRooms(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, roomID, infos[0].RoomID)
	assert.Equal(t, 1, infos[0].JoinedUserCount)
	assert.Equal(t, models.MaxRoomUserCount, infos[0].MaxUserCount)

	// listing a different live excludes the room; the null live id includes it
	infos, err = svc.ListRooms(ctx, 9999)
	require.NoError(t, err)
	assert.Empty(t, infos)
	infos, err = svc.ListRooms(ctx, models.LiveIDNull)
	require.NoError(t, err)
	assert.Len(t, infos, 1)

	var guestTokens []string
	for i := 0; i < 3; i++ {
		token := createTestUser(t, svc, fmt.Sprintf("guest_%d", i))
		guestTokens = append(guestTokens, token)
		result, err := svc.JoinRoom(ctx, token, roomID, models.DifficultyHard)
		require.NoError(t, err)
		assert.Equal(t, models.JoinOk, result, "guest %d should be admitted", i)
	}

	// room is at capacity: fifth user is rejected and the room drops out of listings
	lateToken := createTestUser(t, svc, "late")
	result, err := svc.JoinRoom(ctx, lateToken, roomID, models.DifficultyNormal)
	require.NoError(t, err)
	assert.Equal(t, models.JoinRoomFull, result)

	infos, err = svc.ListRooms(ctx, 1001)
	require.NoError(t, err)
	assert.Empty(t, infos)

	// wait shows all four members, is_me and is_host set correctly
	wait, err := svc.WaitRoom(ctx, guestTokens[0], roomID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitWaiting, wait.Status)
	require.Len(t, wait.RoomUserList, 4)
	assert.True(t, wait.RoomUserList[0].IsHost, "host must come first")
	meCount := 0
	for _, ru := range wait.RoomUserList {
		if ru.IsMe {
			meCount++
			assert.False(t, ru.IsHost)
		}
	}
	assert.Equal(t, 1, meCount)

	require.NoError(t, svc.StartRoom(ctx, hostToken, roomID))
	// starting an already playing room is a no-op success
	require.NoError(t, svc.StartRoom(ctx, hostToken, roomID))

	wait, err = svc.WaitRoom(ctx, hostToken, roomID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitLiveStart, wait.Status)

	// a playing room admits nobody
	result, err = svc.JoinRoom(ctx, lateToken, roomID, models.DifficultyNormal)
	require.NoError(t, err)
	assert.Equal(t, models.JoinRoomFull, result)

	// results stay incomplete until the last member submits
	judges := []int{1111, 222, 33, 44, 5}
	for i, token := range guestTokens {
		require.NoError(t, svc.EndRoom(ctx, token, roomID, int64(2000+i), judges))
		_, complete, err := svc.ResultRoom(ctx, roomID)
		require.NoError(t, err)
		assert.False(t, complete, "results must be incomplete with %d of 4 submitted", i+1)
	}
	require.NoError(t, svc.EndRoom(ctx, hostToken, roomID, 1234, judges))

	results, complete, err := svc.ResultRoom(ctx, roomID)
	require.NoError(t, err)
	require.True(t, complete)
	require.Len(t, results, 4)
	// host first, then join order
	assert.Equal(t, int64(1234), results[0].Score)
	for i := 1; i < 4; i++ {
		assert.Equal(t, int64(2000+i-1), results[i].Score)
	}
	assert.Equal(t, judges, results[0].JudgeCountList)
}

// TestJoinConcurrentAdmission races more joiners than free slots against
// one room: exactly as many must be admitted as slots exist, the rest get
// RoomFull, and the member count must match the joined count.
func TestJoinConcurrentAdmission(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	hostToken := createTestUser(t, svc, "host")
	roomID, err := svc.CreateRoom(ctx, hostToken, 55, models.DifficultyNormal)
	require.NoError(t, err)

	const joiners = 10
	freeSlots := models.MaxRoomUserCount - 1

	tokens := make([]string, joiners)
	for i := range tokens {
		tokens[i] = createTestUser(t, svc, fmt.Sprintf("racer_%d", i))
	}

	results := make(chan models.JoinRoomResult, joiners)
	var wg sync.WaitGroup
	for _, token := range tokens {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			res, err := svc.JoinRoom(ctx, token, roomID, models.DifficultyHard)
			assert.NoError(t, err)
			results <- res
		}(token)
	}
	wg.Wait()
	close(results)

	ok, full := 0, 0
	for res := range results {
		switch res {
		case models.JoinOk:
			ok++
		case models.JoinRoomFull:
			full++
		default:
			t.Fatalf("unexpected join result %v", res)
		}
	}
	assert.Equal(t, freeSlots, ok, "exactly one admission per free slot")
	assert.Equal(t, joiners-freeSlots, full)

	wait, err := svc.WaitRoom(ctx, hostToken, roomID)
	require.NoError(t, err)
	assert.Len(t, wait.RoomUserList, models.MaxRoomUserCount,
		"joined count and membership count must agree")
}

// TestJoinDisbandedRoom verifies the lock attempt observing an absent row
// maps to the Disbanded outcome, not an error.
func TestJoinDisbandedRoom(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	hostToken := createTestUser(t, svc, "host")
	roomID, err := svc.CreateRoom(ctx, hostToken, 7, models.DifficultyNormal)
	require.NoError(t, err)

	// departing host disbands the room
	require.NoError(t, svc.LeaveRoom(ctx, hostToken, roomID))

	guestToken := createTestUser(t, svc, "guest")
	result, err := svc.JoinRoom(ctx, guestToken, roomID, models.DifficultyNormal)
	require.NoError(t, err)
	assert.Equal(t, models.JoinDisbanded, result)

	wait, err := svc.WaitRoom(ctx, guestToken, roomID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitDissolution, wait.Status)
	assert.Empty(t, wait.RoomUserList)
}

// TestJoinWhileSeatedElsewhere exercises the post-insert consistency check:
// a user already seated in one room must not end up seated in a second, and
// the failed join must leave no partial writes behind.
func TestJoinWhileSeatedElsewhere(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	hostA := createTestUser(t, svc, "host_a")
	hostB := createTestUser(t, svc, "host_b")
	roomA, err := svc.CreateRoom(ctx, hostA, 1, models.DifficultyNormal)
	require.NoError(t, err)
	roomB, err := svc.CreateRoom(ctx, hostB, 1, models.DifficultyNormal)
	require.NoError(t, err)

	guest := createTestUser(t, svc, "guest")
	result, err := svc.JoinRoom(ctx, guest, roomA, models.DifficultyNormal)
	require.NoError(t, err)
	require.Equal(t, models.JoinOk, result)

	result, err = svc.JoinRoom(ctx, guest, roomB, models.DifficultyNormal)
	require.NoError(t, err)
	assert.Equal(t, models.JoinOtherError, result)

	// the rolled back join left room B untouched
	wait, err := svc.WaitRoom(ctx, hostB, roomB)
	require.NoError(t, err)
	assert.Len(t, wait.RoomUserList, 1)

	infos, err := svc.ListRooms(ctx, 1)
	require.NoError(t, err)
	for _, info := range infos {
		if info.RoomID == roomB {
			assert.Equal(t, 1, info.JoinedUserCount)
		}
	}
}

// TestWaitUnknownRoom: polling a room that never existed is Dissolution,
// not a failure.
func TestWaitUnknownRoom(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	token := createTestUser(t, svc, "poller")
	wait, err := svc.WaitRoom(ctx, token, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, models.WaitDissolution, wait.Status)
	assert.Empty(t, wait.RoomUserList)
}

// TestLeaveGuestFreesSlot: a departing guest decrements the joined count
// and the slot becomes admittable again.
func TestLeaveGuestFreesSlot(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	hostToken := createTestUser(t, svc, "host")
	roomID, err := svc.CreateRoom(ctx, hostToken, 3, models.DifficultyNormal)
	require.NoError(t, err)

	var tokens []string
	for i := 0; i < 3; i++ {
		token := createTestUser(t, svc, fmt.Sprintf("guest_%d", i))
		tokens = append(tokens, token)
		result, err := svc.JoinRoom(ctx, token, roomID, models.DifficultyNormal)
		require.NoError(t, err)
		require.Equal(t, models.JoinOk, result)
	}

	require.NoError(t, svc.LeaveRoom(ctx, tokens[0], roomID))

	infos, err := svc.ListRooms(ctx, 3)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 3, infos[0].JoinedUserCount)

	// the freed slot admits a new member, and the leaver can seat elsewhere
	rejoiner := createTestUser(t, svc, "rejoiner")
	result, err := svc.JoinRoom(ctx, rejoiner, roomID, models.DifficultyHard)
	require.NoError(t, err)
	assert.Equal(t, models.JoinOk, result)

	otherRoom, err := svc.CreateRoom(ctx, tokens[0], 4, models.DifficultyNormal)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, otherRoom)

	// leaving twice is a no-op success
	require.NoError(t, svc.LeaveRoom(ctx, tokens[0], roomID))
}

// TestEndRoomValidation rejects malformed judge lists and unknown rooms.
func TestEndRoomValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	token := createTestUser(t, svc, "player")
	roomID, err := svc.CreateRoom(ctx, token, 9, models.DifficultyNormal)
	require.NoError(t, err)

	err = svc.EndRoom(ctx, token, roomID, 100, []int{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidJudgeCounts)

	err = svc.EndRoom(ctx, token, uuid.New(), 100, []int{1, 2, 3, 4, 5})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

// TestInvalidToken: every credentialed operation rejects a garbage token
// with ErrInvalidToken.
func TestInvalidToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRoom(ctx, "garbage", 1, models.DifficultyNormal)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.JoinRoom(ctx, "garbage", uuid.New(), models.DifficultyNormal)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.WaitRoom(ctx, "garbage", uuid.New())
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.GetMe(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

// TestUserProfileUpdate: update is visible through GetMe and wait reads.
func TestUserProfileUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	token := createTestUser(t, svc, "before")
	require.NoError(t, svc.UpdateUser(ctx, token, "after", 2000))

	u, err := svc.GetMe(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "after", u.Name)
	assert.Equal(t, 2000, u.LeaderCardID)

	roomID, err := svc.CreateRoom(ctx, token, 2, models.DifficultyNormal)
	require.NoError(t, err)
	wait, err := svc.WaitRoom(ctx, token, roomID)
	require.NoError(t, err)
	require.Len(t, wait.RoomUserList, 1)
	assert.Equal(t, "after", wait.RoomUserList[0].Name)
	assert.Equal(t, 2000, wait.RoomUserList[0].LeaderCardID)
}

// TestLifecycleEvents: the publisher sees the expected event sequence.
func TestLifecycleEvents(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()

	hostToken := createTestUser(t, svc, "host")
	roomID, err := svc.CreateRoom(ctx, hostToken, 6, models.DifficultyNormal)
	require.NoError(t, err)

	guestToken := createTestUser(t, svc, "guest")
	result, err := svc.JoinRoom(ctx, guestToken, roomID, models.DifficultyHard)
	require.NoError(t, err)
	require.Equal(t, models.JoinOk, result)

	require.NoError(t, svc.StartRoom(ctx, hostToken, roomID))
	require.NoError(t, svc.EndRoom(ctx, hostToken, roomID, 10, []int{1, 2, 3, 4, 5}))
	require.NoError(t, svc.LeaveRoom(ctx, hostToken, roomID))

	assert.Equal(t, []string{
		models.EventRoomCreated,
		models.EventRoomJoined,
		models.EventRoomStarted,
		models.EventResultSubmitted,
		models.EventRoomDisbanded,
	}, rec.types())
}
