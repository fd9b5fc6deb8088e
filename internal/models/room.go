package models

import "github.com/google/uuid"

const (
	// MaxRoomUserCount is the fixed room capacity for this game mode.
	MaxRoomUserCount = 4

	// LiveIDNull is the sentinel live id meaning "no track filter" in listings.
	LiveIDNull = 0

	// JudgeCountTiers is the number of judgment tiers in a submitted result,
	// ordered best to worst.
	JudgeCountTiers = 5
)

// LiveDifficulty is the difficulty a member selected for the session.
type LiveDifficulty int

const (
	DifficultyNormal LiveDifficulty = 1
	DifficultyHard   LiveDifficulty = 2
)

// Valid reports whether d is one of the defined difficulties.
func (d LiveDifficulty) Valid() bool {
	return d == DifficultyNormal || d == DifficultyHard
}

// RoomStatus is the persisted lifecycle state of a room. There is no
// dissolved status: a dissolved room is simply an absent row, observed by
// readers as Disbanded/Dissolution.
type RoomStatus string

const (
	RoomOpen    RoomStatus = "open"
	RoomPlaying RoomStatus = "playing"
)

// JoinRoomResult is the domain outcome of a join attempt. RoomFull and
// Disbanded are expected, frequent outcomes and are returned as values,
// never as errors.
type JoinRoomResult int

const (
	JoinOk         JoinRoomResult = 1
	JoinRoomFull   JoinRoomResult = 2
	JoinDisbanded  JoinRoomResult = 3
	JoinOtherError JoinRoomResult = 4
)

func (r JoinRoomResult) String() string {
	switch r {
	case JoinOk:
		return "ok"
	case JoinRoomFull:
		return "room_full"
	case JoinDisbanded:
		return "disbanded"
	default:
		return "other_error"
	}
}

// WaitRoomStatus is what a polling member observes while waiting for the
// session to begin.
type WaitRoomStatus int

const (
	WaitWaiting     WaitRoomStatus = 1
	WaitLiveStart   WaitRoomStatus = 2
	WaitDissolution WaitRoomStatus = 3
)

// Room is a row in the rooms table.
type Room struct {
	ID              uuid.UUID  `json:"room_id"`
	LiveID          int64      `json:"live_id"`
	JoinedUserCount int        `json:"joined_user_count"`
	MaxUserCount    int        `json:"max_user_count"`
	Status          RoomStatus `json:"status"`
}

// RoomInfo is the listing projection of an open room.
type RoomInfo struct {
	RoomID          uuid.UUID `json:"room_id"`
	LiveID          int64     `json:"live_id"`
	JoinedUserCount int       `json:"joined_user_count"`
	MaxUserCount    int       `json:"max_user_count"`
}

// RoomMember is a membership row joined to its user, including the optional
// submitted result. Score is nil until the member submits.
type RoomMember struct {
	RoomID           uuid.UUID      `json:"room_id"`
	UserID           uuid.UUID      `json:"user_id"`
	Name             string         `json:"name"`
	LeaderCardID     int            `json:"leader_card_id"`
	SelectDifficulty LiveDifficulty `json:"select_difficulty"`
	IsHost           bool           `json:"is_host"`
	Score            *int64         `json:"score,omitempty"`
	JudgeCountList   []int          `json:"judge_count_list,omitempty"`
}

// HasResult reports whether this member has submitted their play result.
func (m *RoomMember) HasResult() bool {
	return m.Score != nil
}

// RoomUser is the wait-room view of a member, annotated relative to the
// requesting user.
type RoomUser struct {
	UserID           uuid.UUID      `json:"user_id"`
	Name             string         `json:"name"`
	LeaderCardID     int            `json:"leader_card_id"`
	SelectDifficulty LiveDifficulty `json:"select_difficulty"`
	IsMe             bool           `json:"is_me"`
	IsHost           bool           `json:"is_host"`
}

// WaitRoomResult is the poll response for members waiting on a room.
type WaitRoomResult struct {
	Status       WaitRoomStatus `json:"status"`
	RoomUserList []RoomUser     `json:"room_user_list"`
}

// ResultUser is one member's aggregated play result.
type ResultUser struct {
	UserID         uuid.UUID `json:"user_id"`
	JudgeCountList []int     `json:"judge_count_list"`
	Score          int64     `json:"score"`
}
