package models

import "github.com/google/uuid"

// Room lifecycle event types published to the historian queue.
const (
	EventRoomCreated     = "room_created"
	EventRoomJoined      = "room_joined"
	EventRoomLeft        = "room_left"
	EventRoomStarted     = "room_started"
	EventRoomDisbanded   = "room_disbanded"
	EventResultSubmitted = "result_submitted"
)

// RoomEventRecord holds the minimal info needed by the historian service.
type RoomEventRecord struct {
	RoomID    uuid.UUID `json:"room_id"`
	UserID    uuid.UUID `json:"user_id"`
	LiveID    int64     `json:"live_id"`
	EventType string    `json:"event_type"`
	Timestamp int64     `json:"timestamp"`
}
