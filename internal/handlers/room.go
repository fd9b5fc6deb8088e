// internal/handlers/room.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/sea314/gameserver/internal/models"
	"github.com/sea314/gameserver/internal/room"
)

type createRoomRequest struct {
	LiveID           int64                 `json:"live_id"`
	SelectDifficulty models.LiveDifficulty `json:"select_difficulty"`
}

type createRoomResponse struct {
	RoomID uuid.UUID `json:"room_id"`
}

// CreateRoomHandler creates a room for a live with the caller as host.
func CreateRoomHandler(svc *room.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if !req.SelectDifficulty.Valid() {
			http.Error(w, "invalid select_difficulty", http.StatusBadRequest)
			return
		}

		roomID, err := svc.CreateRoom(r.Context(), token, req.LiveID, req.SelectDifficulty)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, createRoomResponse{RoomID: roomID})
	}
}

type listRoomRequest struct {
	LiveID int64 `json:"live_id"`
}

type listRoomResponse struct {
	RoomInfoList []models.RoomInfo `json:"room_info_list"`
}

// ListRoomHandler lists open rooms with spare capacity. live_id of 0 lists
// across all lives.
func ListRoomHandler(svc *room.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req listRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		infos, err := svc.ListRooms(r.Context(), req.LiveID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if infos == nil {
			infos = []models.RoomInfo{}
		}
		writeJSON(w, listRoomResponse{RoomInfoList: infos})
	}
}

type joinRoomRequest struct {
	RoomID           uuid.UUID             `json:"room_id"`
	SelectDifficulty models.LiveDifficulty `json:"select_difficulty"`
}

type joinRoomResponse struct {
	JoinRoomResult models.JoinRoomResult `json:"join_room_result"`
}

// JoinRoomHandler attempts admission into a room. RoomFull and Disbanded
// come back as results in a 200 response; only a bad credential or a
// storage fault is an HTTP error.
func JoinRoomHandler(svc *room.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		var req joinRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if !req.SelectDifficulty.Valid() {
			http.Error(w, "invalid select_difficulty", http.StatusBadRequest)
			return
		}

		result, err := svc.JoinRoom(r.Context(), token, req.RoomID, req.SelectDifficulty)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, joinRoomResponse{JoinRoomResult: result})
	}
}

type roomIDRequest struct {
	RoomID uuid.UUID `json:"room_id"`
}

// WaitRoomHandler is the poll endpoint for seated members. A dissolved room
// is a 200 with status Dissolution, not an error.
func WaitRoomHandler(svc *room.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		var req roomIDRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		res, err := svc.WaitRoom(r.Context(), token, req.RoomID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, res)
	}
}

// StartRoomHandler transitions a room to playing.
func StartRoomHandler(svc *room.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		var req roomIDRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		if err := svc.StartRoom(r.Context(), token, req.RoomID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, struct{}{})
	}
}

// LeaveRoomHandler removes the caller's seat; a departing host disbands the
// room.
func LeaveRoomHandler(svc *room.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		var req roomIDRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		if err := svc.LeaveRoom(r.Context(), token, req.RoomID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, struct{}{})
	}
}

type endRoomRequest struct {
	RoomID         uuid.UUID `json:"room_id"`
	Score          int64     `json:"score"`
	JudgeCountList []int     `json:"judge_count_list"`
}

// EndRoomHandler records the caller's play result.
func EndRoomHandler(svc *room.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		var req endRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		if err := svc.EndRoom(r.Context(), token, req.RoomID, req.Score, req.JudgeCountList); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, struct{}{})
	}
}

type resultRoomResponse struct {
	ResultUserList []models.ResultUser `json:"result_user_list"`
}

// ResultRoomHandler returns aggregated results once every member has
// submitted; until then the list is empty and clients keep polling.
func ResultRoomHandler(svc *room.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req roomIDRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		results, complete, err := svc.ResultRoom(r.Context(), req.RoomID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if !complete {
			results = []models.ResultUser{}
		}
		writeJSON(w, resultRoomResponse{ResultUserList: results})
	}
}
