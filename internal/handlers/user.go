// internal/handlers/user.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sea314/gameserver/internal/room"
)

type createUserRequest struct {
	UserName     string `json:"user_name"`
	LeaderCardID int    `json:"leader_card_id"`
}

type createUserResponse struct {
	UserToken string `json:"user_token"`
}

// CreateUserHandler registers a new user and returns their credential token.
//
// Request payload:
//
//	{"user_name": "player1", "leader_card_id": 1000}
//
// Response payload:
//
//	{"user_token": "{token}"}
func CreateUserHandler(svc *room.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if req.UserName == "" {
			http.Error(w, "user_name is required", http.StatusBadRequest)
			return
		}

		token, err := svc.CreateUser(r.Context(), req.UserName, req.LeaderCardID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, createUserResponse{UserToken: token})
	}
}

// GetMeHandler returns the identity behind the bearer token.
func GetMeHandler(svc *room.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		u, err := svc.GetMe(r.Context(), token)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, u)
	}
}

type updateUserRequest struct {
	UserName     string `json:"user_name"`
	LeaderCardID int    `json:"leader_card_id"`
}

// UpdateUserHandler replaces the caller's display name and leader card.
func UpdateUserHandler(svc *room.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		var req updateUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		if err := svc.UpdateUser(r.Context(), token, req.UserName, req.LeaderCardID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, struct{}{})
	}
}
