package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sea314/gameserver/internal/room"
)

// extractBearerToken pulls the credential from the Authorization header.
// Returns empty if the header is missing or not a bearer scheme.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// writeJSON encodes v as the JSON response body.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to write response", http.StatusInternalServerError)
	}
}

// writeServiceError maps service errors to HTTP statuses. Domain outcomes
// (JoinRoomResult, WaitRoomStatus) never reach here; they are encoded in
// 200 responses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, room.ErrInvalidToken):
		http.Error(w, "invalid token", http.StatusUnauthorized)
	case errors.Is(err, room.ErrRoomNotFound):
		http.Error(w, "room not found", http.StatusNotFound)
	case errors.Is(err, room.ErrInvalidJudgeCounts):
		http.Error(w, "invalid judge count list", http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
