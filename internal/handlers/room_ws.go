// internal/handlers/room_ws.go
package handlers

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/sea314/gameserver/internal/models"
	"github.com/sea314/gameserver/internal/room"
	"github.com/sirupsen/logrus"
)

// waitPollInterval is how often the WS handler re-reads the room on behalf
// of the subscriber.
const waitPollInterval = 500 * time.Millisecond

// RoomWSHandler upgrades GET /room/ws/{room_id} to a websocket and pushes
// WaitRoomResult frames whenever the room's wait state changes, as a push
// alternative to polling /room/wait. The connection closes after the final
// LiveStart or Dissolution frame.
func RoomWSHandler(logger *logrus.Logger, svc *room.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idStr := strings.TrimPrefix(r.URL.Path, "/room/ws/")
		roomID, err := uuid.Parse(strings.TrimSuffix(idStr, "/"))
		if err != nil {
			http.Error(w, "invalid room_id", http.StatusBadRequest)
			return
		}

		token := extractBearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"room"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "room" {
			c.Close(websocket.StatusPolicyViolation, "client must speak the room subprotocol")
			return
		}

		ctx := r.Context()
		ticker := time.NewTicker(waitPollInterval)
		defer ticker.Stop()

		var last *models.WaitRoomResult
		for {
			res, err := svc.WaitRoom(ctx, token, roomID)
			if errors.Is(err, room.ErrInvalidToken) {
				c.Close(websocket.StatusPolicyViolation, "invalid token")
				return
			}
			if err != nil {
				logger.Warnf("wait read failed for room %v: %v", roomID, err)
				c.Close(websocket.StatusInternalError, "wait read failed")
				return
			}

			if last == nil || !reflect.DeepEqual(res, last) {
				if err := wsjson.Write(ctx, c, res); err != nil {
					return
				}
				last = res
			}

			if res.Status != models.WaitWaiting {
				c.Close(websocket.StatusNormalClosure, "room no longer waiting")
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}
