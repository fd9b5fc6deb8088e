// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/sea314/gameserver/internal/auth"
	"github.com/sea314/gameserver/internal/cache"
	"github.com/sea314/gameserver/internal/database"
	"github.com/sea314/gameserver/internal/handlers"
	"github.com/sea314/gameserver/internal/middleware"
	"github.com/sea314/gameserver/internal/room"
)

func main() {
	auth.Init()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	var store room.Store
	if os.Getenv("DATABASE_URL") != "" || os.Getenv("PG_HOST") != "" {
		database.ConnectDB()
		store = database.NewRoomStore(database.DB)
	} else {
		logger.Warn("no database configured, using in-memory store")
		store = room.NewMemStore()
	}

	var events room.EventPublisher
	if err := cache.ConnectRedis(); err != nil {
		logger.Warnf("redis unavailable, room events disabled: %v", err)
	} else {
		events = cache.QueuePublisher{}
	}

	svc := room.NewService(store, auth.TokenAuthority{}, events, logger)

	mux := http.NewServeMux()
	logged := middleware.LogMiddleware(logger)

	// user endpoints
	mux.Handle("/user/create", logged(handlers.CreateUserHandler(svc)))
	mux.Handle("/user/me", logged(handlers.GetMeHandler(svc)))
	mux.Handle("/user/update", logged(handlers.UpdateUserHandler(svc)))

	// room endpoints
	mux.Handle("/room/create", logged(handlers.CreateRoomHandler(svc)))
	mux.Handle("/room/list", logged(handlers.ListRoomHandler(svc)))
	mux.Handle("/room/join", logged(handlers.JoinRoomHandler(svc)))
	mux.Handle("/room/wait", logged(handlers.WaitRoomHandler(svc)))
	mux.Handle("/room/start", logged(handlers.StartRoomHandler(svc)))
	mux.Handle("/room/leave", logged(handlers.LeaveRoomHandler(svc)))
	mux.Handle("/room/end", logged(handlers.EndRoomHandler(svc)))
	mux.Handle("/room/result", logged(handlers.ResultRoomHandler(svc)))

	// wait-room websocket
	mux.Handle("/room/ws/", logged(handlers.RoomWSHandler(logger, svc)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
