// cmd/historian/main.go is an asynchronous historian service that pops room
// lifecycle events from a Redis queue, persists them to PostgreSQL, and
// disbands rooms that have gone quiet: a room with no events for the
// configured inactivity window is deleted, which all readers observe as
// Disbanded/Dissolution.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"github.com/sea314/gameserver/internal/database"
	"github.com/sea314/gameserver/internal/models"
)

// HistorianService encapsulates the Redis + DB logic for capturing room
// events and sweeping inactive rooms.
type HistorianService struct {
	redisClient  *redis.Client
	batchSize    int
	flushDelay   time.Duration
	inactivity   time.Duration // duration until an idle open room is disbanded
	lastActivity sync.Map      // map[uuid.UUID]time.Time per room

	batchMu  sync.Mutex
	batch    []models.RoomEventRecord
	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewHistorianService constructs a HistorianService from environment
// variables or defaults.
func NewHistorianService() *HistorianService {
	batchSize := getEnvInt("HISTORIAN_BATCH_SIZE", 20)
	flushMs := getEnvInt("HISTORIAN_FLUSH_MS", 500)
	inactivitySec := getEnvInt("ROOM_INACTIVITY_TIMEOUT_SEC", 600) // default 10 min

	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &HistorianService{
		redisClient: rdb,
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		inactivity:  time.Duration(inactivitySec) * time.Second,
		batch:       make([]models.RoomEventRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run starts the two main loops:
//  1. A loop that reads from the Redis queue, accumulates events in a batch,
//     and flushes them to the DB.
//  2. A periodic sweep that disbands rooms idle beyond the threshold.
func (hs *HistorianService) Run() {
	database.ConnectDB()

	go hs.readRedisLoop()
	go hs.inactivityLoop()

	log.Println("room historian service started.")
	<-hs.ctx.Done()
	log.Println("room historian shutting down.")
}

// readRedisLoop continuously uses BLPop to retrieve events from the Redis queue.
func (hs *HistorianService) readRedisLoop() {
	ticker := time.NewTicker(hs.flushDelay)
	defer ticker.Stop()

	queueName := getEnv("HISTORIAN_QUEUE_NAME", "room_events")

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			hs.flushBatchToDB()

		default:
			// BLPop with a 3-second timeout so context cancellation is handled.
			res, err := hs.redisClient.BLPop(hs.ctx, 3*time.Second, queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				log.Printf("[ERROR] BLPop: %v\n", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			// res[0] is the queue name and res[1] the payload.
			var record models.RoomEventRecord
			if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
				log.Printf("invalid room event record: %v\n", err)
				continue
			}

			if record.EventType == models.EventRoomDisbanded {
				hs.lastActivity.Delete(record.RoomID)
			} else {
				hs.lastActivity.Store(record.RoomID, time.Now())
			}

			hs.appendToBatch(record)
		}
	}
}

// appendToBatch adds a record to the in-memory batch and flushes if the threshold is reached.
func (hs *HistorianService) appendToBatch(record models.RoomEventRecord) {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()

	hs.batch = append(hs.batch, record)
	if len(hs.batch) >= hs.batchSize {
		hs.flushLocked()
	}
}

// flushBatchToDB flushes the current batch to the database in a single transaction.
func (hs *HistorianService) flushBatchToDB() {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()
	hs.flushLocked()
}

func (hs *HistorianService) flushLocked() {
	if len(hs.batch) == 0 {
		return
	}
	batchCopy := make([]models.RoomEventRecord, len(hs.batch))
	copy(batchCopy, hs.batch)
	hs.batch = hs.batch[:0]

	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO room_events (room_id, user_id, live_id, event_type, ts)
			VALUES ($1, $2, $3, $4, $5)
		`
		for _, rec := range batchCopy {
			ts := time.UnixMilli(rec.Timestamp)
			if _, err := tx.Exec(ctx, q, rec.RoomID, rec.UserID, rec.LiveID, rec.EventType, ts); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] flush room events: %v\n", err)
	} else {
		log.Printf("Flushed %d room events to DB.\n", len(batchCopy))
	}
}

// inactivityLoop periodically disbands rooms that have produced no events
// beyond the configured threshold.
func (hs *HistorianService) inactivityLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			hs.lastActivity.Range(func(key, val interface{}) bool {
				roomID, ok1 := key.(uuid.UUID)
				last, ok2 := val.(time.Time)
				if ok1 && ok2 && now.Sub(last) > hs.inactivity {
					hs.disbandStaleRoom(roomID)
					hs.lastActivity.Delete(roomID)
				}
				return true
			})
		}
	}
}

// disbandStaleRoom deletes an idle room and its memberships if it is still
// open. The row lock keeps the sweep from racing a concurrent join: either
// the join commits first and the room stays (until the next sweep), or the
// delete commits first and the joiner observes Disbanded.
func (hs *HistorianService) disbandStaleRoom(roomID uuid.UUID) {
	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM rooms WHERE id = $1 FOR UPDATE`, roomID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if status != "open" {
			return nil
		}
		if _, err := tx.Exec(ctx, `DELETE FROM room_users WHERE room_id = $1`, roomID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, roomID)
		return err
	})
	if err != nil {
		log.Printf("failed to disband stale room %v: %v", roomID, err)
	} else {
		log.Printf("Disbanded room %v due to inactivity.", roomID)
	}
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func main() {
	hs := NewHistorianService()
	hs.Run()
}
