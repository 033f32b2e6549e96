package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"Sochinenie/lib/sl"
)

// slotTTL is a liveness backstop: if a process dies between TryAcquire
// and Release, the user becomes acquirable again after this long.
const slotTTL = 2 * time.Minute

// Redis is the shared gate for deployments running more than one bot
// instance. SETNX gives the atomic check-and-set across processes.
type Redis struct {
	client *redis.Client
	log    *slog.Logger
}

func NewRedis(client *redis.Client, log *slog.Logger) *Redis {
	return &Redis{
		client: client,
		log:    log.With(sl.Module("gate")),
	}
}

func (r *Redis) TryAcquire(userID int64) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	acquired, err := r.client.SetNX(ctx, r.key(userID), 1, slotTTL).Result()
	if err != nil {
		// Fail closed: better to drop one event than to run two handlers
		// for the same user.
		r.log.Error("acquiring slot", slog.Int64("user", userID), sl.Err(err))
		return false
	}
	return acquired
}

func (r *Redis) Release(userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		r.log.Error("releasing slot", slog.Int64("user", userID), sl.Err(err))
	}
}

func (r *Redis) key(userID int64) string {
	return fmt.Sprintf("inflight:%d", userID)
}
