package cache

import (
	"context"
	"time"

	"chatstatus-backend/config"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var Client *redis.Client

// Connect is optional; the service runs without Redis, it just loses the
// cross-instance PIN reservation and the invite-code lookup cache.
func Connect() {
	if config.AppConfig.RedisURL == "" {
		logrus.Info("Redis not configured, running without cache")
		return
	}

	opt, err := redis.ParseURL(config.AppConfig.RedisURL)
	if err != nil {
		logrus.Warnf("⚠️  Invalid REDIS_URL, running without cache: %v", err)
		return
	}

	client := redis.NewClient(opt)
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		logrus.Warnf("⚠️  Redis not available, running without cache: %v", err)
		return
	}

	Client = client
	logrus.Info("✅ Redis connected successfully")
}

// ReservePin claims a freshly generated group PIN for a short window, so two
// instances rolling the same PIN at the same time don't both pass the
// store-side uniqueness query. Returns true when Redis is absent: the caller
// then relies on the query alone.
func ReservePin(ctx context.Context, pin string) bool {
	if Client == nil {
		return true
	}
	ok, err := Client.SetNX(ctx, "grouppin:"+pin, 1, time.Minute).Result()
	if err != nil {
		return true
	}
	return ok
}

// CacheInviteCode remembers which group an invite code belongs to.
func CacheInviteCode(ctx context.Context, code, groupID string) {
	if Client == nil {
		return
	}
	Client.Set(ctx, "invite:"+code, groupID, 24*time.Hour)
}

// LookupInviteCode returns the cached group ID for a code, if any.
func LookupInviteCode(ctx context.Context, code string) (string, bool) {
	if Client == nil {
		return "", false
	}
	groupID, err := Client.Get(ctx, "invite:"+code).Result()
	if err != nil {
		return "", false
	}
	return groupID, true
}

// DropInviteCode evicts a code, used when its group is deleted.
func DropInviteCode(ctx context.Context, code string) {
	if Client == nil {
		return
	}
	Client.Del(ctx, "invite:"+code)
}
