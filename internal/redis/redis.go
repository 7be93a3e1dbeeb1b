package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect dials Redis from a URL and verifies the connection with a bounded
// ping. The client backs the match state cache, the match_events channel and
// the chat throttle keys.
func Connect(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}
