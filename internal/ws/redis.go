package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/playrally/backend/internal/config"
	"github.com/playrally/backend/internal/game"
	"github.com/redis/go-redis/v9"
)

var rdbClient *redis.Client
var wsConfig *config.Config

func SetRedisClient(r *redis.Client, cfg *config.Config) {
	rdbClient = r
	wsConfig = cfg
}

// allowChat throttles chat to one message per second per player per match
// using a short-lived Redis key. With no Redis configured chat passes
// through; the session's bounded buffer still caps abuse.
func allowChat(matchToken, playerID string) bool {
	if rdbClient == nil {
		return true
	}
	key := "chat:" + matchToken + ":" + playerID
	ok, err := rdbClient.SetNX(context.Background(), key, 1, time.Second).Result()
	if err != nil {
		log.Printf("[WS] chat throttle check failed: %v", err)
		return true
	}
	return ok
}

// StartMatchEventSubscriber subscribes to the match_events channel and
// relays lifecycle events to the affected match rooms. Events published by
// another instance reach clients connected here.
func StartMatchEventSubscriber(ctx context.Context) {
	if rdbClient == nil {
		log.Println("[WS] Redis client not set; match event subscriber not started")
		return
	}

	pubsub := rdbClient.Subscribe(ctx, "match_events")
	ch := pubsub.Channel()
	go func() {
		log.Println("[WS] match_events subscriber started")
		for msg := range ch {
			var payload map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				log.Printf("[WS] invalid event payload: %v", err)
				continue
			}

			typeStr, _ := payload["type"].(string)
			matchID, _ := payload["match_id"].(string)
			if matchID == "" {
				continue
			}

			// Sessions hosted on this instance already broadcast directly;
			// the relay is for events published elsewhere.
			if game.Manager != nil {
				if _, err := game.Manager.GetMatch(matchID); err == nil {
					continue
				}
			}

			switch typeStr {
			case "match_cancelled", "match_finished":
				GameHub.BroadcastToMatch(matchID, payload)
			default:
				// match_created and anything newer are dashboard traffic,
				// nothing for the room.
			}
		}
	}()
}
