package redis

import (
	"context"

	"github.com/goccy/go-json"

	"chat-realtime/internal/models"
)

// SubscribeToRoomEvents streams mirrored room events matching roomPattern
// ("*" for every room) to handle until ctx is done.
func (c *Client) SubscribeToRoomEvents(ctx context.Context, roomPattern string, handle func(models.RoomEvent)) error {
	pattern := roomChannelPrefix + roomPattern
	pubsub := c.rdb.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		c.log.Error("[REDIS] Failed to receive subscription confirmation", "error", err)
		return err
	}
	c.log.Info("[REDIS] Subscribed to room events", "pattern", pattern)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				c.log.Info("[REDIS] Redis pub/sub channel closed")
				return nil
			}
			var event models.RoomEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				c.log.Error("[REDIS] Error unmarshaling event", "channel", msg.Channel, "error", err)
				continue
			}
			handle(event)
		}
	}
}
