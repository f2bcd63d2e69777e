package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"

	"chat-realtime/internal/models"
)

const roomChannelPrefix = "room:"

type Client struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewClient(ctx context.Context, redisURL string, log *slog.Logger) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	log.Info("[REDIS] Connected to Redis", "addr", opt.Addr)
	return &Client{rdb: rdb, log: log}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// PublishRoomEvent mirrors an already encoded outbound frame to room:{roomId}.
func (c *Client) PublishRoomEvent(ctx context.Context, roomId, eventType string, frame []byte) error {
	event := models.RoomEvent{
		Type:      eventType,
		RoomId:    roomId,
		Timestamp: time.Now().UnixMilli(),
		Event:     frame,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		c.log.Error("[REDIS] Failed to marshal event", "type", eventType, "room", roomId, "error", err)
		return err
	}

	channel := roomChannelPrefix + roomId
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		c.log.Error("[REDIS] Failed to publish event", "type", eventType, "channel", channel, "error", err)
		return err
	}
	return nil
}
