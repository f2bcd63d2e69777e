// Command roomtap prints room events mirrored to Redis by a server running
// with MIRROR_EVENTS enabled.
//
//	roomtap [room-pattern]
//
// The pattern defaults to "*", i.e. every room.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-realtime/internal/config"
	"chat-realtime/internal/models"
	"chat-realtime/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log := cfg.Logger()
	if cfg.RedisURL == "" {
		log.Error("REDIS_URL is required")
		os.Exit(1)
	}

	pattern := "*"
	if len(os.Args) > 1 {
		pattern = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := redis.NewClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to connect", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := client.SubscribeToRoomEvents(ctx, pattern, func(ev models.RoomEvent) {
		printEvent(os.Stdout, ev)
	}); err != nil {
		log.Error("Subscription failed", "error", err)
	}
}

func printEvent(w io.Writer, ev models.RoomEvent) {
	at := time.UnixMilli(ev.Timestamp).UTC().Format(models.TimestampLayout)
	fmt.Fprintf(w, "%s %-14s room=%s %s\n", at, ev.Type, ev.RoomId, ev.Event)
}
