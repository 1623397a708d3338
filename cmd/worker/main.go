package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"schedoosh/internal/config"
	"schedoosh/internal/notify"
	"schedoosh/internal/queue"
	"schedoosh/internal/store"
)

// Worker consumes score events off the queue and writes the notification
// feed rows users see in the app.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "schedoosh:events")
	}

	feed := notify.NewRepository(db.DB)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for score events...")
	for msg := range messages {
		if msg.Type != "score" {
			continue
		}

		evt, err := notify.DecodeEvent(msg.Body)
		if err != nil {
			log.Printf("bad event payload: %v", err)
			continue
		}

		n, err := feed.Insert(ctx, evt)
		if err != nil {
			log.Printf("notification insert failed for user %s: %v", evt.UserID, err)
			continue
		}
		log.Printf("notification %s: %s %q", n.ID, evt.Kind, evt.Body)
	}

	log.Println("worker stopped")
}
