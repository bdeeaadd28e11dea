package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/whisper/public-chat/internal/chat"
	"github.com/whisper/public-chat/internal/messaging"
)

func main() {
	log.Println("Starting public chat event feed...")

	natsConfig := messaging.DefaultNATSConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "public-chat-feed"

	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	err = natsClient.SubscribeChatEvents(func(ev chat.Event) {
		switch ev.Type {
		case chat.EventPublic:
			log.Printf("[feed] %s: %s", ev.From, ev.Text)
		case chat.EventReport:
			log.Printf("[feed] REPORT %s -> %s (count=%d)", ev.From, ev.To, ev.Count)
		case chat.EventBan:
			log.Printf("[feed] BAN %s (count=%d, last reporter %s)", ev.To, ev.Count, ev.From)
		case chat.EventUnban:
			log.Printf("[feed] UNBAN %s", ev.To)
		default:
			log.Printf("[feed] unknown event type=%q", ev.Type)
		}
	})
	if err != nil {
		log.Fatalf("failed to subscribe to chat events: %v", err)
	}

	log.Printf("Public chat event feed running")
	log.Printf("  nats_url: %s", natsConfig.URL)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	natsClient.Close()
}
