package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/whisper/public-chat/internal/chat"
	"github.com/whisper/public-chat/internal/messaging"
	"github.com/whisper/public-chat/internal/ratelimit"
	"github.com/whisper/public-chat/internal/report"
	"github.com/whisper/public-chat/internal/server"
	"github.com/whisper/public-chat/internal/transport"
)

func main() {
	config := server.DefaultConfig()
	chatConfig := chat.DefaultConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	config.HTTPAddr = os.Getenv("HTTP_ADDR")
	if v := os.Getenv("FRAMING"); v != "" {
		f, err := transport.ParseFraming(v)
		if err != nil {
			log.Fatalf("invalid FRAMING: %v", err)
		}
		config.Framing = f
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("SEND_QUEUE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Session.QueueSize = n
		}
	}
	if v := os.Getenv("REUSE_PORT"); v != "" {
		config.ReusePort, _ = strconv.ParseBool(v)
	}

	if v := os.Getenv("CHAT_NAME"); v != "" {
		chatConfig.Name = v
	}
	if v := os.Getenv("LAST_MESSAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			chatConfig.LastMessages = n
		}
	}
	if v := os.Getenv("MAX_MESSAGES_PER_PERIOD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			chatConfig.MaxMessagesPerPeriod = n
		}
	}
	if v := os.Getenv("PERIOD_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			chatConfig.Period = d
		}
	}
	if v := os.Getenv("BAN_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			chatConfig.BanPeriod = d
		}
	}
	if v := os.Getenv("BAN_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			chatConfig.BanThreshold = n
		}
	}
	if v := os.Getenv("BAN_ENFORCE"); v != "" {
		chatConfig.EnforceBan, _ = strconv.ParseBool(v)
	}

	connectRate := 0.0
	if v := os.Getenv("CONNECT_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			connectRate = f
		}
	}
	connectBurst := 10
	if v := os.Getenv("CONNECT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			connectBurst = n
		}
	}

	log.Printf("Public chat server starting")
	log.Printf("  listen_addr:      %s", config.ListenAddr)
	log.Printf("  http_addr:        %s", config.HTTPAddr)
	log.Printf("  framing:          %s", config.Framing)
	log.Printf("  max_connections:  %d", config.MaxConnections)
	log.Printf("  send_queue:       %d", config.Session.QueueSize)
	log.Printf("  chat_name:        %s", chatConfig.Name)
	log.Printf("  last_messages:    %d", chatConfig.LastMessages)
	log.Printf("  max_per_period:   %d", chatConfig.MaxMessagesPerPeriod)
	log.Printf("  period:           %s", chatConfig.Period)
	log.Printf("  ban_threshold:    %d", chatConfig.BanThreshold)
	log.Printf("  ban_period:       %s", chatConfig.BanPeriod)
	log.Printf("  ban_enforce:      %v", chatConfig.EnforceBan)

	hub := chat.NewHub(chatConfig)
	srv := server.New(config, hub)

	// --- Redis (optional): shared per-IP connection admission ---
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := ratelimit.Dial(ctx, redisAddr)
		cancel()
		if err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		defer rdb.Close()
		srv.SetAdmitter(ratelimit.NewLimiter(rdb, ratelimit.RuleConnect))
		log.Printf("  redis_addr:       %s", redisAddr)
	} else if connectRate > 0 {
		srv.SetAdmitter(ratelimit.NewLocalLimiter(connectRate, connectBurst))
		log.Printf("  connect_rate:     %.2f/s (burst %d)", connectRate, connectBurst)
	}

	// --- NATS (optional): chat event feed ---
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = natsURL
		natsClient, err := messaging.NewNATSClient(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		defer natsClient.Close()
		hub.SetFeed(natsClient)
		log.Printf("  nats_url:         %s", natsURL)
	}

	// --- Postgres (optional): moderation report audit trail ---
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		if err := report.Migrate(dsn); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		db, err := report.Open(ctx, dsn)
		cancel()
		if err != nil {
			log.Fatalf("failed to connect to Postgres: %v", err)
		}
		defer db.Close()
		store := report.NewStore(db)
		hub.SetReportRecorder(store)
		srv.SetReportViewer(store)
		log.Printf("  database:         enabled")
	}

	if err := srv.Listen(); err != nil {
		log.Fatalf("%v", err)
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		hub.Run(hubCtx)
		close(hubDone)
	}()

	go func() {
		if err := srv.Serve(); err != nil {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	stopHub()
	<-hubDone
}
