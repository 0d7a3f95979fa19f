package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/classcast/livehub/internal/auth"
	"github.com/classcast/livehub/internal/hub"
	"github.com/classcast/livehub/internal/notify"
	"github.com/classcast/livehub/internal/presence"
	"github.com/classcast/livehub/internal/protocol"
	"github.com/classcast/livehub/internal/ratelimit"
	"github.com/classcast/livehub/internal/registry"
	"github.com/classcast/livehub/internal/store"
	"github.com/classcast/livehub/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "postgres://localhost:5432/livehub?sslmode=disable"
	}

	// --- PostgreSQL ---
	recordStore, err := store.Open(dsn)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	if err := recordStore.Migrate(); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// After a restart no live-room membership survived, so present-now rows
	// left by the previous process are stale.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	stale, err := recordStore.ClearCurrentParticipants(ctx)
	cancel()
	if err != nil {
		log.Fatalf("failed to reconcile participant rows: %v", err)
	}
	if stale > 0 {
		log.Printf("cleared %d stale participant rows from previous run", stale)
	}

	// --- NATS ---
	natsConfig := notify.DefaultConfig()
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConfig.URL = natsURL
	}
	notifier, err := notify.NewNotifier(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Redis ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	serverName, _ := os.Hostname()
	if v := os.Getenv("SERVER_NAME"); v != "" {
		serverName = v
	}
	if serverName == "" {
		serverName = "livehub-1"
	}

	presenceStore, err := presence.NewStore(redisAddr, serverName)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}

	limiter := ratelimit.NewLimiter(presenceStore.Client())

	heartbeatConfig := ws.DefaultHeartbeatConfig()
	if v := os.Getenv("HEARTBEAT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			heartbeatConfig.Interval = d
		}
	}

	log.Printf("livehub server starting")
	log.Printf("  listen_addr:      %s", config.ListenAddr)
	log.Printf("  paths:            %v", config.Paths)
	log.Printf("  worker_pool:      %d", config.WorkerPoolSize)
	log.Printf("  max_connections:  %d", config.MaxConnections)
	log.Printf("  read_timeout:     %s", config.ReadTimeout)
	log.Printf("  write_timeout:    %s", config.WriteTimeout)
	log.Printf("  heartbeat:        %s", heartbeatConfig.Interval)
	log.Printf("  nats_url:         %s", natsConfig.URL)
	log.Printf("  redis_addr:       %s", redisAddr)
	log.Printf("  server_name:      %s", serverName)

	dispatcher := ws.NewDispatcher()
	server := ws.NewServer(config, dispatcher.Dispatch)

	h := hub.New(hub.Config{
		Store:    recordStore,
		Verifier: auth.NewVerifier(jwtSecret),
		Registry: registry.NewRegistry(),
		Rooms:    registry.NewRoomDirectory(),
		Conns:    server.Connections(),
		Notifier: notifier,
		Presence: presenceStore,
		Limiter:  limiter,
	})

	// Adapt hub handlers (which accept the narrow channel interface) to the
	// dispatcher's concrete connection type.
	register := func(event string, fn func(hub.Channel, interface{})) {
		dispatcher.Register(event, func(c *ws.Connection, msg interface{}) {
			fn(c, msg)
		})
	}

	register(protocol.EventAuthenticate, h.Authenticate)
	register(protocol.EventMessage, h.DirectMessage)
	register(protocol.EventFetchChats, h.FetchChats)
	register(protocol.EventUnreadMessages, h.UnreadMessages)
	register(protocol.EventOnlineUsers, h.OnlineUsers)
	register(protocol.EventMessageList, h.MessageList)
	register(protocol.EventCreateGroup, h.CreateGroup)
	register(protocol.EventGroupMessage, h.GroupMessage)
	register(protocol.EventFetchGroupChats, h.FetchGroupChats)
	register(protocol.EventGroupList, h.GroupList)
	register(protocol.EventStartLive, h.StartLive)
	register(protocol.EventJoinLive, h.JoinLive)
	register(protocol.EventLeaveLive, h.LeaveLive)
	register(protocol.EventEndLive, h.EndLive)
	register(protocol.EventLiveOffer, h.Signal)
	register(protocol.EventLiveAnswer, h.Signal)
	register(protocol.EventLiveIce, h.Signal)

	server.SetOnDisconnect(func(c *ws.Connection) {
		h.Teardown(c)
	})

	heartbeatConfig.OnAlive = func(c *ws.Connection) {
		h.RefreshPresence(c)
	}
	heartbeat := ws.NewHeartbeat(heartbeatConfig, server)
	go heartbeat.Start()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		notifier.Close()
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if err := presenceStore.Close(); err != nil {
			log.Printf("presence store close error: %v", err)
		}
		if err := recordStore.Close(); err != nil {
			log.Printf("record store close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
