package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/radiantcrm/triage-engine/internal/api"
	"github.com/radiantcrm/triage-engine/internal/channel"
	"github.com/radiantcrm/triage-engine/internal/config"
	"github.com/radiantcrm/triage-engine/internal/domain"
	"github.com/radiantcrm/triage-engine/internal/engine"
	"github.com/radiantcrm/triage-engine/internal/pkg/logger"
	"github.com/radiantcrm/triage-engine/internal/quota"
	"github.com/radiantcrm/triage-engine/internal/repository/postgres"
	"github.com/radiantcrm/triage-engine/internal/service/guardrails"
	"github.com/radiantcrm/triage-engine/internal/service/inbox"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	slash := strings.Index(rest, "/")
	if slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  Radiant Triage Engine (cmd/server/main.go)                ║")
	log.Println("║  Inbound triage API with sync engine and autopilot         ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")

	// Load configuration
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(!cfg.Logging.DisableRedaction)
	if cfg.Logging.DisableRedaction {
		log.Println("WARNING: PII redaction disabled; do not run this way in production")
	}

	// Pre-flight check: verify the target port is available
	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL holds items, settings, sync state, and the audit log.
	dbURL := cfg.Database.URL
	if !strings.Contains(dbURL, "connect_timeout") {
		sep := "?"
		if strings.Contains(dbURL, "?") {
			sep = "&"
		}
		dbURL += sep + "connect_timeout=5"
	}
	log.Printf("DB URL host portion: ...@%s/...", extractHost(dbURL))
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// Set pool limits early to prevent connection exhaustion
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Database ping failed: %v", err)
	}
	pingCancel()
	log.Println("Database connected")

	// Redis holds the shared send-quota counters and autopilot item
	// claims. The daily cap must hold across instances, so unlike the
	// advisory-lock fallback this dependency is not optional.
	var redisClient *redis.Client
	if opts, err := redis.ParseURL(cfg.Redis.URL); err != nil {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.URL})
	} else {
		redisClient = redis.NewClient(opts)
	}
	pingCtx, pingCancel = context.WithTimeout(ctx, 3*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.Fatalf("Redis connection failed (%s): %v", cfg.Redis.URL, err)
	}
	pingCancel()
	defer redisClient.Close()
	log.Printf("Redis connected: %s", cfg.Redis.URL)

	// Repositories
	itemsRepo := postgres.NewItemRepo(db)
	actionsRepo := postgres.NewActionLogRepo(db)
	statesRepo := postgres.NewSyncStateRepo(db)
	settingsRepo := postgres.NewSettingsRepo(db)

	sendQuota := quota.NewSendQuota(redisClient)

	// Channel connectors. A channel without an API key is simply not
	// part of this deployment; requests for it return 409.
	var connectors []channel.Connector
	if cfg.Email.Enabled {
		connectors = append(connectors, channel.NewEmailConnector(cfg.Email))
		log.Printf("Email channel configured (base: %s, page size: %d)", cfg.Email.BaseURL, cfg.Email.PageSize)
	} else {
		log.Println("Email channel not configured (EMAIL_CHANNEL_API_KEY not set)")
	}
	if cfg.Calls.Enabled {
		connectors = append(connectors, channel.NewCallsConnector(cfg.Calls))
		log.Printf("Calls channel configured (base: %s, page size: %d)", cfg.Calls.BaseURL, cfg.Calls.PageSize)
	} else {
		log.Println("Calls channel not configured (CALLS_CHANNEL_API_KEY not set)")
	}
	registry := channel.NewRegistry(connectors...)

	// Settings updates push the new staleness threshold into running
	// schedulers. The manager is created after the settings service, so
	// the listener captures the variable, not the value.
	var manager *engine.Manager
	guardrailsSvc := guardrails.NewService(settingsRepo, func(s *domain.GuardrailSettings) {
		if manager != nil {
			manager.SetStaleThreshold(s.OrganizationID, s.StaleThreshold())
		}
	})

	manager = engine.NewManager(registry, itemsRepo, statesRepo, guardrailsSvc, engine.ManagerConfig{
		BaseIntervals: map[domain.ChannelKind]time.Duration{
			domain.ChannelEmail: cfg.Sync.EmailInterval(),
			domain.ChannelCall:  cfg.Sync.CallsInterval(),
		},
		BackoffCap:      cfg.Sync.BackoffCap(),
		StaleFastDelay:  cfg.Sync.StaleFastDelay(),
		InteractionHold: cfg.Sync.InteractionHold(),
	})
	if err := manager.Start(); err != nil {
		log.Fatalf("Failed to start sync engine: %v", err)
	}

	inboxSvc := inbox.NewService(itemsRepo, actionsRepo, statesRepo, guardrailsSvc, sendQuota, registry)

	// Autopilot polls for drafted items and pushes each through the
	// auto-send path. Every guardrail decision happens inside the inbox
	// service at commit time, so this is safe to run on every instance.
	var autopilot *engine.Autopilot
	if cfg.Autopilot.Enabled {
		autopilot = engine.NewAutopilot(itemsRepo, inboxSvc, redisClient, db, engine.AutopilotConfig{
			TickInterval: cfg.Autopilot.TickInterval(),
			BatchSize:    cfg.Autopilot.BatchSize,
			LockTTL:      cfg.Autopilot.LockTTL(),
		})
		if err := autopilot.Start(); err != nil {
			log.Fatalf("Failed to start autopilot: %v", err)
		}
	} else {
		log.Println("Autopilot not enabled; approved items still send on demand")
	}

	// HTTP API
	handlers := api.NewHandlers(inboxSvc, guardrailsSvc, manager)
	if autopilot != nil {
		handlers.SetAutopilot(autopilot)
	}
	health := api.NewHealthChecker(db, redisClient, manager)
	resolver := api.NewOrgResolver(cfg.Dev.OrgID)
	if cfg.Dev.OrgID != "" {
		log.Printf("Dev organization fallback active: %s", cfg.Dev.OrgID)
	}
	router := api.SetupRoutes(handlers, health, resolver, cfg.Server.CORSAllowedOrigins)
	server := api.NewServer(router)

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	logger.Info("triage engine ready",
		"channels", registry.Kinds(),
		"autopilot", cfg.Autopilot.Enabled,
		"port", port)

	<-done
	log.Println("Shutting down...")

	// Stop producers before the HTTP server so in-flight requests see a
	// consistent engine, then drain connections.
	cancel()
	if autopilot != nil {
		autopilot.Stop()
	}
	manager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
