package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

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

// The worker runs the sync engine and the autopilot without the HTTP
// API, for deployments that split background work from request serving.
// Schedulers normally start lazily on API traffic; here they are warmed
// for every tenant with automation switched on, so replies keep going
// out even when nobody is logged in.

func main() {
	log.Println("Starting Radiant Triage Worker...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(!cfg.Logging.DisableRedaction)

	// Database connection
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Failed to ping database: %v", err)
	}
	pingCancel()
	log.Println("Connected to database")

	// Redis backs the send-quota counters the autopilot claims against.
	var redisClient *redis.Client
	if opts, err := redis.ParseURL(cfg.Redis.URL); err != nil {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.URL})
	} else {
		redisClient = redis.NewClient(opts)
	}
	pingCtx, pingCancel = context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.Fatalf("Redis connection failed (%s): %v", cfg.Redis.URL, err)
	}
	pingCancel()
	defer redisClient.Close()
	log.Println("Connected to Redis")

	itemsRepo := postgres.NewItemRepo(db)
	actionsRepo := postgres.NewActionLogRepo(db)
	statesRepo := postgres.NewSyncStateRepo(db)
	settingsRepo := postgres.NewSettingsRepo(db)
	sendQuota := quota.NewSendQuota(redisClient)

	var connectors []channel.Connector
	if cfg.Email.Enabled {
		connectors = append(connectors, channel.NewEmailConnector(cfg.Email))
	}
	if cfg.Calls.Enabled {
		connectors = append(connectors, channel.NewCallsConnector(cfg.Calls))
	}
	registry := channel.NewRegistry(connectors...)
	if len(registry.Kinds()) == 0 {
		log.Println("WARNING: no channels configured; nothing will sync or send")
	}

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
		log.Println("Autopilot not enabled; worker will only keep sync state fresh")
	}

	// Warm schedulers for automation tenants, and pick up tenants that
	// enable automation while the worker is running.
	warmSchedulers := func() {
		orgs, err := settingsRepo.ListAutoSendEnabled(ctx)
		if err != nil {
			log.Printf("Worker: listing automation tenants failed: %v", err)
			return
		}
		for _, orgID := range orgs {
			if err := manager.EnsureOrg(ctx, orgID); err != nil {
				log.Printf("Worker: scheduler warmup failed for org %s: %v", orgID, err)
			}
		}
	}
	warmSchedulers()

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				warmSchedulers()
			}
		}
	}()

	// Heartbeat
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if autopilot != nil {
					sent, skipped, errs := autopilot.Stats()
					log.Printf("Worker heartbeat - %d schedulers, autopilot sent=%d skipped=%d errors=%d",
						manager.SchedulerCount(), sent, skipped, errs)
				} else {
					log.Printf("Worker heartbeat - %d schedulers running", manager.SchedulerCount())
				}
			}
		}
	}()

	log.Println("Worker running...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()

	if autopilot != nil {
		autopilot.Stop()
	}
	manager.Stop()

	// Give any remaining operations time to finish
	time.Sleep(2 * time.Second)

	log.Println("Worker stopped")
}
