package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/innerpath/studio/internal/config"
	"github.com/innerpath/studio/internal/mailer"
	"github.com/innerpath/studio/internal/personalize"
	"github.com/innerpath/studio/internal/pkg/distlock"
	"github.com/innerpath/studio/internal/pkg/logger"
	"github.com/innerpath/studio/internal/repository/postgres"
	"github.com/innerpath/studio/internal/service/drain"
	"github.com/innerpath/studio/internal/worker"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.Println("Starting Innerpath Studio queue drainer...")
	logger.SetLevelFromEnv()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("database url is required (config database.url or DATABASE_URL)")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime())

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		log.Fatalf("Failed to ping database: %v", err)
	}
	cancelPing()
	log.Println("Connected to database")

	// Redis backs the leader lock when available; otherwise the lock falls
	// back to a Postgres advisory lock on the same database.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("WARNING: Redis unreachable (%v), using Postgres advisory lock", err)
			redisClient.Close()
			redisClient = nil
		}
		cancel()
	}

	drainRepo := postgres.NewDrainRepo(db)
	authRepo := postgres.NewAuthRepo(db)

	sender := mailer.New(context.Background(), cfg)

	var personalizer *personalize.Personalizer
	if cfg.OpenAI.Enabled && cfg.OpenAI.APIKey != "" {
		personalizer = personalize.New(cfg.OpenAI.APIKey, cfg.OpenAI.Model,
			cfg.Brand.SiteName, cfg.OpenAI.Timeout())
		log.Printf("AI personalization enabled (model %s)", cfg.OpenAI.Model)
	} else {
		log.Println("AI personalization disabled; sends use templates as written")
	}

	drainSvc := drain.NewService(drainRepo, personalizer, sender, drain.Config{
		BatchSize:   cfg.Drainer.BatchSize,
		MaxAttempts: cfg.Drainer.MaxAttempts,
		BackoffBase: cfg.Drainer.BackoffBase(),
		Staleness:   cfg.Drainer.Staleness(),
	})

	lock := distlock.New(redisClient, db, "studio:drainer", cfg.Drainer.LockTTL())

	drainer := worker.NewDrainer(drainSvc, lock, cfg.Drainer, authRepo)
	if err := drainer.Start(); err != nil {
		log.Fatalf("Failed to start drainer: %v", err)
	}
	log.Printf("Drainer running (cron %q, batch %d)", cfg.Drainer.CronSpec, cfg.Drainer.BatchSize)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received %v, shutting down...", sig)

	drainer.Stop()
	if redisClient != nil {
		redisClient.Close()
	}
	log.Println("Drainer stopped")
}
