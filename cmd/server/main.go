package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/innerpath/studio/internal/api"
	"github.com/innerpath/studio/internal/billing"
	"github.com/innerpath/studio/internal/config"
	"github.com/innerpath/studio/internal/mailer"
	"github.com/innerpath/studio/internal/pkg/logger"
	"github.com/innerpath/studio/internal/repository/postgres"
	"github.com/innerpath/studio/internal/service/auth"
	"github.com/innerpath/studio/internal/service/trigger"
	"github.com/innerpath/studio/internal/templates"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale/stub processes occupying the port.
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
	log.Println("Starting Innerpath Studio API server...")
	logger.SetLevelFromEnv()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}
	if cfg.Database.URL == "" {
		log.Fatal("database url is required (config database.url or DATABASE_URL)")
	}
	if len(cfg.Auth.AdminEmails) == 0 {
		log.Println("WARNING: no admin emails configured; the admin surface is unreachable")
	}

	// Pre-flight check: verify the target port is available
	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	log.Printf("DB host: %s", extractHost(cfg.Database.URL))
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

	// Repositories
	authRepo := postgres.NewAuthRepo(db)
	leadRepo := postgres.NewLeadRepo(db)
	campaignRepo := postgres.NewCampaignRepo(db)
	queueRepo := postgres.NewQueueRepo(db)
	commerceRepo := postgres.NewCommerceRepo(db)
	triggerRepo := postgres.NewTriggerRepo(db)
	billingRepo := postgres.NewBillingRepo(db)

	// Outbound mail transport, shared by the magic-link mailer
	sender := mailer.New(context.Background(), cfg)
	linkMailer := mailer.NewMagicLinkMailer(sender, cfg.Brand, cfg.Auth.MagicLinkTTLMins)

	// Services
	authSvc := auth.NewService(authRepo, cfg.Auth, linkMailer, cfg.Brand.BaseURL,
		cfg.Auth.MagicLinkTTL(), cfg.Auth.SessionTTL()).
		WithRateLimit(cfg.Auth.LoginRatePerMinute)
	triggerSvc := trigger.NewService(triggerRepo)

	var intents billing.IntentClient
	if cfg.Stripe.Enabled {
		intents = billing.NewStripeClient(cfg.Stripe.SecretKey)
	} else {
		log.Println("WARNING: Stripe is not configured; payment endpoints will fail")
	}
	billingSvc := billing.NewService(billingRepo, intents)

	previewEngine := templates.NewEngine()

	handlers := api.NewHandlers(
		authSvc,
		triggerSvc,
		billingSvc,
		previewEngine,
		leadRepo,
		campaignRepo,
		queueRepo,
		commerceRepo,
		cfg.Auth.CookieName,
		cfg.Auth.CookieSecure,
		db,
	)

	allowedOrigins := []string{cfg.Brand.BaseURL}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		allowedOrigins = allowedOrigins[:0]
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}

	server := api.NewServer(handlers, allowedOrigins)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", cfg.Server.Addr())
		errCh <- server.ListenAndServe(cfg.Server.Addr())
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server error: %v", err)
	case sig := <-sigCh:
		log.Printf("Received %v, shutting down...", sig)
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
