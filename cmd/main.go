/**
 * @description
 * This is the main entry point for the credit-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, external API clients, message brokers, repositories, the core
 * application service, and the HTTP server. It wires everything together and
 * starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/cardvendor: Client for the gift-card vendor API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rewardloop/credit-service/internal/api"
	"github.com/rewardloop/credit-service/internal/app"
	"github.com/rewardloop/credit-service/internal/config"
	"github.com/rewardloop/credit-service/internal/observability"
	"github.com/rewardloop/credit-service/internal/store"
	"github.com/rewardloop/credit-service/pkg/cardvendor"
	rlrabbit "github.com/rewardloop/credit-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting credit-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer for alert events. The service only
	// publishes, so missing RabbitMQ degrades to a no-op fallback.
	var eventProducer rlrabbit.Publisher
	rabbitProducer, err := rlrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		eventProducer = &rlrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		eventProducer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the card vendor client. Without vendor credentials the
	// on-demand purchase fallback is disabled and only pool supply is used.
	var vendor app.CardVendor
	fallbackEnabled := cfg.ProvisionFallback
	if strings.TrimSpace(cfg.CardVendorAPIBaseURL) == "" || strings.TrimSpace(cfg.CardVendorAPIKey) == "" {
		log.Printf("level=warn component=bootstrap msg=\"card vendor not configured; purchase fallback disabled\" base_url_set=%t api_key_set=%t",
			strings.TrimSpace(cfg.CardVendorAPIBaseURL) != "",
			strings.TrimSpace(cfg.CardVendorAPIKey) != "",
		)
		fallbackEnabled = false
	} else {
		vendor = app.NewVendorAdapter(cardvendor.NewClient(cfg.CardVendorAPIBaseURL, cfg.CardVendorAPIKey))
	}

	var redisClient *redis.Client
	if cfg.ProvisionLimitPerMinute > 0 {
		if cfg.RedisURL == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; provision rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; provision rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; provision rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	metrics := observability.NewMetrics()

	var rateLimiter app.RateLimiter
	if redisClient != nil {
		rateLimiter = app.NewRedisProvisionRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
	}

	// Initialize the core application service with its dependencies.
	creditService := app.NewService(
		repository,
		vendor,
		eventProducer,
		metrics,
		rateLimiter,
		app.Config{
			FulfillmentFeeCents:     cfg.FulfillmentFeeCents,
			FallbackEnabled:         fallbackEnabled,
			ProvisionLimitPerMinute: cfg.ProvisionLimitPerMinute,
			LowInventoryThreshold:   cfg.LowInventoryThreshold,
			AlertExchange:           cfg.AlertExchange,
		},
	)

	// Initialize the API handlers.
	creditHandlers := api.NewCreditHandlers(creditService)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/credits", api.CreditRoutes(creditHandlers, cfg.AuthJWKSURL, metrics.Registry))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
