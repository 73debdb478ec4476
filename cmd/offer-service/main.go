package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"marketplace-offer-service/internal/adapters/broadcaster"
	"marketplace-offer-service/internal/adapters/db"
	"marketplace-offer-service/internal/adapters/hub"
	"marketplace-offer-service/internal/adapters/redis"
	"marketplace-offer-service/internal/adapters/rest"
	"marketplace-offer-service/internal/adapters/sqlite"
	"marketplace-offer-service/internal/adapters/ws"
	"marketplace-offer-service/internal/app"
	"marketplace-offer-service/internal/config"
	"marketplace-offer-service/internal/ports/outbound"
)

func main() {

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	initLogging(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().Str("store_driver", cfg.Database.Driver).Msg("Starting Marketplace Offer Service...")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer store.Close()

	log.Info().Msg("Store initialized")

	// Start the event hub
	eventHub := hub.New(hub.Params{
		InboxSize:   cfg.Hub.InboxSize,
		MailboxSize: cfg.Hub.MailboxSize,
		SendTimeout: cfg.Hub.SendTimeout,
		Logger:      log.Logger,
	})
	hubCtx, stopHub := context.WithCancel(context.Background())
	go eventHub.Run(hubCtx)

	// Redis backs idempotency keys and the optional event relay
	var idempotency outbound.IdempotencyStore
	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(cfg)
		if err := redis.PingRedis(context.Background(), redisClient); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis connection established")

		idempotency = redis.NewIdempotencyStore(redis.IdempotencyStoreParams{
			RedisClient: redisClient,
			TTL:         cfg.Redis.IdempotencyTTL,
			Logger:      log.Logger,
		})

		if cfg.Redis.RelayEnabled {
			relay := broadcaster.NewRedisRelay(broadcaster.RedisRelayParams{
				RedisClient: redisClient,
				Logger:      log.Logger,
			})
			if err := eventHub.Register(ctx, relay, true); err != nil {
				log.Fatal().Err(err).Msg("Failed to register Redis relay")
			}
			log.Info().Msg("Redis event relay registered")
		}
	}

	// Create business services
	offerService := app.NewOfferService(app.OfferServiceParams{
		Store:       store,
		Idempotency: idempotency,
		Publisher:   eventHub,
		TxTimeout:   cfg.Database.TxTimeout,
		Logger:      log.Logger,
	})
	catalogService := app.NewCatalogService(app.CatalogServiceParams{
		Store:     store,
		Publisher: eventHub,
		Logger:    log.Logger,
	})

	log.Info().Msg("Business services initialized")

	wsHandler := ws.NewHandler(ws.WsHandlerParams{
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
			WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		},
		OfferService:   offerService,
		CatalogService: catalogService,
		Broadcaster:    eventHub,
		MaxWorkers:     cfg.WebSocket.MaxWorkers,
		MaxCapacity:    cfg.WebSocket.MaxCapacity,
		WriteTimeout:   cfg.Hub.SendTimeout,
		Logger:         log.Logger,
	})

	router := rest.NewRouter(rest.RouterParams{
		OfferService:   offerService,
		CatalogService: catalogService,
		WebSocket:      wsHandler.HandleWebSocket,
		Logger:         log.Logger,
	})

	server := rest.NewServer(rest.ServerParams{
		Config:  cfg,
		Handler: router,
		Logger:  log.Logger,
	})

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start HTTP server")
			cancel()
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled")
	}

	// Graceful shutdown
	log.Info().Msg("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping HTTP server")
	}

	wsHandler.CloseAll()

	stopHub()
	select {
	case <-eventHub.Done():
		log.Info().Msg("Event hub stopped")
	case <-shutdownCtx.Done():
		log.Warn().Msg("Timed out waiting for event hub")
	}

	log.Info().Msg("Graceful shutdown completed")
}

// openStore selects the store implementation named by STORE_DRIVER
func openStore(cfg *config.Config) (outbound.Store, error) {
	if cfg.Database.Driver == config.DriverSQLite {
		store, err := sqlite.Open(cfg.Database.SQLitePath, log.Logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	if cfg.Database.Migrate {
		if err := db.Migrate(cfg.Database.GetConnectionString(), log.Logger); err != nil {
			return nil, err
		}
	}

	dbConn, err := db.NewConnection(cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("Database connection established")

	return db.NewStore(db.StoreParams{Conn: dbConn, Logger: log.Logger}), nil
}

func initLogging(cfg *config.Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Set log format
	if cfg.Logging.Format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		// Console format for development
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.DefaultContextLogger = &log.Logger
}
