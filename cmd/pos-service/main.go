package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/vasiliy-maslov/restaurant-pos/internal/activity"
	"github.com/vasiliy-maslov/restaurant-pos/internal/config"
	"github.com/vasiliy-maslov/restaurant-pos/internal/db"
	"github.com/vasiliy-maslov/restaurant-pos/internal/handler"
	"github.com/vasiliy-maslov/restaurant-pos/internal/inventory"
	"github.com/vasiliy-maslov/restaurant-pos/internal/menu"
	"github.com/vasiliy-maslov/restaurant-pos/internal/metrics"
	"github.com/vasiliy-maslov/restaurant-pos/internal/notify"
	"github.com/vasiliy-maslov/restaurant-pos/internal/order"
	"github.com/vasiliy-maslov/restaurant-pos/internal/recipe"
	"github.com/vasiliy-maslov/restaurant-pos/internal/table"
	"github.com/vasiliy-maslov/restaurant-pos/internal/transport"
	"github.com/vasiliy-maslov/restaurant-pos/internal/writeoff"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg.App)

	log.Info().Msg("POS service starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbConn, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbConn.Close()

	collector := metrics.NewCollector()
	hub := notify.NewHub()

	var publisher notify.Publisher = hub
	if cfg.NATS.Enabled {
		natsPub, err := notify.NewNATSPublisher(cfg.NATS.URL, cfg.App.Name)
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS")
		}
		defer func() {
			if err := natsPub.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close NATS connection")
			}
		}()
		publisher = notify.Multi{hub, natsPub}
	}

	sink, closeSink := newActivitySink(ctx, cfg.Activity, dbConn)
	defer closeSink()
	recorder := activity.NewRecorder(sink, cfg.Activity.BufferSize)

	menuService := menu.NewService(menu.NewRepository(dbConn.Pool))
	inventoryService := inventory.NewService(inventory.NewRepository(dbConn.Pool), collector)
	recipeService := recipe.NewService(recipe.NewRepository(dbConn.Pool), inventoryService, menuService)
	tableService := table.NewService(table.NewRepository(dbConn.Pool))
	engine := writeoff.NewEngine(recipeService, cfg.WriteOff.MaxAttempts)
	orderService := order.NewService(
		order.NewRepository(dbConn.Pool),
		menuService,
		engine,
		publisher,
		recorder,
		collector,
		order.Options{BlockPaymentOnFailure: cfg.WriteOff.BlockPaymentOnFailure},
	)

	router := transport.NewRouter(
		transport.Options{
			DB:       dbConn.Pool,
			Metrics:  collector.Handler(),
			OrdersWS: hub.ServeWS,
		},
		handler.NewOrderHandler(orderService),
		handler.NewInventoryHandler(inventoryService),
		handler.NewRecipeHandler(recipeService),
		handler.NewMenuHandler(menuService),
		handler.NewTableHandler(tableService),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return hub.Run(gCtx) })
	g.Go(func() error { return recorder.Run(gCtx) })
	g.Go(func() error {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Info().Msg("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		return
	}
	if n := recorder.Dropped(); n > 0 {
		log.Warn().Int64("dropped", n).Msg("Activity entries dropped while running")
	}
	log.Info().Msg("Server stopped")
}

func setupLogger(cfg config.AppConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", cfg.Name).Logger()
}

func newActivitySink(ctx context.Context, cfg config.ActivityConfig, dbConn *db.Postgres) (activity.Sink, func()) {
	switch cfg.Sink {
	case "mongo":
		sink, err := activity.NewMongoSink(ctx, cfg.MongoURL, cfg.MongoDB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to activity store")
		}
		return sink, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sink.Close(closeCtx); err != nil {
				log.Error().Err(err).Msg("Failed to close activity store")
			}
		}
	case "none":
		return activity.NopSink{}, func() {}
	default:
		return activity.NewPostgresSink(dbConn.Pool), func() {}
	}
}
