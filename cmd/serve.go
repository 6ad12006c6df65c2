package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"conference-central/announcement"
	"conference-central/config"
	"conference-central/database"
	"conference-central/handlers"
	"conference-central/logging"
	"conference-central/notification"
	"conference-central/query"
	"conference-central/registration"
	"conference-central/router"
	"conference-central/service"
)

const shutdownTimeout = 10 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with the email worker and announcement refresher",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.RunE = runServe
	rootCmd.PersistentFlags().StringVar(&serveAddr, "addr", "", "address to listen on (overrides config)")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logging.Init(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("closing store failed")
		}
	}()

	srv := newServer(cfg, store)
	defer srv.queue.Close()
	if err := srv.worker.Subscribe(ctx); err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr()
	}
	return srv.run(ctx, addr)
}

func openStore(ctx context.Context, cfg config.StoreConfig) (database.EntityStore, error) {
	switch cfg.Backend {
	case "mongo":
		s, err := database.ConnectMongo(ctx, database.MongoOptions{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
		if err != nil {
			return nil, fmt.Errorf("connecting to mongo: %w", err)
		}
		return s, nil
	default:
		s, err := database.OpenBadger(database.BadgerOptions{Path: cfg.BadgerPath, InMemory: cfg.InMemory})
		if err != nil {
			return nil, fmt.Errorf("opening badger at %q: %w", cfg.BadgerPath, err)
		}
		return s, nil
	}
}

// server is the assembled process: HTTP app plus background workers.
type server struct {
	app       *fiber.App
	queue     *notification.Queue
	worker    *notification.Worker
	refresher *announcement.Refresher
}

func newServer(cfg *config.Config, store database.EntityStore) *server {
	retry := database.RetryPolicy{
		MaxRetries: cfg.Store.TxMaxRetries,
		Initial:    cfg.Store.TxInitialBackoff,
		Max:        cfg.Store.TxMaxBackoff,
	}

	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: cfg.Notification.BufferSize,
	}, logging.NewWatermillAdapter())
	breaker := notification.NewBreaker(notification.BreakerConfig{
		Name:        "notification-publish",
		MaxFailures: cfg.Notification.BreakerMaxFailures,
		Timeout:     cfg.Notification.BreakerTimeout,
	})
	queue := notification.NewQueue(pubSub, cfg.Notification.Topic, breaker)
	worker := notification.NewWorker(pubSub, cfg.Notification.Topic, notification.LogMailer{})

	planner := query.NewPlanner(store, cfg.Store.QueryPageLimit)
	cache := announcement.NewCache()
	refresher := announcement.NewRefresher(planner, cache, cfg.Announcement.Threshold, cfg.Announcement.RefreshInterval)

	api := service.New(service.Options{
		Store:         store,
		Planner:       planner,
		Coordinator:   registration.NewCoordinator(store, queue, retry),
		Emails:        queue,
		Announcements: cache,
		Retry:         retry,
	})
	h := handlers.New(api, handlers.AuthSettings{
		SigningKey: cfg.Auth.SigningKey,
		TokenTTL:   cfg.Auth.TokenTTL,
		Accounts:   cfg.Auth.Accounts,
	})

	app := newApp(cfg.Server.ReadTimeout)
	router.SetupRoutes(app, h, cfg.Auth.SigningKey)

	return &server{app: app, queue: queue, worker: worker, refresher: refresher}
}

func newApp(readTimeout time.Duration) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               "conference-central",
		ReadTimeout:           readTimeout,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		DisableStartupMessage: true,
	})
}

// run serves until ctx is cancelled or one of the components fails, then
// shuts the HTTP server down.
func (s *server) run(ctx context.Context, addr string) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.worker.Run(ctx) })
	g.Go(func() error { return s.refresher.Run(ctx) })
	g.Go(func() error {
		logging.Info().Str("addr", addr).Msg("listening")
		if err := s.app.Listen(addr); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logging.Info().Msg("shutting down")
		return s.app.ShutdownWithContext(shutdownCtx)
	})

	return g.Wait()
}
