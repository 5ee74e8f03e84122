package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jackzmc/flashforge-api-server/internal/camera"
	"github.com/Jackzmc/flashforge-api-server/internal/config"
	"github.com/Jackzmc/flashforge-api-server/internal/db"
	"github.com/Jackzmc/flashforge-api-server/internal/db/repository"
	"github.com/Jackzmc/flashforge-api-server/internal/notify"
	"github.com/Jackzmc/flashforge-api-server/internal/printer"
	"github.com/Jackzmc/flashforge-api-server/internal/router"
	"github.com/Jackzmc/flashforge-api-server/internal/service"
	"github.com/Jackzmc/flashforge-api-server/internal/watcher"
	"github.com/Jackzmc/flashforge-api-server/internal/websockets"
)

// memoryHistory is how many jobs per printer are kept without a database
const memoryHistory = 100

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, camera relay and completion watcher.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger(os.Stderr, cfg.Server)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := printer.NewRegistry(cfg.PrinterIdentities(), printer.Options{
		CommandTimeout: cfg.Server.CommandTimeout,
		DialTimeout:    cfg.Server.DialTimeout,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	cameras := camera.NewManager(registry.Identities(), camera.Options{
		Buffer: cfg.Camera.SubscriberBuffer,
		Logger: logger,
	})

	repos, closeRepos, err := openRepositories(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeRepos()

	hub := websockets.NewHub(logger)
	if len(cfg.Server.AllowedOrigins) > 0 {
		websockets.SetAllowedOrigins(cfg.Server.AllowedOrigins)
	}

	routes := notifyRoutes(cfg)
	if cfg.MQTT.Enabled() {
		client := notify.NewMQTTClient(notify.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			QoS:      cfg.MQTT.QoS,
		}, logger)
		if err := client.Connect(10 * time.Second); err != nil {
			// paho keeps retrying in the background
			logger.Warn("MQTT broker not reachable yet", "error", err)
		}
		defer client.Disconnect()
		routes.MQTT = client
	}
	if routes.OnDone.Empty() && routes.OnFailed.Empty() && len(routes.Printers) == 0 {
		logger.Info("No notification destinations configured")
	}
	notifier := notify.NewNotifier(routes, cfg.Notifications.Timeout, logger)

	pollers := make([]watcher.Poller, 0, len(registry.List()))
	for _, p := range registry.Printers() {
		pollers = append(pollers, p)
	}
	watchers := watcher.NewGroup(pollers, watcher.Config{
		Interval:        cfg.Watcher.Interval,
		SnapshotTimeout: cfg.Watcher.SnapshotTimeout,
		Snapshot: func(ctx context.Context, name string) ([]byte, error) {
			relay, err := cameras.Relay(name)
			if err != nil {
				return nil, err
			}
			return relay.Snapshot(ctx)
		},
		Notifier: notifier,
		History:  repos.Jobs,
		Events:   hub,
		Logger:   logger,
	})

	auth, err := service.NewAuthService(service.AuthConfig{
		Password:         cfg.Auth.Password,
		PasswordForRead:  cfg.Auth.PasswordForRead,
		PasswordForWrite: cfg.Auth.PasswordForWrite,
	}, service.JWTConfig{
		Secret:    cfg.JWT.Secret,
		ExpiresIn: cfg.JWT.ExpiresIn,
	})
	if err != nil {
		return err
	}

	printers := service.NewPrinterService(registry, cameras, repos.Jobs, watchers)
	r := router.New(registry, printers, auth, hub, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	if !cfg.Watcher.Disabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			watchers.Run(ctx)
		}()
	}

	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", cfg.Server.Address, "printers", registry.List())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		stop()
		wg.Wait()
		return fmt.Errorf("failed to start server: %w", err)
	}
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Camera streams never finish on their own, end them before waiting on handlers
	cameras.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	wg.Wait()
	if err := registry.Close(shutdownCtx); err != nil {
		logger.Warn("Failed to release printers", "error", err)
	}

	logger.Info("Server exited properly")
	return nil
}

func openRepositories(ctx context.Context, cfg config.Database) (*repository.Repositories, func(), error) {
	if !cfg.Enabled() {
		slog.Info("No database configured, keeping job history in memory")
		return repository.NewMemoryRepositories(memoryHistory), func() {}, nil
	}

	database, err := db.NewPostgres(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.Migrate(cfg); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	return repository.NewRepositories(database), func() { database.Close() }, nil
}

func targets(d config.Destinations) notify.Targets {
	return notify.Targets{Emails: d.Emails, Webhooks: d.Webhooks, MQTTTopics: d.MQTTTopics}
}

func notifyRoutes(cfg *config.Config) *notify.Routes {
	routes := &notify.Routes{
		OnDone:   targets(cfg.Notifications.OnDone),
		OnFailed: targets(cfg.Notifications.OnFailed),
		Printers: make(map[string]notify.Override, len(cfg.Notifications.Printers)),
	}
	for name, p := range cfg.Notifications.Printers {
		var o notify.Override
		if p.OnDone != nil {
			t := targets(*p.OnDone)
			o.OnDone = &t
		}
		if p.OnFailed != nil {
			t := targets(*p.OnFailed)
			o.OnFailed = &t
		}
		routes.Printers[name] = o
	}
	if cfg.SMTP != nil {
		routes.SMTP = &notify.SMTPConfig{
			Host:       cfg.SMTP.Host,
			Port:       cfg.SMTP.Port,
			Username:   cfg.SMTP.User,
			Password:   cfg.SMTP.Password,
			From:       cfg.SMTP.From,
			Encryption: cfg.SMTP.Encryption,
		}
	}
	return routes
}
