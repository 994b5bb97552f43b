package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"tgcord/internal/access"
	"tgcord/internal/config"
	"tgcord/internal/constants"
	"tgcord/internal/database"
	"tgcord/internal/metrics"
	"tgcord/internal/models"
	"tgcord/internal/retry"
	"tgcord/internal/service"
	"tgcord/internal/tracing"
	"tgcord/pkg/discord"
	"tgcord/pkg/media"
	"tgcord/pkg/router"
	"tgcord/pkg/telegram"
	"tgcord/pkg/userclient"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes chat ids and message content)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	envFile    = flag.String("env", ".env", "Optional dotenv file loaded before the configuration")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("tgcord %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting tgcord")

	if err := config.LoadEnvFile(*envFile); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	configureLogLevel(logger, cfg.LogLevel, *verbose)

	tracingManager := tracing.NewManager(cfg.Tracing, Version, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	workDir, err := media.NewWorkDir(cfg.Media.WorkDir)
	if err != nil {
		return fmt.Errorf("failed to prepare media work dir: %w", err)
	}

	// getUpdates holds the connection for the poll timeout, so the client
	// timeout has to outlast it.
	botHTTP := &http.Client{Timeout: time.Duration(cfg.Telegram.PollTimeoutSec+constants.DefaultRequestTimeoutSec) * time.Second}
	bot := telegram.NewClientWithLogger(cfg.Telegram.APIURL, cfg.Telegram.BotToken, botHTTP, logger)

	delivery := discord.NewClient(discord.Options{
		HTTPClient:   &http.Client{Timeout: time.Duration(cfg.Discord.RequestTimeoutSec) * time.Second},
		UploadClient: &http.Client{Timeout: time.Duration(cfg.Discord.UploadTimeoutSec) * time.Second},
		Logger:       logger,
		OnRetry: func(operation string, attempt int, err error) {
			metrics.IncrementCounter("delivery_retries_total", map[string]string{"operation": operation}, "Discord requests retried after a transient failure")
		},
	})

	var (
		sidecar   *userclient.SidecarClient
		bootstrap *access.Bootstrap
		userAPI   userclient.Client
	)
	if cfg.HasSecondaryClient() {
		sidecar = userclient.NewClient(cfg.UserClient.BaseURL,
			&http.Client{Timeout: time.Duration(cfg.UserClient.TimeoutSec) * time.Second}, logger)
		userAPI = sidecar
		bootstrap = access.NewBootstrap(access.Options{
			Client:     sidecar,
			Inviter:    bot,
			InviteLink: cfg.Telegram.InviteLink,
			Margin:     time.Duration(cfg.UserClient.JoinBackoffMarginSec) * time.Second,
			Logger:     logger,
			OnStateChange: func(chatID int64, state models.AccessState) {
				metrics.IncrementCounter("access_transitions_total", map[string]string{"state": state.String()}, "User session access state transitions")
			},
		})
	} else {
		logger.Info("No user client configured: large media, reconciliation and live events are disabled")
	}

	acquirerOpts := media.AcquirerOptions{
		Bot:      bot,
		User:     userAPI,
		WorkDir:  workDir,
		BotLimit: cfg.Media.BotDownloadLimitBytes,
		Logger:   logger,
	}
	if bootstrap != nil {
		acquirerOpts.Access = bootstrap
	}
	acquirer := media.NewAcquirer(acquirerOpts)

	routes, err := buildRouter(cfg)
	if err != nil {
		return fmt.Errorf("invalid routing table: %w", err)
	}

	deps := service.RelayDeps{
		Store:    db,
		Router:   routes,
		Delivery: delivery,
		Acquirer: acquirer,
		Notifier: service.NewAdminNotifier(bot, cfg.Telegram.AdminChatID, logger),
	}
	ffmpeg := media.NewFFmpeg(cfg.Media.FFmpegPath, cfg.Media.FFprobePath)
	if ffmpeg.Available() {
		ladder := media.NewLadder(ffmpeg, ffmpeg, cfg.Media.CompressionWorkers, logger)
		defer ladder.Stop()
		deps.Compressor = ladder
	} else {
		logger.Warn("ffmpeg/ffprobe not found: oversized videos will be relayed as a notice")
	}

	relay := service.NewRelay(deps, service.RelayConfig{
		SourceChatID:   cfg.Telegram.SourceChatID,
		IncludeAuthor:  cfg.Telegram.IncludeAuthor,
		ForwardEdits:   cfg.Telegram.ForwardEdits,
		MaxUploadBytes: cfg.Discord.MaxUploadBytes,
	}, logger)

	ctxWithVerbose := service.WithVerbose(ctx, *verbose)

	workers := cfg.WorkerConcurrency
	if workers <= 0 {
		workers = constants.DefaultWorkerConcurrency
	}
	dispatcher := service.NewDispatcher(ctxWithVerbose, relay, workers, 0, logger)
	defer dispatcher.Stop()

	watcher := config.NewRouteWatcher(*configPath, cfg, func(next *models.Config) error {
		return routes.Update(routeTable(next), next.Discord.DefaultWebhookURL)
	}, logger)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.WithError(err).Warn("Route watcher stopped")
		}
	}()

	scheduler := service.NewScheduler(workDir, cfg.Media.CleanupMaxAgeHours,
		time.Duration(constants.DefaultMediaCleanupIntervalHr)*time.Hour, logger)
	go scheduler.Start(ctx)
	defer scheduler.Stop()

	if bootstrap != nil {
		if err := bootstrap.Ensure(ctx, cfg.Telegram.SourceChatID); err != nil {
			logger.WithError(err).Warn("User session could not join the source chat yet")
		}

		monitor := access.NewMonitor(bootstrap, time.Duration(cfg.UserClient.HeartbeatIntervalSec)*time.Second, logger)
		monitor.Start(ctx)
		defer monitor.Stop()

		reconciler := service.NewReconciler(db, delivery, sidecar, bootstrap, relay,
			cfg.Reconcile, cfg.Telegram.SourceChatID, logger)
		if err := reconciler.Start(ctxWithVerbose); err != nil {
			logger.Warnf("Failed to start reconciler: %v", err)
		}
		defer reconciler.Stop()

		if cfg.UserClient.EventsEnabled {
			live := service.NewLiveEvents(sidecar, db, delivery, relay, cfg.Telegram.SourceChatID, cfg.Retry, logger)
			if err := live.Start(ctxWithVerbose); err != nil {
				logger.Warnf("Failed to start live event stream: %v", err)
			}
			defer live.Stop()
		}
	}

	if cfg.Telegram.UpdateMode == "webhook" {
		if cfg.Telegram.WebhookURL != "" {
			if err := bot.SetWebhook(ctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
				return fmt.Errorf("failed to register Telegram webhook: %w", err)
			}
			logger.Info("Telegram webhook registered")
		}
	} else {
		poller := service.NewUpdatePoller(bot, dispatcher, cfg.Telegram.PollTimeoutSec, cfg.Retry, logger)
		if err := poller.Start(ctxWithVerbose); err != nil {
			return fmt.Errorf("failed to start update poller: %w", err)
		}
		defer poller.Stop()
	}

	server := NewServer(ServerOptions{
		Config:        cfg.Server,
		WebhookSecret: cfg.Telegram.WebhookSecret,
		AcceptUpdates: cfg.Telegram.UpdateMode == "webhook",
		Sink:          dispatcher,
		Store:         db,
		Verbose:       *verbose,
	}, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultGracefulShutdownSec*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

// configureLogLevel applies -verbose, then the configured level, then info.
func configureLogLevel(logger *logrus.Logger, level string, verbose bool) {
	switch {
	case verbose:
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - chat ids and content will be logged")
	case level != "":
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", level)
			logger.SetLevel(logrus.InfoLevel)
			return
		}
		logger.SetLevel(parsed)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}
}

func openDatabase(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*database.Database, error) {
	var db *database.Database
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})

	err := backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	return db, nil
}

func routeTable(cfg *models.Config) []router.Route {
	routes := make([]router.Route, 0, len(cfg.Discord.Routes))
	for _, r := range cfg.Discord.Routes {
		routes = append(routes, router.Route{Tag: r.Tag, Endpoint: r.WebhookURL})
	}
	return routes
}

func buildRouter(cfg *models.Config) (*router.Router, error) {
	return router.New(routeTable(cfg), cfg.Discord.DefaultWebhookURL)
}

func serverAddr(port int) string {
	if port <= 0 {
		port = constants.DefaultServerPort
	}
	return ":" + strconv.Itoa(port)
}
