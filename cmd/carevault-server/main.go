package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carevault/carevault/internal/config"
	"github.com/carevault/carevault/internal/domain/auditevent"
	"github.com/carevault/carevault/internal/domain/authorization"
	"github.com/carevault/carevault/internal/domain/directory"
	"github.com/carevault/carevault/internal/domain/medicalrecord"
	"github.com/carevault/carevault/internal/platform/actor"
	"github.com/carevault/carevault/internal/platform/db"
	"github.com/carevault/carevault/internal/platform/gate"
	"github.com/carevault/carevault/internal/platform/middleware"
	"github.com/carevault/carevault/internal/platform/notification"
	"github.com/carevault/carevault/internal/platform/token"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "carevault-server",
		Short: "Access authorization and consent API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Audit trail. The recorder owns a background writer; it is closed last
	// during shutdown so queued events from in-flight requests still land.
	auditRepo := auditevent.NewRepoPG(pool)
	recorder := auditevent.NewRecorder(auditRepo, logger, cfg.AuditQueueSize, cfg.AuditWriteRetries)

	// Directory and notifications
	dirRepo := directory.NewRepoPG(pool)
	notifSvc := notification.NewService(&notification.LogSender{Logger: logger}, dirRepo, dirRepo, logger)
	notifier := authorization.NotifierFunc(func(ctx context.Context, n authorization.Notification) {
		notifSvc.Notify(ctx, n.Recipient, n.Template, n.Data)
	})

	// Capability tokens
	tokenSvc := token.NewService([]byte(cfg.CapabilitySigningKey), token.TTLs{
		Standard:  cfg.TokenTTLStandard,
		Emergency: cfg.TokenTTLEmergency,
		Secret:    cfg.TokenTTLSecret,
	})

	// Consent workflow
	authRepo := authorization.NewRepoPG(pool)
	dispatcher := authorization.NewDispatcher(recorder, notifier)
	authSvc := authorization.NewService(
		authRepo, dirRepo, dirRepo, tokenSvc, dispatcher,
		authorization.OverridePolicy{Window: cfg.EmergencyAccessWindow, NotifyPatient: cfg.EmergencyNotifyPatient},
		authorization.OverridePolicy{Window: cfg.SecretAccessWindow, NotifyPatient: cfg.SecretNotifyPatient},
	)

	// Access gate
	g := gate.New(tokenSvc, authRepo, recorder)

	// Medical records
	recordSvc := medicalrecord.NewService(medicalrecord.NewRepoPG(pool))

	// Audit query surface
	auditSvc := auditevent.NewService(auditRepo)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", gate.CapabilityHeader},
	}))

	// Health checks stay outside the authenticated group
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Authenticated API
	apiV1 := e.Group("/api/v1")
	apiV1.Use(actor.Middleware([]byte(cfg.AuthSigningKey)))

	authorization.NewHandler(authSvc).RegisterRoutes(apiV1)
	medicalrecord.NewHandler(recordSvc).RegisterRoutes(apiV1, g)
	auditevent.NewHandler(auditSvc).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}

	// Flush outstanding notifications and audit events.
	notifSvc.Wait()
	recorder.Close()

	logger.Info().Msg("server stopped")
	return nil
}
