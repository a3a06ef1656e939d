package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/warrantypanel/internal/adapter/driven/mail"
	sqliteadapter "github.com/ericfisherdev/warrantypanel/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/warrantypanel/internal/adapter/driven/upstream"
	httphandler "github.com/ericfisherdev/warrantypanel/internal/adapter/driving/http"
	webhandler "github.com/ericfisherdev/warrantypanel/internal/adapter/driving/web"
	"github.com/ericfisherdev/warrantypanel/internal/application"
	"github.com/ericfisherdev/warrantypanel/internal/auth"
	"github.com/ericfisherdev/warrantypanel/internal/config"
	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
)

const (
	reportCacheTTL       = 30 * time.Minute
	sessionSweepInterval = 15 * time.Minute

	loginBurst       = 5
	loginRefill      = 12 * time.Second
	loginLimiterIdle = 10 * time.Minute
	shutdownTimeout  = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("warrantypanel", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to a TOML config file (environment variables override it)")
	envFile := flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	// 1. Load configuration (fail fast on missing required env vars).
	// A missing .env file is normal outside development.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", *envFile, err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"base_url", cfg.BaseURL,
		"report_window_days", cfg.ReportWindowDays,
		"report_concurrency", cfg.ReportConcurrency,
		"smtp_host", cfg.SMTP.Host,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()
	logger.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer.DB); err != nil {
		return err
	}
	logger.Info("migrations complete")

	// 5. Derive keys from the master secret.
	fieldKey, err := auth.DeriveKey([]byte(cfg.SecretKey), auth.PurposeFieldCipher)
	if err != nil {
		return err
	}
	sessionKey, err := auth.DeriveKey([]byte(cfg.SecretKey), auth.PurposeSessionToken)
	if err != nil {
		return err
	}
	cipher, err := sqliteadapter.NewFieldCipher(fieldKey)
	if err != nil {
		return err
	}

	// 6. Wire adapters.
	clock := clockwork.NewRealClock()
	accountStore := sqliteadapter.NewAccountRepo(db)
	sessionStore := sqliteadapter.NewSessionRepo(db)
	credentialStore := sqliteadapter.NewCredentialRepo(db, cipher, clock)
	deviceClient := upstream.NewClient(cfg.BaseURL, cfg.UpstreamTimeout, logger)

	systemSettings := model.MailSettings{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		TLS:      cfg.SMTP.TLS,
	}
	systemMailer := mail.NewSystemMailer(systemSettings, cfg.SMTP.From, clock, logger)
	if cfg.SMTP.Host == "" {
		logger.Warn("no smtp host configured, sign-in codes will only be logged")
	}

	// 7. Create services.
	authSvc := application.NewAuthService(
		accountStore,
		sessionStore,
		systemMailer,
		auth.NewTokenSigner(sessionKey),
		clock,
		cfg.OTPCooldown,
		cfg.SessionTTL,
		logger,
	)
	credentialSvc := application.NewCredentialService(credentialStore, logger)
	reportSvc := application.NewReportService(
		deviceClient,
		credentialSvc,
		mail.NewFactory(clock, logger),
		application.NewReportCache(clock, reportCacheTTL),
		clock,
		cfg.ReportWindowDays,
		cfg.ReportConcurrency,
		cfg.ReportTimeout,
		logger,
	)

	// 8. Background workers.
	go application.NewSessionSweeper(authSvc, clock, sessionSweepInterval).Start(ctx)

	limiter := webhandler.NewRateLimiter(loginBurst, loginRefill, loginLimiterIdle, clock)
	go limiter.Run(ctx)

	// 9. Register API and GUI routes on one mux.
	mux := http.NewServeMux()
	httphandler.RegisterRoutes(mux, httphandler.NewHandler(authSvc, reportSvc, db, clock, logger))
	webhandler.RegisterRoutes(mux, webhandler.NewHandler(authSvc, credentialSvc, reportSvc, limiter, clock, cfg.SecureCookies, logger))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.ApplyMiddleware(mux, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Report runs are cut off at ReportTimeout and answered with 504,
		// so the write deadline only needs headroom for rendering.
		WriteTimeout: cfg.ReportTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// 10. Wait for shutdown signal or a listener failure.
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
