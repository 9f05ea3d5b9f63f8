package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"studio-backend/internal/access"
	"studio-backend/internal/config"
	"studio-backend/internal/database"
	"studio-backend/internal/handlers"
	"studio-backend/internal/logger"
	"studio-backend/internal/metrics"
	"studio-backend/internal/middleware"
	"studio-backend/internal/repository"
	"studio-backend/internal/router"
	"studio-backend/internal/services"
	"studio-backend/internal/websocket"
	"studio-backend/internal/worker"
)

var skipMigrations bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, notification workers and reminder scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "Do not apply pending migrations on startup")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("starting studio backend", zap.String("version", version), zap.String("env", cfg.Env))

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("invalid STUDIO_TIMEZONE %q: %w", cfg.Timezone, err)
	}

	if !skipMigrations {
		schema, applied, err := database.RunMigrations(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		log.Info("database migrations checked", zap.Uint("version", schema), zap.Bool("applied", applied))
	}

	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	log.Info("postgres connected")

	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClients.Close()
	log.Info("redis connected")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Repositories
	memberRepo := repository.NewMemberRepo(pool)
	packageRepo := repository.NewPackageRepo(pool)
	sessionRepo := repository.NewSessionRepo(pool)
	staffRepo := repository.NewStaffRepo(pool)

	// Services
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	notifier := services.NewRedisNotifier(redisClients.Store, m)
	events := services.NewRedisEventPublisher(redisClients.Store)
	emailService := services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.FrontendURL, loc, log)

	authService := services.NewAuthService(staffRepo, redisClients.Store, jwtAuth, log)
	scheduling := services.NewSchedulingService(sessionRepo, memberRepo, packageRepo, notifier, events, m, log, cfg.Devices)
	packageService := services.NewPackageService(packageRepo, memberRepo, m, log)
	memberService := services.NewMemberService(memberRepo)

	// Background work
	workers := worker.NewPool(redisClients.Store, memberRepo, emailService, cfg.WorkerCount, log)
	expiry := services.NewPackageExpiryScheduler(packageRepo, redisClients.Store, notifier, cfg.ExpiryReminderDays, log)
	hub := websocket.NewHub(redisClients.PubSub, services.ScheduleChannel, jwtAuth, cfg.FrontendURL, m, log)
	authLimiter := middleware.NewRateLimiter(10, time.Minute, log)

	handler := router.New(router.Deps{
		JWTAuth:        jwtAuth,
		Policy:         access.DefaultPolicy(),
		AuthLimiter:    authLimiter,
		Metrics:        m,
		Logger:         log,
		AuthHandler:    handlers.NewAuthHandler(authService, log),
		SessionHandler: handlers.NewSessionHandler(scheduling, log),
		PackageHandler: handlers.NewPackageHandler(packageService, log),
		MemberHandler:  handlers.NewMemberHandler(memberService, packageService, scheduling, log),
		Hub:            hub,
		FrontendURL:    cfg.FrontendURL,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	workers.Start(gctx)
	g.Go(func() error {
		workers.Wait()
		return nil
	})
	g.Go(func() error {
		expiry.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		authLimiter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("studio backend stopped with error", zap.Error(err))
		return err
	}
	log.Info("studio backend stopped")
	return nil
}
