package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goahttp "goa.design/goa/v3/http"
	"goa.design/goa/v3/http/middleware"
	"golang.org/x/sync/errgroup"

	"envelope/internal/config"
	"envelope/internal/database"
	"envelope/internal/metrics"
	"envelope/internal/queue"
	"envelope/internal/ratelimit"
	"envelope/internal/services"
	"envelope/internal/store"
	"envelope/internal/util"
)

const (
	shutdownTimeout = 30 * time.Second
	readTimeout     = 15 * time.Second
	writeTimeout    = 15 * time.Second
	idleTimeout     = 60 * time.Second
)

func main() {
	log.SetPrefix("[API] ")
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	log.Printf("Starting %s v%s", cfg.App.Name, cfg.App.Version)
	log.Printf("Environment: debug=%v, port=%s, host=%s", cfg.App.Debug, cfg.App.Port, cfg.App.Host)

	if err := run(cfg); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	log.Println("Server shutdown complete")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("Initializing database connection...")
	db, err := database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		log.Println("Closing database connections...")
		if err := database.Close(db); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()
	st := store.NewGormStore(db)

	log.Println("Initializing services...")
	emailSvc, err := services.NewEmailService(&cfg.Email)
	if err != nil {
		return err
	}
	renderer, err := services.NewTemplateRenderer()
	if err != nil {
		return err
	}
	tokens := util.NewTokenManager(cfg.Auth.SecretKey, time.Duration(cfg.Auth.TokenExpiryMinutes)*time.Minute)
	secureCookies := !cfg.App.Debug

	workers, ctx := errgroup.WithContext(ctx)
	taskQueue, closeQueue, err := startQueue(ctx, workers, cfg, emailSvc)
	if err != nil {
		return err
	}
	defer closeQueue()

	hooks := services.NewHooks()
	if cfg.Redis.Addr != "" && cfg.Contact.RateLimit > 0 {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.Redis.Addr, cfg.Redis.Password, "envelope:contact", cfg.Contact.RateLimit, cfg.Contact.RateWindow)
		if err != nil {
			return err
		}
		defer limiter.Close()
		proxies, err := util.ParseProxyList(cfg.Contact.TrustedProxies)
		if err != nil {
			return err
		}
		hooks.OnBeforeSubmit(services.NewRateLimitHook(limiter, proxies))
	}
	if len(cfg.Contact.BlockedDomains) > 0 {
		hooks.OnBeforeSubmit(services.NewBlockedDomainsHook(cfg.Contact.BlockedDomains))
	}
	notifier := services.NewEmailNotifier(taskQueue, cfg.Contact.NotifyEmails)
	hooks.OnAfterSubmit(notifier)

	log.Println("Mounting HTTP handlers...")
	mux := goahttp.NewMuxer()
	services.NewHealthService(db, cfg.App.Name, cfg.App.Version).Mount(mux)
	services.NewAuthService(st, tokens, cfg.Auth.CookieName, secureCookies).Mount(mux)
	services.NewContactService(st, mux, hooks, renderer, services.NewFlashStore(cfg.Auth.SecretKey, secureCookies), &cfg.Contact).Mount()
	services.NewModerationService(st, renderer, mux).Mount()
	mux.Handle(http.MethodGet, "/metrics", promhttp.Handler().ServeHTTP)

	authn := services.NewAuthenticator(tokens, st, cfg.Auth.CookieName)
	var handler http.Handler = authn.Middleware(mux)
	handler = middleware.PopulateRequestContext()(handler)
	handler = requestLogging(handler)
	handler = middleware.RequestID(middleware.UseXRequestIDHeaderOption(true))(handler)
	handler = setupSecurityHeaders(setupCORS(metrics.PrometheusMiddleware(handler), cfg), cfg)

	addr := fmt.Sprintf("%s:%s", cfg.App.Host, cfg.App.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
		ErrorLog:     log.New(os.Stderr, "[HTTP] ", log.LstdFlags),
	}

	workers.Go(func() error {
		log.Printf("Server listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	workers.Go(func() error {
		<-ctx.Done()
		log.Println("Starting graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error during graceful shutdown: %v", err)
			if errors.Is(err, context.DeadlineExceeded) {
				log.Println("Shutdown timeout exceeded, forcing close...")
				_ = httpServer.Close()
			}
		}
		notifier.Wait()
		return nil
	})

	return workers.Wait()
}

// startQueue picks the Redis stream queue when Redis is configured, otherwise the
// in-memory queue, and starts the mail workers on it.
func startQueue(ctx context.Context, g *errgroup.Group, cfg *config.Config, emailSvc *services.EmailService) (services.TaskQueue, func(), error) {
	if cfg.Redis.Addr == "" {
		log.Println("[QUEUE] Redis not configured, using in-memory notification queue")
		mq := queue.NewMemoryQueue(cfg.Queue.MemoryDepth, cfg.Queue.MaxRetries, cfg.Queue.RetryDelay)
		g.Go(func() error {
			return mq.Run(ctx, cfg.Queue.Workers, emailSvc.Deliver)
		})
		return mq, func() {}, nil
	}

	rq, err := queue.NewRedisTaskQueue(queue.RedisQueueConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		Stream:     cfg.Queue.Stream,
		Group:      cfg.Queue.Group,
		MaxRetries: cfg.Queue.MaxRetries,
		RetryDelay: cfg.Queue.RetryDelay,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize queue: %w", err)
	}
	if cfg.Queue.RunWorkers {
		log.Printf("[QUEUE] Starting %d mail workers on stream %s", cfg.Queue.Workers, cfg.Queue.Stream)
		rq.Start(ctx, cfg.Queue.Workers, emailSvc.Deliver)
	}
	closeFn := func() {
		rq.Wait()
		if err := rq.Close(); err != nil {
			log.Printf("[QUEUE] Error closing queue: %v", err)
		}
	}
	return rq, closeFn, nil
}

// validateConfig validates critical configuration values
func validateConfig(cfg *config.Config) error {
	if cfg.Auth.SecretKey == "" || cfg.Auth.SecretKey == "your-secret-key-change-in-production" {
		return fmt.Errorf("SECRET_KEY must be set and changed from default value")
	}
	if len(cfg.Auth.SecretKey) < 32 {
		return fmt.Errorf("SECRET_KEY must be at least 32 characters for security")
	}
	if _, err := util.ParseProxyList(cfg.Contact.TrustedProxies); err != nil {
		return fmt.Errorf("CONTACT_TRUSTED_PROXIES: %w", err)
	}
	return nil
}
