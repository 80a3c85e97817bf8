package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pulse-chat/pulse-server/internal/api"
	"github.com/pulse-chat/pulse-server/internal/apierr"
	"github.com/pulse-chat/pulse-server/internal/auth"
	"github.com/pulse-chat/pulse-server/internal/config"
	"github.com/pulse-chat/pulse-server/internal/conversation"
	"github.com/pulse-chat/pulse-server/internal/gateway"
	"github.com/pulse-chat/pulse-server/internal/httputil"
	"github.com/pulse-chat/pulse-server/internal/media"
	"github.com/pulse-chat/pulse-server/internal/message"
	"github.com/pulse-chat/pulse-server/internal/postgres"
	"github.com/pulse-chat/pulse-server/internal/presence"
	"github.com/pulse-chat/pulse-server/internal/user"
	"github.com/pulse-chat/pulse-server/internal/valkey"
)

// Build metadata injected via ldflags at compile time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// server holds the shared dependencies used by route handlers and middleware.
type server struct {
	cfg              *config.Config
	db               *pgxpool.Pool
	rdb              *redis.Client
	userRepo         user.Repository
	conversations    *conversation.Service
	messages         *message.Service
	mediaSvc         *media.Service
	gatewayPublisher *gateway.Publisher
	gatewayHub       *gateway.Hub
}

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.IsDevelopment() {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	}

	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", date).
		Str("env", cfg.ServerEnv).
		Msg("Starting Pulse Server")

	if cfg.CORSAllowOrigins == "*" {
		log.Warn().Msg("CORS_ALLOW_ORIGINS is set to a wildcard. Set an explicit origin when in production.")
	}

	ctx := context.Background()

	// Connect PostgreSQL
	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn, cfg.DatabaseMinConn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	log.Info().Msg("PostgreSQL connected")

	// Run migrations
	if err := postgres.Migrate(cfg.DatabaseURL, log.Logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Msg("Database migrations complete")

	// Connect Valkey
	rdb, err := valkey.Connect(ctx, cfg.ValkeyURL, 5*time.Second)
	if err != nil {
		return fmt.Errorf("connect valkey: %w", err)
	}
	defer func() { _ = rdb.Close() }()
	log.Info().Msg("Valkey connected")

	// Initialise repositories and services
	userRepo := user.NewPGRepository(db, log.Logger)
	conversationRepo := conversation.NewPGRepository(db, log.Logger)
	conversationSvc := conversation.NewService(conversationRepo)
	messageRepo := message.NewPGRepository(db, log.Logger)
	messageSvc := message.NewService(messageRepo, conversationSvc, cfg.MessageMaxLength)
	presenceStore := presence.NewStore(rdb, cfg.PresenceTTL)

	blobStore := media.NewLocalBlobStore(cfg.BlobStoreBucket, cfg.BlobStoreURL, cfg.BlobStoreServiceKey)
	mediaSvc := media.NewService(blobStore, conversationSvc)

	// Start background services with a shared cancellable context.
	subCtx, subCancel := context.WithCancel(ctx)
	defer subCancel()

	sessionStore := gateway.NewSessionStore(rdb, cfg.GatewaySessionTTL, cfg.GatewayReplayBufferSize)
	gatewayPub := gateway.NewPublisher(rdb, log.Logger)
	gatewayHub := gateway.NewHub(rdb, cfg, sessionStore, userRepo, conversationSvc, messageSvc, presenceStore, gatewayPub, log.Logger)
	go runWithBackoff(subCtx, "gateway-hub", gatewayHub.Run)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName: "Pulse",
		// ErrorHandler catches errors returned by handlers that are not already mapped to structured API responses
		// (e.g. Fiber's built-in 404/405).
		ErrorHandler: func(c fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			message := "An internal error occurred"
			apiCode := apierr.CodeDependencyFailure
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				status = fiberErr.Code
				message = fiberErr.Message
				apiCode = fiberStatusToAPICode(fiberErr.Code)
			} else {
				log.Error().Err(err).
					Str("method", c.Method()).
					Str("path", c.Path()).
					Msg("Unhandled error")
			}
			return c.Status(status).JSON(httputil.ErrorResponse{
				Error: httputil.ErrorBody{
					Code:    apiCode,
					Message: message,
				},
			})
		},
	})

	// Global middleware
	app.Use(requestid.New())
	app.Use(httputil.RequestLogger(log.Logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Split(cfg.CORSAllowOrigins, ","),
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"X-Request-ID"},
	}))

	// Global API rate limiter
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.RateLimitWSCount,
		Expiration: time.Duration(cfg.RateLimitWSWindowSecond) * time.Second,
	}))

	srv := &server{
		cfg:              cfg,
		db:               db,
		rdb:              rdb,
		userRepo:         userRepo,
		conversations:    conversationSvc,
		messages:         messageSvc,
		mediaSvc:         mediaSvc,
		gatewayPublisher: gatewayPub,
		gatewayHub:       gatewayHub,
	}
	srv.registerRoutes(app)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		gatewayHub.Shutdown(shutdownCtx)
		subCancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	// Listen
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	log.Info().Str("addr", addr).Msg("Server listening")

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	log.Debug().
		Uint64("alloc_mb", mem.Alloc/1024/1024).
		Uint64("sys_mb", mem.Sys/1024/1024).
		Uint64("heap_inuse_mb", mem.HeapInuse/1024/1024).
		Msg("Runtime memory stats")

	if err := app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func (s *server) registerRoutes(app *fiber.App) {
	// userExists backs the Auth Verifier's persisted-user check (spec.md §4.1): a token's signature and expiry alone
	// are not enough, its subject must also resolve to a row already synced.
	userExists := func(ctx context.Context, id uuid.UUID) (bool, error) {
		_, err := s.userRepo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}
	requireAuth := auth.RequireAuth(s.cfg.JWTSecret, s.cfg.JWTIssuer, userExists)
	requireValidToken := auth.RequireValidToken(s.cfg.JWTSecret, s.cfg.JWTIssuer)

	health := &api.HealthHandler{DB: s.db, Redis: s.rdb}
	app.Get("/api/v1/health", health.Health)

	authHandler := api.NewAuthHandler(s.userRepo, log.Logger)
	// Sync is what creates the persisted mapping a token's subject resolves to, so it runs behind the lighter
	// signature-only check rather than requireAuth.
	app.Post("/api/v1/auth/sync", requireValidToken, authHandler.Sync)
	authGroup := app.Group("/api/v1/auth", requireAuth)
	authGroup.Get("/me", authHandler.Me)

	conversationHandler := api.NewConversationHandler(s.conversations, log.Logger)
	conversationGroup := app.Group("/api/v1/conversations", requireAuth)
	conversationGroup.Post("/", conversationHandler.Create)
	conversationGroup.Get("/", conversationHandler.List)
	conversationGroup.Get("/:id", conversationHandler.Get)

	messageHandler := api.NewMessageHandler(s.messages, s.gatewayPublisher, log.Logger)
	messageGroup := app.Group("/api/v1/messages", requireAuth)
	messageGroup.Post("/", messageHandler.SendMessage)
	messageGroup.Get("/single/:messageId", messageHandler.GetMessage)
	messageGroup.Get("/:conversationId", messageHandler.ListMessages)

	mediaHandler := api.NewMediaHandler(s.mediaSvc, log.Logger)
	app.Post("/api/v1/media/upload-url", requireAuth, limiter.New(limiter.Config{
		Max:        s.cfg.RateLimitWSCount,
		Expiration: time.Duration(s.cfg.RateLimitWSWindowSecond) * time.Second,
	}), mediaHandler.RequestUploadURL)

	// Gateway WebSocket endpoint (unauthenticated at the HTTP layer; authentication happens inside the socket via
	// the Identify message, per spec.md's handshake contract).
	gatewayHandler := api.NewGatewayHandler(s.gatewayHub)
	app.Get("/api/v1/gateway", gatewayHandler.Upgrade)

	// Catch-all handler returns 404 for any request that does not match a defined route. Fiber v3 treats app.Use()
	// middleware as route matches, so without this terminal handler the router considers unmatched requests "handled"
	// and returns the default 200 status with an empty body.
	app.Use(func(_ fiber.Ctx) error {
		return fiber.ErrNotFound
	})
}

// runWithBackoff runs fn in a loop, restarting with exponential backoff when it returns a non-nil, non-cancelled
// error. If fn returns nil or context.Canceled the goroutine exits. The delay starts at 1 second and doubles on each
// consecutive failure up to a 2-minute cap.
func runWithBackoff(ctx context.Context, name string, fn func(context.Context) error) {
	const (
		initialDelay = time.Second
		maxDelay     = 2 * time.Minute
	)
	delay := initialDelay
	for {
		if err := fn(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error().Err(err).Str("service", name).Dur("retry_in", delay).
				Msg("Background service stopped, restarting after delay")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, maxDelay)
			continue
		}
		return
	}
}

// fiberStatusToAPICode maps an HTTP status code from Fiber's built-in errors (404, 405, etc.) to the closest apierr
// code.
func fiberStatusToAPICode(status int) apierr.Code {
	switch status {
	case fiber.StatusNotFound:
		return apierr.CodeNotFound
	case fiber.StatusTooManyRequests:
		return apierr.CodeDependencyFailure
	case fiber.StatusUnauthorized:
		return apierr.CodeUnauthenticated
	case fiber.StatusForbidden:
		return apierr.CodeForbidden
	default:
		if status >= 400 && status < 500 {
			return apierr.CodeBadRequest
		}
		return apierr.CodeDependencyFailure
	}
}
