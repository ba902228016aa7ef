package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/oyvindhs/oppgjor-backend/internal/config"
	"github.com/oyvindhs/oppgjor-backend/internal/domain"
	"github.com/oyvindhs/oppgjor-backend/internal/gateway"
	"github.com/oyvindhs/oppgjor-backend/internal/handler"
	"github.com/oyvindhs/oppgjor-backend/internal/middleware"
	"github.com/oyvindhs/oppgjor-backend/internal/repository/postgres"
	"github.com/oyvindhs/oppgjor-backend/internal/service"
	"github.com/oyvindhs/oppgjor-backend/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Initialize zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Connect to database
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	// Verify database connection
	if err := pool.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Connected to database")

	// Initialize repositories
	settlementRepo := postgres.NewSettlementRepository(pool)
	debtRepo := postgres.NewDebtRepository(pool)
	invoiceRepo := postgres.NewInvoiceRepository(pool)
	regionalRepo := postgres.NewRegionalConfigRepository(pool)
	webhookRepo := postgres.NewWebhookEventRepository(pool)

	// Initialize payment rails
	httpClient := &http.Client{Timeout: 30 * time.Second}
	cardClient := gateway.NewCardClient(cfg.Card.BaseURL, cfg.Card.SecretKey, httpClient)
	walletTokens := gateway.NewTokenSource(cfg.Wallet.TokenURL, cfg.Wallet.ClientID, cfg.Wallet.ClientSecret, httpClient)
	walletClient := gateway.NewWalletClient(cfg.Wallet.BaseURL, cfg.Wallet.MerchantSerial, cfg.Wallet.SubscriptionKey, walletTokens, httpClient)
	gateways := map[domain.PaymentMethod]gateway.Gateway{
		domain.MethodCard:   cardClient,
		domain.MethodWallet: walletClient,
	}

	// Initialize services
	regionalService := service.NewRegionalService(regionalRepo)
	feeService := service.NewFeeService(regionalService)
	escrowService := service.NewEscrowService(settlementRepo, debtRepo, feeService, gateways)
	invoiceService := service.NewInvoiceService(invoiceRepo, feeService)
	reconciler := service.NewWebhookReconciler(webhookRepo, settlementRepo, escrowService, gateways)

	// Initialize WebSocket hub and wire it into the services
	hub := websocket.NewHub()
	escrowService.SetEventPublisher(hub)
	invoiceService.SetEventPublisher(hub)

	// Initialize handlers
	settlementHandler := handler.NewSettlementHandler(escrowService, feeService)
	pricingHandler := handler.NewPricingHandler(feeService)
	invoiceHandler := handler.NewInvoiceHandler(invoiceService)
	webhookHandler := handler.NewWebhookHandler(reconciler)
	wsHandler := handler.NewWebSocketHandler(hub, cfg.CORSOrigins)

	// Webhook ingress rate limiter
	webhookLimiter := middleware.NewRateLimiter()
	defer webhookLimiter.Stop()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Request ID middleware
	e.Use(echomiddleware.RequestID())

	// CORS middleware
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Security headers middleware (helmet-like)
	e.Use(echomiddleware.SecureWithConfig(echomiddleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	// Request logging middleware with zerolog
	e.Use(zerologMiddleware())

	// Recovery middleware
	e.Use(echomiddleware.Recover())

	// Register API routes
	handler.RegisterRoutes(e, webhookLimiter, settlementHandler, pricingHandler, invoiceHandler, webhookHandler, wsHandler)

	// Start background workers
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	expiryWorker := service.NewExpiryWorker(escrowService, settlementRepo, log.Logger, time.Hour)
	expiryWorker.Start(workerCtx)

	// Reprocess callbacks left over from a previous run
	go reconciler.ProcessPending(workerCtx, 100)

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorkers()
	expiryWorker.Stop()
	hub.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// zerologMiddleware returns a middleware that logs requests using zerolog
func zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			log.Info().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Msg("request")

			return nil
		}
	}
}
