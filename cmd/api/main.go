package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-customs-ledger/internal/handler"
	"go-customs-ledger/internal/model"
	"go-customs-ledger/internal/repository"
	"go-customs-ledger/internal/service"
	"go-customs-ledger/internal/ws"
	"go-customs-ledger/pkg/config"
	"go-customs-ledger/pkg/database"
	"go-customs-ledger/pkg/jwt"
	"go-customs-ledger/pkg/logger"
	"go-customs-ledger/pkg/metrics"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	// 1. Load Env
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if !cfg.EnvFileLoaded {
		log.Warn(".env file not found, using process environment")
	}

	// 2. Setup Database
	db, err := database.Connect(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	if err := model.Migrate(db); err != nil {
		log.WithError(err).Fatal("migration failed")
	}

	// 3. Setup WebSocket Hub
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wsHub := ws.NewHub(log)
	go wsHub.Run(ctx)

	m := metrics.New("customs")
	secret := jwt.SecretKey(cfg.JWTSecret)
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET not set, using development secret")
	}

	// 4. Dependency Injection (Wiring Layers)
	productRepo := repository.NewProductRepo(db)
	documentRepo := repository.NewDocumentRepo(db)
	allocationRepo := repository.NewAllocationRepo(db)

	ledgerService := service.NewLedgerService(db, productRepo, documentRepo, allocationRepo, wsHub, m, log, service.LedgerOptions{
		StrictInDelete: cfg.StrictInDelete,
		Location:       cfg.Location,
	})
	balanceService := service.NewBalanceService(db, productRepo, documentRepo, allocationRepo, m)
	exportService := service.NewExportService(documentRepo)
	authService, err := service.NewAuthService(service.AuthOptions{
		Username:     cfg.AdminUsername,
		Password:     cfg.AdminPassword,
		PasswordHash: cfg.AdminPasswordHash,
		Secret:       secret,
		TTL:          time.Duration(cfg.JWTTTLHours) * time.Hour,
	})
	if err != nil {
		log.WithError(err).Fatal("auth setup failed")
	}
	if cfg.AdminPassword == "" && cfg.AdminPasswordHash == "" {
		log.Warn("ADMIN_PASSWORD not set, login is disabled")
	}

	authHandler := handler.NewAuthHandler(authService)
	docHandler := handler.NewDocumentHandler(ledgerService, exportService, cfg.Location)
	productHandler := handler.NewProductHandler(balanceService)

	// 5. Setup Fiber
	app := fiber.New(fiber.Config{
		AppName: "Customs Ledger v1.0",
	})

	app.Use(fiberlogger.New())
	app.Use(recover.New())
	app.Use(cors.New())

	// 6. Routes
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	handler.RegisterRoutes(app.Group("/api/v1"), secret, authHandler, docHandler, productHandler)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws", websocket.New(wsHub.Serve))

	// 7. Graceful Shutdown
	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.WithError(err).Panic("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	log.Info("server exited")
}
