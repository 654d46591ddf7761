package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/openbid/auction-engine/internal/config"
	"github.com/openbid/auction-engine/internal/database"
	"github.com/openbid/auction-engine/internal/engine"
	"github.com/openbid/auction-engine/internal/handler"
	"github.com/openbid/auction-engine/internal/queue"
	"github.com/openbid/auction-engine/internal/realtime"
	"github.com/openbid/auction-engine/internal/repository"
	"github.com/openbid/auction-engine/internal/router"
	"github.com/openbid/auction-engine/internal/service"
	"github.com/openbid/auction-engine/internal/utils"
)

func main() {
	// .env is a local-dev convenience; in deployment the variables come
	// from the environment and the file is absent.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		utils.Fatal("database connection failed", map[string]any{"error": err.Error()})
	}
	defer db.Close()

	if err := database.Migrate(cfg.MigrationsURL, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName); err != nil {
		utils.Fatal("migrations failed", map[string]any{"error": err.Error()})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis is optional: without it events stay process-local and the
	// bid rate limit fails open.
	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	hub := realtime.NewHub()
	bridge := realtime.NewBridge(hub, rdb)
	go bridge.Run(ctx)

	auctions := repository.NewAuctionRepo(db)
	bids := repository.NewBidRepo(db)
	products := repository.NewProductRepo(db)
	users := repository.NewUserRepo(db)

	dispatcher := service.NewAMQPDispatcher(cfg.RabbitURL)
	eng := engine.New(auctions, bids, products, dispatcher, bridge)

	sched := engine.NewScheduler(eng, cfg.SchedulerTick, cfg.ReminderTick, cfg.ReminderWindow)
	go sched.Run(ctx)

	// In-process consumer drains the notification queue into a log file.
	// A real deployment would run this as its own binary next to a mail
	// or push sender.
	go queue.StartNotificationConsumer(cfg.RabbitURL)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())

	router.RegisterRoutes(e, router.Handlers{
		Auth:     handler.NewAuthHandler(users, cfg.JWTSecret, cfg.AccessTTLMin, cfg.BcryptCost),
		Auctions: handler.NewAuctionHandler(eng, auctions, bids),
		Bids:     handler.NewBidHandler(eng),
		Live:     handler.NewLiveHandler(hub, auctions),
	}, cfg.JWTSecret, config.LoadRateLimitConfig(), rdb)

	addr := ":" + cfg.Port
	utils.Info("server starting", map[string]any{"addr": addr, "env": cfg.Env})

	go func() {
		<-ctx.Done()
		utils.Info("shutting down", nil)
		_ = e.Shutdown(context.Background())
	}()

	if err := e.Start(addr); err != nil {
		utils.Info("server stopped", map[string]any{"reason": err.Error()})
	}
}
