package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	httpadp "mortgagemarket/internal/adapter/http"
	"mortgagemarket/internal/adapter/middleware"
	"mortgagemarket/internal/adapter/repository/gormstore"
	"mortgagemarket/internal/adapter/transport/loopback"
	"mortgagemarket/internal/config"
	"mortgagemarket/internal/dispatch"
	"mortgagemarket/internal/infrastructure/cache"
	"mortgagemarket/internal/infrastructure/db"
	"mortgagemarket/internal/node"
	"mortgagemarket/internal/protocol"
	"mortgagemarket/internal/usecase/agreement"
	"mortgagemarket/internal/usecase/lifecycle"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	baseLog := logger.WithField("node", cfg.NodeAddress)

	gdb, err := db.OpenGorm(cfg.DBDriver, cfg.DSN())
	if err != nil {
		baseLog.WithError(err).Fatal("open database")
	}
	if err := gormstore.Migrate(gdb); err != nil {
		baseLog.WithError(err).Fatal("migrate")
	}

	store := gormstore.New(gdb)
	uow := gormstore.NewUoW(gdb)

	network := loopback.NewNetwork()
	endpoint := network.Endpoint(cfg.NodeAddress)

	directory := protocol.NewDirectory()
	queue := protocol.NewQueue()
	agreements := agreement.New(cfg.NodeAddress, store, directory, endpoint, cfg.SignTimeout(), baseLog.WithField("component", "agreement"))
	dispatcher := dispatch.New(cfg.NodeAddress, uow, store, directory, queue, agreements, baseLog.WithField("component", "dispatch"))
	engine := lifecycle.NewEngine(uow, store, queue, baseLog.WithField("component", "lifecycle"))

	n := node.New(cfg.NodeAddress, engine, dispatcher, queue, directory, endpoint, baseLog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		if err := n.Run(ctx); err != nil && err != context.Canceled {
			baseLog.WithError(err).Error("node loop stopped")
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Validator = httpadp.NewValidator()
	e.Use(echomw.Logger(), echomw.Recover())

	if cfg.RedisAddr != "" {
		rdb, err := cache.OpenRedis(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPingTimeout())
		if err != nil {
			baseLog.WithError(err).Fatal("open redis")
		}
		e.Use(middleware.Idempotency(rdb, cfg.IdempTTL(), baseLog.WithField("component", "idempotency")))
	}

	httpadp.NewHandler(n).Register(e)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		agreements.Close()
		_ = e.Shutdown(shutdownCtx)
	}()

	addr := ":" + cfg.AppPort
	baseLog.WithField("addr", addr).Info("listening")
	if err := e.Start(addr); err != nil {
		baseLog.WithError(err).Info("server stopped")
	}
}
