package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/MeliDesk/app/controllers"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/bootstrap"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/cache"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/database"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/env"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/router"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/webhooks"
)

func main() {
	services := bootstrap.Setup()
	batch := services.NewBatchProcessor()
	app := NewApplication(services, batch)

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatalf("[Server] Listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[Server] Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Errorf("[Server] Shutdown failed: %v", err)
	}
	// pending webhooks are lost on shutdown, replay recovers single questions
	batch.Close()
}

func NewApplication(services *bootstrap.Services, batch *webhooks.BatchProcessor) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "MeliDesk",
		BodyLimit: 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	webhookController := controllers.NewWebhookController(
		batch,
		services.Repositories.Account,
		env.GetEnv("ML_APPLICATION_ID", ""),
		services.Metrics,
	)
	adminController := controllers.NewAdminController(batch, services.Repositories.Question)
	adminUsers := map[string]string{
		env.GetEnv("ADMIN_USER", "admin"): env.GetEnv("ADMIN_PASSWORD", ""),
	}

	// ROUTER
	router.InstallRouter(app,
		router.NewHealthRouter(map[string]controllers.Pinger{
			"database": pingDatabase,
			"cache":    cache.Ping,
		}),
		router.NewWebhookRouter(webhookController, env.GetInt("WEBHOOK_RATE_LIMIT", 300), cache.NewFiberStorage(cache.LimiterDatabase)),
		router.NewAdminRouter(adminController, adminUsers, services.Registry),
	)

	return app
}

func pingDatabase(ctx context.Context) error {
	db := database.GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
