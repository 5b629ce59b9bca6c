// carebot-hub relays frames between carebot agents and operator
// frontends: command frames go to the addressed robot, robot events fan
// out to every connected frontend.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/carebotlabs/go-carebot/internal/log"
	"github.com/carebotlabs/go-carebot/pkg/hub"
)

var (
	addr  = flag.String("addr", ":8765", "listen address")
	debug = flag.Bool("debug", false, "enable debug logging")
)

func main() {
	flag.Parse()

	level := ""
	if *debug {
		level = "debug"
	}
	log.Init(level)

	app := fiber.New(fiber.Config{
		AppName:               "carebot-hub",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	if *debug {
		app.Use(logger.New())
	}

	h := hub.New()
	h.RegisterRoutes(app)
	h.RegisterAPIRoutes(app.Group("/api"))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "robots": h.RobotCount()})
	})

	go func() {
		log.Info("hub listening", "addr", *addr)
		if err := app.Listen(*addr); err != nil {
			log.Error("server stopped", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Warn("shutdown incomplete", "err", err)
	}
}
