package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/cobra"

	"DealRoom/internal/config"
	"DealRoom/internal/database"
	"DealRoom/internal/routes"
)

var Version = "1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "dealroom",
		Short:   "DealRoom private-deal marketplace API",
		Version: Version,
		RunE:    runServe,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(workerCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (and the outbox worker unless OUTBOX_INLINE_WORKER=false)",
		RunE:  runServe,
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := database.Connect(cfg.DatabaseURL, !cfg.IsProduction())
			if err != nil {
				return err
			}
			defer database.Close(db)
			if err := database.Migrate(db); err != nil {
				return err
			}
			log.Println("✅ Database migrated successfully")
			return nil
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the email outbox worker and the review expiry sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApplication()
			if err != nil {
				return err
			}
			defer a.Close()

			a.runBackground(ctx)
			<-ctx.Done()
			a.wait()
			return nil
		},
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApplication()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.OutboxInlineWorker {
		a.runBackground(ctx)
	} else {
		log.Println("ℹ️  Inline outbox worker disabled, run `dealroom worker` separately")
	}

	app := fiber.New(fiber.Config{
		AppName:   a.cfg.AppName + " API v" + Version,
		BodyLimit: 10 * 1024 * 1024,
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.AppURL,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Stripe-Signature",
		AllowMethods:     "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to " + a.cfg.AppName + " API",
			"status":  "running",
			"version": Version,
		})
	})

	routes.Setup(app, a.routeDeps())

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 %s server starting on http://localhost:%s", a.cfg.AppName, a.cfg.Port)
		errCh <- app.Listen(":" + a.cfg.Port)
	}()

	select {
	case err := <-errCh:
		stop()
		a.wait()
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("❌ Server shutdown failed: %v", err)
	}
	a.wait()
	log.Println("✅ Server stopped")
	return nil
}
