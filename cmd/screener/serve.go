package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alfredoptarigan/applicant-screener/internal/handlers"
	"alfredoptarigan/applicant-screener/internal/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ops API and the cycle scheduler",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApplication(ctx, cfg, log)
		if err != nil {
			log.Error("initializing application", zap.Error(err))
			return err
		}
		defer a.Close()

		var scheduler services.Scheduler
		if cfg.Scheduler.Enabled {
			scheduler = services.NewScheduler(a.coordinator, cfg.Scheduler.Schedule, 0, log)
			if err := scheduler.Start(context.WithoutCancel(ctx)); err != nil {
				return err
			}
		}

		server := fiber.New(fiber.Config{
			AppName:      "Applicant Screener API",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 10 * time.Minute,
			ErrorHandler: customErrorHandler,
		})
		server.Use(recover.New())
		server.Use(requestLogger(log))
		server.Use(cors.New(cors.Config{
			AllowOrigins: "*",
			AllowMethods: "GET,POST,PATCH,OPTIONS",
			AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		}))

		handlers.Register(server, handlers.Handlers{
			Health:   handlers.NewHealthHandler(a.db),
			Cycles:   handlers.NewCycleHandler(a.coordinator, a.locker, cfg.Lock.StaleAfter),
			Requests: handlers.NewRequestHandler(a.requests, a.matches),
			Settings: handlers.NewSettingsHandler(a.settings),
		})

		go func() {
			<-ctx.Done()
			log.Info("shutting down")
			if scheduler != nil {
				scheduler.Stop()
			}
			if err := server.Shutdown(); err != nil {
				log.Error("server forced to shutdown", zap.Error(err))
			}
		}()

		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		log.Info("server starting", zap.String("addr", addr), zap.String("version", version))
		if err := server.Listen(addr); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func requestLogger(log *zap.Logger) fiber.Handler {
	log = log.With(zap.String("component", "http"))
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Debug("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)))
		return err
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
