package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"catalog/internal/config"
	"catalog/internal/database"
	"catalog/internal/handlers"
	"catalog/internal/middleware"
	"catalog/internal/models"
	"catalog/internal/repositories"
	"catalog/internal/services"
	"catalog/internal/telemetry"
	"catalog/pkg/rabbitmq"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/streadway/amqp"
	"gorm.io/gorm"
)

const accessLogFormat = `{"time":"${time}","request_id":"${locals:requestid}","status":${status},"latency":"${latency}","method":"${method}","path":"${path}"}` + "\n"

// App is the wired catalog service together with the resources it owns.
type App struct {
	Fiber  *fiber.App
	db     *gorm.DB
	mq     *rabbitmq.Client
	logger *slog.Logger
}

// NewApp wires repositories, services and handlers according to cfg.
func NewApp(cfg *config.Config, telem *telemetry.Telemetry) (*App, error) {
	a := &App{logger: telem.Logger}

	// The in-memory driver keeps products out of SQL entirely; users still
	// need a database when the JWT guard is on.
	if cfg.Database.Driver != "memory" || cfg.Auth.Enabled {
		db, err := database.Open(cfg.Database)
		if err != nil {
			return nil, err
		}
		a.db = db
	}

	var productRepo repositories.ProductRepository
	if cfg.Database.Driver == "memory" {
		productRepo = repositories.NewMemoryProductRepository()
	} else {
		productRepo = repositories.NewGORMProductRepository(a.db)
	}

	var publisher services.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		mqClient, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQ.URL}, a.logger)
		if err != nil {
			a.closeResources()
			return nil, err
		}
		a.mq = mqClient
		publisher = mqClient
	} else {
		a.logger.Info("RABBITMQ_URL is empty, product events are disabled")
	}

	productService := services.NewProductService(productRepo, publisher, telem.Tracer(), telem.Meter(), a.logger)
	productHandler := handlers.NewProductHandler(productService, a.logger)

	app := fiber.New(fiber.Config{
		AppName:      "catalog",
		ErrorHandler: jsonErrorHandler,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     accessLogFormat,
		TimeFormat: time.RFC3339,
	}))
	app.Use(middleware.Tracing(telem.Tracer()))

	app.Get("/health", a.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(telem.MetricsHandler()))

	apiV1 := app.Group("/api/v1")

	var guards []fiber.Handler
	if cfg.Auth.Enabled {
		authService := services.NewAuthService(repositories.NewGORMUserRepository(a.db), cfg.Auth.JWTSecret, a.logger)
		handlers.NewAuthHandler(authService, a.logger).RegisterRoutes(apiV1)
		guards = append(guards, middleware.AuthRequired(authService))
	}
	productHandler.RegisterRoutes(apiV1, guards...)

	a.Fiber = app
	return a, nil
}

// StartConsumer logs every product event found on the events queue. It is a
// no-op when RabbitMQ is disabled.
func (a *App) StartConsumer() error {
	if a.mq == nil {
		return nil
	}
	return a.mq.ConsumeProductEvents(logProductEvent(a.logger))
}

// Shutdown stops the HTTP server and releases the database and broker connections.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Fiber.ShutdownWithContext(ctx)
	return errors.Join(err, a.closeResources())
}

func (a *App) closeResources() error {
	var errs []error
	if a.mq != nil {
		errs = append(errs, a.mq.Close())
	}
	if a.db != nil {
		errs = append(errs, database.Close(a.db))
	}
	return errors.Join(errs...)
}

func (a *App) handleHealth(c *fiber.Ctx) error {
	dbStatus := "disabled"
	if a.db != nil {
		dbStatus = "up"
		if sqlDB, err := a.db.DB(); err != nil || sqlDB.PingContext(c.UserContext()) != nil {
			dbStatus = "down"
		}
	}

	mqStatus := "disabled"
	if a.mq != nil {
		mqStatus = "connected"
		if !a.mq.Connected() {
			mqStatus = "disconnected"
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":   "healthy",
		"time":     time.Now().Format(time.RFC3339),
		"database": dbStatus,
		"rabbitmq": mqStatus,
	})
}

func jsonErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"message": err.Error(),
	})
}

func logProductEvent(logger *slog.Logger) func(amqp.Delivery) error {
	return func(msg amqp.Delivery) error {
		var event models.ProductEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			// Requeueing an undecodable message would loop forever.
			logger.Error("Dropping malformed product event",
				slog.Uint64("delivery_tag", msg.DeliveryTag),
				slog.String("error", err.Error()),
			)
			return nil
		}
		if event.Type == "" {
			return fmt.Errorf("product event %s has no type", event.EventID)
		}

		logger.Info("Received product event",
			slog.String("event_id", event.EventID),
			slog.String("type", event.Type),
			slog.Uint64("product_id", uint64(event.ProductID)),
		)
		return nil
	}
}
