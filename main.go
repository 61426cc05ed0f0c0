package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/streadway/amqp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"duka/internal/config"
	"duka/internal/handlers"
	"duka/internal/middleware"
	"duka/internal/models"
	"duka/internal/repositories"
	"duka/internal/services"
	"duka/pkg/mpesa"
	"duka/pkg/rabbitmq"
)

func main() {
	// --- Configuration ---
	cfg := config.Load()

	// --- Database ---
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.Payment{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// --- RabbitMQ ---
	mqClient, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL})
	if err != nil {
		log.Fatalf("Failed to initialize RabbitMQ client: %v", err)
	}
	defer mqClient.Close()

	// --- Payment Gateway ---
	mpesaClient := mpesa.NewClient(cfg.Mpesa)

	// --- Repositories ---
	userRepo := repositories.NewGORMUserRepository(db)
	productRepo := repositories.NewGORMProductRepository(db)
	categoryRepo := repositories.NewGORMCategoryRepository(db)
	orderRepo := repositories.NewGORMOrderRepository(db, repositories.NewGORMInventoryLedger())
	paymentRepo := repositories.NewGORMPaymentRepository(db)

	// --- Services ---
	authService := services.NewAuthService(userRepo, mqClient, cfg.JWTSecret)
	productService := services.NewProductService(productRepo)
	categoryService := services.NewCategoryService(categoryRepo)
	orderService := services.NewOrderService(orderRepo, mqClient)
	paymentService := services.NewPaymentService(paymentRepo, orderRepo, mpesaClient, mqClient)

	// --- Handlers ---
	authHandler := handlers.NewAuthHandler(authService)
	productHandler := handlers.NewProductHandler(productService, categoryService)
	orderHandler := handlers.NewOrderHandler(orderService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)

	// --- Fiber App ---
	app := fiber.New()
	app.Use(logger.New())

	// --- API Routes ---
	apiV1 := app.Group("/api/v1")

	// Public routes: registration/login and the provider webhook. The provider
	// cannot authenticate, so the callback stays outside the JWT guard.
	authHandler.RegisterRoutes(apiV1)
	paymentHandler.RegisterCallbackRoute(apiV1)

	// Authenticated routes, with a nested admin-only group.
	protected := apiV1.Group("", middleware.AuthRequired(authService))
	admin := protected.Group("/admin", middleware.AdminRequired())

	productHandler.RegisterRoutes(protected, admin)
	orderHandler.RegisterRoutes(protected, admin)
	paymentHandler.RegisterRoutes(protected, admin)

	// --- Health Check Endpoint ---
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// --- Notification Consumer ---
	// Verification emails are dispatched out of band; this consumer drains the
	// notification queue. Delivery itself (SMTP etc.) is left to the handler.
	if err := mqClient.Consume(rabbitmq.NotificationEventsQueue, func(msg amqp.Delivery) error {
		log.Printf("Notification event (tag %d): %s", msg.DeliveryTag, string(msg.Body))
		return nil
	}); err != nil {
		log.Printf("Failed to start notification consumer: %v", err)
	}

	// --- Start HTTP Server ---
	log.Printf("Starting server on port %s", cfg.AppPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(cfg.AppPort); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Printf("Error during Fiber shutdown: %v", err)
	}

	log.Println("Server gracefully stopped")
}
