package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/artmarket/marketplace-api/internal/config"
	"github.com/artmarket/marketplace-api/internal/email"
	"github.com/artmarket/marketplace-api/internal/handler"
	"github.com/artmarket/marketplace-api/internal/middleware"
	"github.com/artmarket/marketplace-api/internal/model"
	"github.com/artmarket/marketplace-api/internal/payment"
	"github.com/artmarket/marketplace-api/internal/repository"
	"github.com/artmarket/marketplace-api/internal/service"
	"github.com/artmarket/marketplace-api/internal/worker"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		log.Error("parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Error("ping database", "error", err)
		os.Exit(1)
	}
	log.Info("connected to PostgreSQL")

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Redis")

	// RabbitMQ
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		log.Error("connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()

	amqpCh, err := amqpConn.Channel()
	if err != nil {
		log.Error("open RabbitMQ channel", "error", err)
		os.Exit(1)
	}
	defer amqpCh.Close()

	if err := worker.SetupRabbitMQ(amqpCh); err != nil {
		log.Error("setup RabbitMQ", "error", err)
		os.Exit(1)
	}
	log.Info("connected to RabbitMQ")

	// Stripe
	stripeProvider, err := payment.NewStripeProvider(cfg.Stripe.SecretKey)
	if err != nil {
		log.Error("init stripe provider", "error", err)
		os.Exit(1)
	}

	// Repositories
	userRepo := repository.NewUserRepository(dbPool)
	listingRepo := repository.NewListingRepository(dbPool)
	cartRepo := repository.NewCartRepository(dbPool)
	wishlistRepo := repository.NewWishlistRepository(dbPool)
	orderRepo := repository.NewOrderRepository(dbPool)
	paymentRepo := repository.NewPaymentRepository(dbPool)
	deliveryRepo := repository.NewDeliveryRepository(dbPool)
	notificationRepo := repository.NewNotificationRepository(dbPool)

	// Services
	publisher := service.NewEmailPublisher(amqpCh)
	authSvc := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
	listingSvc := service.NewListingService(listingRepo, redisClient)
	cartSvc := service.NewCartService(cartRepo, listingRepo)
	wishlistSvc := service.NewWishlistService(wishlistRepo, listingRepo)
	orderSvc := service.NewOrderService(orderRepo, listingRepo, cartRepo, deliveryRepo, notificationRepo, publisher, log)
	paymentSvc := service.NewPaymentService(paymentRepo, orderRepo, orderSvc, stripeProvider, redisClient, cfg.Stripe.WebhookSecret, cfg.Stripe.Timeout, log)
	notificationSvc := service.NewNotificationService(notificationRepo)

	// Handlers
	authH := handler.NewAuthHandler(authSvc)
	listingH := handler.NewListingHandler(listingSvc)
	cartH := handler.NewCartHandler(cartSvc)
	wishlistH := handler.NewWishlistHandler(wishlistSvc)
	orderH := handler.NewOrderHandler(orderSvc)
	paymentH := handler.NewPaymentHandler(paymentSvc)
	notificationH := handler.NewNotificationHandler(notificationSvc)
	healthH := handler.NewHealthHandler(dbPool, redisClient, amqpConn)

	// Worker
	sender := email.NewSMTPSender(cfg.SMTP)
	emailWorker := worker.NewEmailWorker(amqpCh, orderRepo, userRepo, deliveryRepo, sender, redisClient, log)

	// Router
	router := gin.Default()
	router.GET("/healthz", healthH.Healthz)
	router.GET("/readyz", healthH.Readyz)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", authH.Register)
		auth.POST("/login", authH.Login)

		listings := v1.Group("/listings")
		listings.GET("", listingH.List)
		listings.GET("/:id", listingH.GetByID)

		sellers := listings.Group("", middleware.AuthMiddleware(cfg.JWT.Secret), middleware.RequireRole(model.RoleSeller))
		sellers.POST("", listingH.Create)
		sellers.PUT("/:id", listingH.Update)
		sellers.DELETE("/:id", listingH.Delete)

		me := v1.Group("/me", middleware.AuthMiddleware(cfg.JWT.Secret))
		me.GET("/listings", middleware.RequireRole(model.RoleSeller), listingH.ListMine)
		me.GET("/notifications", notificationH.List)
		me.PUT("/notifications/:id/read", notificationH.MarkRead)

		cart := v1.Group("/cart", middleware.AuthMiddleware(cfg.JWT.Secret))
		cart.GET("", cartH.Get)
		cart.POST("/items", cartH.AddItem)
		cart.PUT("/items/:listingID", cartH.UpdateItem)
		cart.DELETE("/items/:listingID", cartH.RemoveItem)

		wishlist := v1.Group("/wishlist", middleware.AuthMiddleware(cfg.JWT.Secret))
		wishlist.GET("", wishlistH.Get)
		wishlist.POST("/items", wishlistH.AddItem)
		wishlist.DELETE("/items/:listingID", wishlistH.RemoveItem)

		orders := v1.Group("/orders", middleware.AuthMiddleware(cfg.JWT.Secret))
		orders.POST("", orderH.Create)
		orders.GET("", orderH.List)
		orders.GET("/:id", orderH.GetByID)
		orders.PUT("/:id/status", orderH.UpdateStatus)
		orders.GET("/:id/delivery", orderH.GetDelivery)
		orders.PUT("/:id/delivery", middleware.RequireRole(model.RoleSeller), orderH.UpdateDelivery)
		orders.GET("/:id/payments", paymentH.ListByOrder)

		payments := v1.Group("/payments")
		payments.POST("/intent", middleware.AuthMiddleware(cfg.JWT.Secret), paymentH.CreateIntent)
		// The webhook authenticates via signature, not JWT.
		payments.POST("/webhook", paymentH.Webhook)
	}

	if err := emailWorker.Start(ctx); err != nil {
		log.Error("start email worker", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	emailWorker.Stop()
	time.Sleep(500 * time.Millisecond)
	cancel()
	log.Info("server stopped")
}
