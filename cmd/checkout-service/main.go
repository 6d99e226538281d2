package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cart/cache"
	cartconsumer "github.com/fjod/go_cart/storefront/internal/cart/consumer"
	cartrepo "github.com/fjod/go_cart/storefront/internal/cart/repository"
	cartservice "github.com/fjod/go_cart/storefront/internal/cart/service"
	"github.com/fjod/go_cart/storefront/internal/config"
	checkoutgrpc "github.com/fjod/go_cart/storefront/internal/grpc"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/materializer"
	"github.com/fjod/go_cart/storefront/internal/publisher"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/fjod/go_cart/storefront/pkg/retry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info("checkout-service starting...")

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	// Order store
	repo, err := repository.NewRepository(&cfg.Postgres)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer repo.Close()

	if err := repo.RunMigrations(&cfg.Postgres); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}
	log.Info("database migrations completed")

	// Cart store
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	mongoDB, err := cartrepo.ConnectMongoDB(startupCtx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatal("failed to connect to mongodb", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoDB.Client().Disconnect(ctx)
	}()

	cartRepo := cartrepo.NewMongoRepository(mongoDB)
	if err := cartrepo.EnsureIndexes(startupCtx, cartRepo); err != nil {
		log.Fatal("failed to create cart indexes", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(startupCtx).Err(); err != nil {
		log.Warn("redis unavailable, cart reads will go to the store", zap.Error(err))
	}

	cartService := cartservice.NewCartService(cartRepo, cache.NewRedisCache(redisClient), log)

	// Payment intent issuer
	issuerConn, err := grpc.NewClient(cfg.PaymentIntentAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()))
	if err != nil {
		log.Fatal("failed to connect to payment intent service", zap.Error(err))
	}
	defer issuerConn.Close()
	log.Info("connected to payment intent service", zap.String("addr", cfg.PaymentIntentAddr))

	// Create handler wrappers
	issuerHandler := service.NewIssuerHandler(checkoutgrpc.NewPaymentIntentClient(issuerConn), cfg.RequestTimeout)
	cartHandler := service.NewCartHandler(cartService, cfg.RequestTimeout)

	orderMaterializer := materializer.New(repo, cartService, log,
		materializer.WithTimeout(cfg.RequestTimeout),
		materializer.WithCreateRetry(retry.Policy{
			MaxRetries:      cfg.OrderCreateRetries,
			InitialInterval: cfg.RetryInitialInterval,
		}))

	checkoutService := service.NewCheckoutService(
		repo,
		issuerHandler,
		cartHandler,
		orderMaterializer,
		log,
		service.WithCurrency(cfg.Currency),
		service.WithAddressBounds(cfg.AddressMinLength, cfg.AddressMaxLength),
		service.WithIssuerRetry(retry.Policy{
			MaxRetries:      cfg.IssuerRetries,
			InitialInterval: cfg.RetryInitialInterval,
		}),
		service.WithRecovery(cfg.StuckAttemptThreshold, cfg.ReconcileMaxAttempts),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writer := publisher.NewKafkaWriter(cfg.KafkaBrokers...)
	defer writer.Close()
	poller := publisher.NewOutboxPoller(repo, checkoutService, writer, log)
	go poller.Run(ctx)

	sweeper := cartconsumer.NewResidualConsumer(cartService, cartconsumer.NewKafkaReader(cfg.KafkaBrokers...), log)
	defer sweeper.Close()
	go sweeper.Run(ctx)

	// Checkout calls span issuer retries and materialization, so they get the checkout budget.
	router := h.NewRouter(
		h.NewCheckoutHandler(checkoutService, cfg.CheckoutTimeout, log),
		h.NewCartHandler(cartService, cfg.RequestTimeout),
		h.AuthMiddleware([]byte(cfg.JWTSecret)),
		cfg.CheckoutTimeout,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "checkout-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.CheckoutTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("checkout-service listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down checkout-service...")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("checkout-service stopped")
}
