package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/fjod/go_cart/storefront/internal/config"
	pg "github.com/fjod/go_cart/storefront/internal/grpc"
	"github.com/fjod/go_cart/storefront/internal/paymentintent"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"google.golang.org/grpc"
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

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.StripeSecretKey == "" {
		log.Fatal("STRIPE_SECRET_KEY is required")
	}

	issuer := paymentintent.NewIssuer(
		paymentintent.NewStripeGateway(cfg.StripeSecretKey),
		cfg.Currency,
		cfg.RequestTimeout,
		log,
	)
	server := pg.NewPaymentIntentServiceServer(issuer)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatal("failed to listen", zap.Error(err))
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	pg.RegisterPaymentIntentServer(grpcServer, server)

	go func() {
		log.Info("payment intent service listening", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal("failed to serve", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down payment intent service...")
	grpcServer.GracefulStop()
	log.Info("payment intent service stopped")
}
