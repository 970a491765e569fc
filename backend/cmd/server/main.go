// ============================================================================
// backend/cmd/server/main.go
// Entry point for the Student Records API
// ============================================================================

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"student_records/backend/internal/gateway"
	"student_records/backend/internal/repository"
	"student_records/backend/internal/shared"
)

const healthServiceName = "student_records.API"

func main() {
	// Load environment variables
	if err := shared.LoadEnv(".env"); err != nil {
		shared.Log.Info("No .env file found, using system environment variables")
	}

	// Load service configuration
	config, err := shared.LoadServiceConfig("student-records")
	if err != nil {
		shared.Log.Fatalf("Failed to load configuration: %v", err)
	}

	log := shared.InitLogger(config)

	// Print configuration in development mode
	if shared.IsDevelopment(config) {
		shared.PrintConfig(config)
	}

	// Connect to MongoDB
	mongoClient, db, err := shared.ConnectMongoDB(&config.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		if err := shared.DisconnectMongoDB(mongoClient); err != nil {
			log.WithError(err).Error("Error disconnecting from MongoDB")
		}
	}()

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), 30*time.Second)
	if err := repository.EnsureIndexes(indexCtx, db); err != nil {
		log.WithError(err).Warn("Failed to ensure indexes")
	}
	cancelIndexes()

	// Wire services and routes
	repos := repository.NewMongoRepositories(db)
	services := gateway.NewServices(config, repos, log, func(ctx context.Context) error {
		return shared.PingMongoDB(ctx, mongoClient)
	})
	router := gateway.SetupRoutes(services, config, log)

	server := &http.Server{
		Addr:              ":" + config.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Health check service; reflection (grpcurl) is off in production
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(healthServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	if !shared.IsProduction(config) {
		reflection.Register(grpcServer)
	}

	listener, err := net.Listen("tcp", ":"+config.HealthPort)
	if err != nil {
		log.Fatalf("Failed to listen on port %s: %v", config.HealthPort, err)
	}

	go func() {
		log.Infof("Health service is listening on port %s", config.HealthPort)
		if err := grpcServer.Serve(listener); err != nil {
			log.WithError(err).Error("Health service stopped")
		}
	}()

	go func() {
		log.Infof("API listening on port %s", config.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	// Set health check to NOT_SERVING
	healthServer.SetServingStatus(healthServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	// In-flight uploads get the request timeout to finish
	ctx, cancel := context.WithTimeout(context.Background(), config.RequestTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}

	grpcServer.GracefulStop()

	log.Info("Stopped")
}
