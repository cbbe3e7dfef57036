package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"moviebot/internal/app"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx := context.Background()

	log.Println("Starting Postgres testcontainer...")
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("moviebot"),
		postgres.WithUsername("moviebot"),
		postgres.WithPassword("devpassword"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return fmt.Errorf("failed to start Postgres container: %w", err)
	}
	defer terminate(ctx, "Postgres", pgContainer)

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fmt.Errorf("failed to get Postgres DSN: %w", err)
	}

	log.Println("Starting ClickHouse testcontainer...")
	chContainer, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:latest",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword("devpassword"),
		clickhouse.WithDatabase("default"),
	)
	if err != nil {
		return fmt.Errorf("failed to start ClickHouse container: %w", err)
	}
	defer terminate(ctx, "ClickHouse", chContainer)

	host, err := chContainer.Host(ctx)
	if err != nil {
		return fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := chContainer.MappedPort(ctx, "9000/tcp")
	if err != nil {
		return fmt.Errorf("failed to get container port: %w", err)
	}
	log.Printf("ClickHouse started at %s:%s", host, port.Port())

	log.Println("Starting MongoDB testcontainer...")
	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		return fmt.Errorf("failed to start MongoDB container: %w", err)
	}
	defer terminate(ctx, "MongoDB", mongoContainer)

	mongoURI, err := mongoContainer.ConnectionString(ctx)
	if err != nil {
		return fmt.Errorf("failed to get MongoDB URI: %w", err)
	}

	// Set environment variables for the application
	os.Setenv("DATABASE_URL", dsn)
	os.Setenv("USE_MOCK_DB", "false")
	os.Setenv("MONGODB_URI", mongoURI)
	os.Setenv("MONGODB_DATABASE", "moviebot")
	os.Setenv("CLICKHOUSE_HOST", host)
	os.Setenv("CLICKHOUSE_PORT", port.Port())
	os.Setenv("CLICKHOUSE_DATABASE", "default")
	os.Setenv("CLICKHOUSE_USER", "default")
	os.Setenv("CLICKHOUSE_PASSWORD", "devpassword")
	os.Setenv("CLICKHOUSE_USE_TLS", "false")
	os.Setenv("WEBHOOK_MODE", "false")
	if os.Getenv("LOG_FORMAT") == "" {
		os.Setenv("LOG_FORMAT", "console")
	}
	if os.Getenv("LOG_LEVEL") == "" {
		os.Setenv("LOG_LEVEL", "debug")
	}

	for _, key := range []string{"TELEGRAM_BOT_TOKEN", "ADMIN_CHAT_ID", "MOVIE_CHANNEL_ID", "TMDB_API_KEY"} {
		if os.Getenv(key) == "" {
			log.Printf("⚠️  %s not set. Please set it in your .env file or environment.", key)
		}
	}

	log.Println("Starting application with Postgres, ClickHouse and MongoDB backends...")
	fmt.Println()

	application, err := app.New()
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return application.Run()
}

func terminate(ctx context.Context, name string, c testcontainers.Container) {
	log.Printf("Stopping %s container...", name)
	if err := c.Terminate(ctx); err != nil {
		log.Printf("Failed to terminate %s container: %v", name, err)
	}
}
