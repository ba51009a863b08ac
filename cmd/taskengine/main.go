// Command taskengine is the task execution engine's process entrypoint. It
// wires configuration, the durable store, the subscription bus, the task
// registry, and the HTTP/WebSocket facade together and serves until killed.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/taskengine/internal/bus"
	"github.com/codeready-toolchain/taskengine/internal/config"
	"github.com/codeready-toolchain/taskengine/internal/registry"
	"github.com/codeready-toolchain/taskengine/internal/store"
	"github.com/codeready-toolchain/taskengine/internal/taskapi"
)

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("could not load %s: %v (continuing with existing environment)", envPath, err)
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	setLogLevel(cfg.LogLevel)
	gin.SetMode(cfg.HTTP.GinMode)

	ctx := context.Background()

	st, err := store.Open(ctx, store.Config{
		Host:         cfg.DB.Host,
		Port:         cfg.DB.Port,
		User:         cfg.DB.User,
		Password:     cfg.DB.Password,
		Database:     cfg.DB.Database,
		SSLMode:      cfg.DB.SSLMode,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		MaxIdleConns: cfg.DB.MaxIdleConns,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("error closing database: %v", err)
		}
	}()
	slog.Info("connected to postgresql", "host", cfg.DB.Host, "database", cfg.DB.Database)

	b := bus.New()
	deadline := time.Duration(cfg.MaxTaskDurationSeconds) * time.Second
	reg := registry.New(st, b, deadline)

	server := taskapi.NewServer(st, reg)
	router := taskapi.NewRouter(server)

	slog.Info("starting task engine", "http_port", cfg.HTTP.Port, "test_mode", cfg.TestMode, "deadline", deadline)
	if err := router.Run(":" + cfg.HTTP.Port); err != nil {
		log.Fatalf("http server exited: %v", err)
	}
}

func setLogLevel(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l})))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
