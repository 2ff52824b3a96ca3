package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/victornm/olympia/internal/config"
	"github.com/victornm/olympia/internal/logging"
	"github.com/victornm/olympia/internal/server"
)

func main() {
	c, err := loadConfig()
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	if _, err := logging.Init(c.Logging); err != nil {
		log.Fatalf("Init logging failed: %v", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		log.Fatalf("Init server failed: %v", err)
	}

	go s.Start()

	<-shutdown
	s.Shutdown()
}

func loadConfig() (server.Config, error) {
	if err := config.LoadEnv(os.Getenv("ENV_FILE")); err != nil {
		return server.Config{}, err
	}

	c := defaultConfig()

	p := os.Getenv("CONFIG_PATH")
	if p == "" {
		return c, fmt.Errorf("CONFIG_PATH not set")
	}

	if err := config.Load(p, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}

func defaultConfig() server.Config {
	var c server.Config

	c.Logging.Level = "info"
	c.Logging.MaxSizeMB = 100
	c.Logging.MaxBackups = 7
	c.Logging.MaxAgeDays = 14
	c.HTTP.Port = 8080
	c.HTTP.JoinRateLimit = 50
	c.GRPC.Port = 8081
	c.Redis.Leaderboard.Prefix = "olympia"
	c.Redis.Pubsub.Prefix = "olympia"
	c.Store.Driver = server.DriverPGX
	c.EventBus.PoolSize = 1000
	c.EventBus.Timeout = 30 * time.Second
	c.ConnectTimeout = 30 * time.Second

	return c
}
