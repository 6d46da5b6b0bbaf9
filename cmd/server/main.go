package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"energywatch/internal/analytics"
	"energywatch/internal/auth"
	"energywatch/internal/config"
	"energywatch/internal/forecaster"
	"energywatch/internal/insights"
	"energywatch/internal/meter"
	"energywatch/internal/server"
	"energywatch/internal/store"
	"energywatch/internal/weather"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		log.Printf("Redis cache enabled at %s", cfg.Redis.Addr)
	} else {
		log.Println("Redis cache disabled")
	}

	var archive *store.Store
	if cfg.Database.DSN != "" {
		archive, err = store.New(cfg.Database.DSN)
		if err != nil {
			log.Printf("Readings archive unavailable, continuing without it: %v", err)
			archive = nil
		} else {
			defer archive.Close()
			log.Println("Readings archive enabled")
		}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	tokens := auth.NewTokenProvider(cfg.Meter, rdb)
	energyClient := meter.NewClient(cfg.Meter, tokens, archive)
	weatherClient := weather.NewClient(cfg.Weather, rng, rdb)

	analyticsSvc := analytics.NewService(energyClient, archive, cfg.Meter.SensorID)
	forecastSvc := forecaster.NewService(energyClient)
	insightsSvc := insights.NewService(energyClient, weatherClient, analyticsSvc, forecastSvc)

	srv := server.New(cfg.Server.Port, energyClient, weatherClient, tokens, analyticsSvc, forecastSvc, insightsSvc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Shutdown complete")
}
