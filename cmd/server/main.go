package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/feastline/livetrack/internals/api"
	"github.com/feastline/livetrack/internals/auth"
	"github.com/feastline/livetrack/internals/config"
	"github.com/feastline/livetrack/internals/geocode"
	"github.com/feastline/livetrack/internals/hub"
	"github.com/feastline/livetrack/internals/logging"
	"github.com/feastline/livetrack/internals/notify"
	"github.com/feastline/livetrack/internals/store"
	"github.com/feastline/livetrack/internals/tracking"
)

// main is the application composition root. It wires the in-memory order
// store, the tracking engine, the geocoding client and the notification
// sinks behind the HTTP/websocket API.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New("livetrack")

	var geocoder api.Geocoder
	if cfg.Geocode.APIKey != "" {
		db, err := sql.Open("sqlite", cfg.Geocode.CachePath)
		if err != nil {
			log.Fatalf("Failed to open geocode cache: %v", err)
		}
		defer db.Close()

		cache := geocode.NewCache(db)
		if err := cache.Init(context.Background()); err != nil {
			log.Fatalf("Failed to init geocode cache: %v", err)
		}

		client, err := geocode.NewClient(cfg.Geocode.APIKey,
			geocode.WithBaseURL(cfg.Geocode.BaseURL),
			geocode.WithCache(cache),
		)
		if err != nil {
			log.Fatalf("Failed to build geocode client: %v", err)
		}
		geocoder = client
		logger.Info("geocoding enabled", "base_url", cfg.Geocode.BaseURL)
	} else {
		logger.Warn("geocoding disabled, orders require raw coordinates")
	}

	hubs := hub.NewRegistry()

	sinks := []notify.Sink{api.HubNotificationSink(hubs)}
	if cfg.Notifications.AMQPURL != "" {
		amqpSink, err := notify.NewAMQPSink(cfg.Notifications.AMQPURL)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer amqpSink.Close()
		sinks = append(sinks, amqpSink)
		logger.Info("notification fanout enabled")
	}
	notifier := notify.New(logger, sinks...)

	engine := tracking.New(logger, tracking.WithTickInterval(cfg.Tracking.TickInterval.Std()))
	orders := store.NewOrderStore()
	tokens := auth.NewTokens(cfg.Auth.JWTSecret)

	server := api.NewServer(logger, orders, engine, hubs, tokens, notifier, geocoder, cfg.Auth.TokenTTL.Std())

	r := gin.Default()
	server.RegisterRoutes(r)

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		logger.Info("shutting down")
		engine.StopAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	logger.Info("listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
