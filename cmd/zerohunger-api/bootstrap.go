package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codemavricks/zerohunger/config"
	"github.com/codemavricks/zerohunger/internal/api"
	"github.com/codemavricks/zerohunger/internal/broker/kafka"
	"github.com/codemavricks/zerohunger/internal/cache/rediscache"
	"github.com/codemavricks/zerohunger/internal/services/claims"
	"github.com/codemavricks/zerohunger/internal/services/donations"
	"github.com/codemavricks/zerohunger/internal/services/notifications"
	"github.com/codemavricks/zerohunger/internal/storage/pgstore"
)

type apiApp struct {
	ctx    context.Context
	cancel context.CancelFunc

	opts       apiOpts
	routerOpts api.RouterOpts

	donations *donations.Service
	consumer  *kafka.Consumer
	closeDB   func()
}

func mustBootstrapAPI() *apiApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("config parse failed: %v", err))
	}
	if cfg.ZeroHunger.JWTSecret == "" {
		panic("zerohunger.jwt_secret is required")
	}

	httpAddr := cfg.ZeroHunger.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.ZeroHunger.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "zerohunger-api"
	}
	topic := cfg.Kafka.DonationEventsTopicName
	if topic == "" {
		topic = "donations.events"
	}
	cacheTTL := time.Duration(cfg.ZeroHunger.AvailableCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	limiter := rediscache.NewRateLimiter(redisAddr)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)

	donationsSvc := donations.New(st, rc, cacheTTL)
	claimsSvc := claims.New(st, rc, producer, topic)
	notificationsSvc := notifications.New(st)

	routerOpts := api.RouterOpts{
		Auth:               &api.AuthHandler{Users: st, JWTSecret: cfg.ZeroHunger.JWTSecret},
		Donations:          &api.DonationsHandler{Donations: donationsSvc, Claims: claimsSvc},
		Claims:             &api.ClaimsHandler{Claims: claimsSvc},
		Notifications:      &api.NotificationsHandler{Notifications: notificationsSvc},
		JWTSecret:          cfg.ZeroHunger.JWTSecret,
		Users:              st,
		Limiter:            limiter,
		RateLimitPerMinute: cfg.ZeroHunger.RateLimitPerMinute,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &apiApp{
		ctx:    ctx,
		cancel: cancel,
		opts: apiOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		routerOpts: routerOpts,
		donations:  donationsSvc,
		consumer:   consumer,
		closeDB:    st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgstore.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgstore.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *apiApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *apiApp) Run() error {
	return runAPIServer(a.ctx, a.opts, a.routerOpts, a.donations, a.consumer)
}
