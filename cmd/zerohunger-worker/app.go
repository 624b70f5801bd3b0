package main

import (
	"context"
	"fmt"
	"time"

	"github.com/codemavricks/zerohunger/config"
	"github.com/codemavricks/zerohunger/internal/broker/kafka"
	"github.com/codemavricks/zerohunger/internal/services/expirer"
	"github.com/codemavricks/zerohunger/internal/storage/pgstore"
)

type workerFactories struct {
	newStorage  func(cfg *config.Config) (repo expirer.Repository, closeFn func(), err error)
	newProducer func(cfg *config.Config) expirer.Producer
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (expirer.Repository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgstore.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) expirer.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
	}
}

func newExpirer(cfg *config.Config, f workerFactories) (*expirer.Expirer, func(), error) {
	topic := cfg.Kafka.DonationEventsTopicName
	if topic == "" {
		topic = "donations.events"
	}

	pollInterval := time.Duration(cfg.ZeroHunger.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	batchSize := cfg.ZeroHunger.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return nil, nil, err
	}

	e := expirer.New(repo, f.newProducer(cfg), topic).
		WithSettings(pollInterval, batchSize)
	return e, closeFn, nil
}

func RunWorker(ctx context.Context, cfg *config.Config, f workerFactories, swaggerPath string) error {
	e, closeFn, err := newExpirer(cfg, f)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    cfg.ZeroHunger.WorkerHTTPAddr,
			swaggerPath: swaggerPath,
			expirer:     e,
			cfg:         cfg,
		})
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- e.Run(ctx) }()

	select {
	case err := <-runErr:
		return err
	case err := <-httpErr:
		return err
	}
}
