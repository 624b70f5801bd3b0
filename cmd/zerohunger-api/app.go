package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/codemavricks/zerohunger/internal/api"
	"github.com/codemavricks/zerohunger/internal/broker/messages"
	"github.com/codemavricks/zerohunger/internal/services/donations"
)

type apiOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

func runAPIServer(ctx context.Context, opts apiOpts, routerOpts api.RouterOpts, donationsSvc *donations.Service, consumer kafkaConsumer) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}
	routerOpts.SwaggerPath = opts.swaggerPath

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	// The worker announces expired donations over the broker; the only thing
	// the API has to do is drop its cached listing.
	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		_ = consumer.Consume(ctx, func(_key, value []byte) error {
			var ev messages.DonationEvent
			if err := json.Unmarshal(value, &ev); err != nil {
				return err
			}
			if ev.Type == messages.TypeDonationExpired {
				donationsSvc.InvalidateAvailable(ctx)
			}
			return nil
		})
	}()

	srv := &http.Server{Handler: api.NewRouter(routerOpts)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}
