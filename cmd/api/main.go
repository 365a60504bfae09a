package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stkpay/internal/bootstrap"
	"stkpay/internal/config"
	httpx "stkpay/internal/http"
	"stkpay/internal/metrics"
	"stkpay/internal/provider"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Load()
	config.SetupLogging(cfg.App)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	gateways := bootstrap.NewGateways(ctx, cfg, m)
	defer gateways.Close()

	// the relay cannot forward to itself
	if driver, _ := provider.ParseDriver(cfg.Gateway.Driver); driver == provider.DriverRelay {
		log.Fatal().Msg("GATEWAY_DRIVER=relay is only valid for the checkout client")
	}
	gw, err := gateways.Select(cfg.Gateway.Driver)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Gateway.Driver).Msg("no gateway")
	}

	// Router
	r := httpx.NewRouter(httpx.RouterDependencies{
		Gateway: gw,
		Metrics: m,
		Timeout: cfg.Gateway.Timeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Gateway.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Str("driver", cfg.Gateway.Driver).Msgf("M-Pesa relay listening on :%s", cfg.App.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	cancel()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	log.Info().Msg("server stopped")
}
