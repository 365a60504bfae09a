package bootstrap

import (
	"context"

	"stkpay/internal/config"
	"stkpay/internal/metrics"
	"stkpay/internal/provider"
	"stkpay/internal/provider/mock"
	"stkpay/internal/provider/mpesa"
	"stkpay/internal/provider/relay"
	"stkpay/internal/services/polling"
	"stkpay/internal/store/cache"

	"github.com/rs/zerolog/log"
)

// Gateways owns every gateway the configuration can serve, plus the
// connections they hold.
type Gateways struct {
	Registry *provider.Registry
	closers  []func() error
}

// NewGateways registers the simulated gateway always, Daraja when
// credentials are configured and the relay client when a relay URL is set.
func NewGateways(ctx context.Context, cfg config.Cfg, m *metrics.Counters) *Gateways {
	g := &Gateways{Registry: provider.NewRegistry()}

	g.Registry.Register(provider.DriverMock, mock.New(mock.Config{
		StartDelay:       cfg.Mock.StartDelay,
		StatusDelay:      cfg.Mock.StatusDelay,
		StartFailureRate: cfg.Mock.StartFailureRate,
		CompletedRatio:   cfg.Mock.CompletedRatio,
		PendingRatio:     cfg.Mock.PendingRatio,
	}))

	if cfg.Mpesa.ConsumerKey != "" {
		var tokens mpesa.TokenStore = mpesa.NewMemoryTokenStore()
		if cfg.Redis.Addr != "" {
			rdb := cache.MustOpen(ctx, cfg.Redis)
			g.closers = append(g.closers, rdb.Close)
			tokens = cache.NewTokenStore(rdb)
			log.Info().Str("addr", cfg.Redis.Addr).Msg("daraja tokens cached in redis")
		}
		g.Registry.Register(provider.DriverDaraja, mpesa.New(cfg, tokens).WithMetrics(m))
	}

	if cfg.Gateway.RelayURL != "" {
		g.Registry.Register(provider.DriverRelay, relay.New(cfg))
	}
	return g
}

// Select returns the configured driver's gateway.
func (g *Gateways) Select(name string) (provider.Gateway, error) {
	driver, err := provider.ParseDriver(name)
	if err != nil {
		return nil, err
	}
	if _, err := g.Registry.Get(driver); err != nil {
		return nil, err
	}
	return g.Registry.Bind(driver), nil
}

// Close releases connections held by the gateways.
func (g *Gateways) Close() {
	for _, c := range g.closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
}

// PollConfig converts the configured cadence.
func PollConfig(cfg config.PollCfg) polling.Config {
	return polling.Config{
		InitialDelay: cfg.InitialDelay,
		Interval:     cfg.Interval,
		MaxAttempts:  cfg.MaxAttempts,
		Timeout:      cfg.Timeout,
		DisplayDelay: cfg.DisplayDelay,
	}
}
