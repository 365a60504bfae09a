package mock

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"stkpay/internal/domain/payment"
	"stkpay/internal/provider"

	"github.com/rs/zerolog/log"
	"github.com/zoobzio/clockz"
)

// Config tunes the simulated gateway.
type Config struct {
	StartDelay       time.Duration
	StatusDelay      time.Duration
	StartFailureRate float64 // share of StartPayment calls that are rejected
	CompletedRatio   float64 // share of status checks answering completed
	PendingRatio     float64 // share answering pending; the rest fail
}

// DefaultConfig mirrors a sandbox that mostly succeeds.
func DefaultConfig() Config {
	return Config{
		StartDelay:       2 * time.Second,
		StatusDelay:      1500 * time.Millisecond,
		StartFailureRate: 0.1,
		CompletedRatio:   0.7,
		PendingRatio:     0.2,
	}
}

// Gateway answers StartPayment and CheckStatus with random outcomes after
// fixed delays. It never talks to the network.
type Gateway struct {
	cfg   Config
	clock clockz.Clock

	mu  sync.Mutex
	rnd *rand.Rand
}

// New creates a simulated gateway seeded from the wall clock
func New(cfg Config) *Gateway {
	return &Gateway{
		cfg: cfg,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock sets a custom clock for testing.
func (g *Gateway) WithClock(clock clockz.Clock) *Gateway {
	g.clock = clock
	return g
}

// WithSeed makes outcomes reproducible.
func (g *Gateway) WithSeed(seed int64) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rnd = rand.New(rand.NewSource(seed))
	return g
}

// Name returns the gateway name
func (g *Gateway) Name() string {
	return "M-Pesa (simulated)"
}

// StartPayment pretends to send the prompt to req.PhoneNumber
func (g *Gateway) StartPayment(ctx context.Context, req payment.Request) (*payment.Initiation, error) {
	description := req.Description
	if description == "" {
		description = "Payment"
	}
	log.Info().
		Str("provider", "mock").
		Str("phone_number", req.PhoneNumber).
		Int64("amount", int64(req.Amount)).
		Str("description", description).
		Msg("initiating payment")

	if err := g.sleep(ctx, g.cfg.StartDelay); err != nil {
		return nil, err
	}

	if g.roll() < g.cfg.StartFailureRate {
		return nil, &provider.GatewayError{
			Code:    provider.ErrSimulatedFailure,
			Message: "Payment request failed. Please try again.",
		}
	}

	return &payment.Initiation{
		TransactionID:   g.transactionID(),
		CustomerMessage: "STK push initiated successfully",
	}, nil
}

// CheckStatus rolls a completed, pending or failed answer
func (g *Gateway) CheckStatus(ctx context.Context, transactionID string) (*provider.StatusResult, error) {
	if err := g.sleep(ctx, g.cfg.StatusDelay); err != nil {
		return nil, err
	}

	r := g.roll()
	switch {
	case r < g.cfg.CompletedRatio:
		return &provider.StatusResult{
			State:      provider.StateCompleted,
			ResultCode: "0",
			ResultDesc: "The service request is processed successfully.",
		}, nil
	case r < g.cfg.CompletedRatio+g.cfg.PendingRatio:
		return &provider.StatusResult{
			State:      provider.StatePending,
			ResultDesc: "The transaction is being processed",
		}, nil
	default:
		return &provider.StatusResult{
			State:      provider.StateFailed,
			ResultCode: "1032",
			ResultDesc: "Request cancelled by user",
		}, nil
	}
}

func (g *Gateway) getClock() clockz.Clock {
	if g.clock == nil {
		return clockz.RealClock
	}
	return g.clock
}

func (g *Gateway) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return provider.NewGatewayError(provider.ErrRequestFailed, ctx.Err(), "request aborted")
	case <-g.getClock().After(d):
		return nil
	}
}

func (g *Gateway) roll() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rnd.Float64()
}

// transactionID looks like MPESA43210987654: the prefix plus the tail of
// the unix millisecond timestamp.
func (g *Gateway) transactionID() string {
	ms := strconv.FormatInt(g.getClock().Now().UnixMilli(), 10)
	if len(ms) > 5 {
		ms = ms[5:]
	}
	return "MPESA" + ms
}
