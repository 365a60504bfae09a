package polling

import (
	"context"
	"errors"
	"time"

	"stkpay/internal/domain/payment"
	"stkpay/internal/metrics"
	"stkpay/internal/provider"

	"github.com/rs/zerolog/log"
	"github.com/zoobzio/clockz"
)

// Config is the poll cadence for a single payment attempt.
type Config struct {
	InitialDelay time.Duration // before the first check, while the customer types their PIN
	Interval     time.Duration // between pending checks
	MaxAttempts  int
	Timeout      time.Duration // wall-clock budget from poll start
	DisplayDelay time.Duration // success banner before the receipt
}

// DefaultConfig returns the cadence the checkout ships with
func DefaultConfig() Config {
	return Config{
		InitialDelay: 5 * time.Second,
		Interval:     3 * time.Second,
		MaxAttempts:  20,
		Timeout:      120 * time.Second,
		DisplayDelay: 2 * time.Second,
	}
}

// Update is one emission from the poller.
type Update struct {
	TransactionID string
	Status        payment.Status
	Result        *provider.StatusResult
	Attempts      int
	Err           error
}

// Observer receives the emissions of a single Run. Calls come from the
// goroutine executing Run and never overlap.
type Observer interface {
	StatusChanged(u Update)
	ReceiptDue(transactionID string)
}

// Poller drives the pending -> success|failed|timeout machine. A Poller is
// stateless between runs; every Run owns its counters and timers.
type Poller struct {
	gateway provider.Gateway
	cfg     Config
	clock   clockz.Clock
	metrics *metrics.Counters
}

// NewPoller creates a poller over gw. Unset fields take their
// DefaultConfig values.
func NewPoller(gw provider.Gateway, cfg Config) *Poller {
	def := DefaultConfig()
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.DisplayDelay <= 0 {
		cfg.DisplayDelay = def.DisplayDelay
	}
	return &Poller{gateway: gw, cfg: cfg}
}

// WithClock sets a custom clock for testing.
func (p *Poller) WithClock(clock clockz.Clock) *Poller {
	p.clock = clock
	return p
}

// WithMetrics records checks and outcomes on m.
func (p *Poller) WithMetrics(m *metrics.Counters) *Poller {
	p.metrics = m
	return p
}

// Config returns the cadence in use.
func (p *Poller) Config() Config {
	return p.cfg
}

func (p *Poller) getClock() clockz.Clock {
	if p.clock == nil {
		return clockz.RealClock
	}
	return p.clock
}

// Run polls transactionID until a terminal status or until ctx is cancelled.
// It emits pending first and at most one terminal status afterwards. When ctx
// is cancelled by the caller nothing terminal is emitted and the returned
// update carries the cancellation cause.
func (p *Poller) Run(ctx context.Context, transactionID string, obs Observer) Update {
	clock := p.getClock()
	deadline := clock.Now().Add(p.cfg.Timeout)

	pollCtx, cancelPoll := context.WithCancelCause(ctx)
	defer cancelPoll(nil)

	// aborts an in-flight check once the budget is spent
	go func() {
		select {
		case <-clock.After(p.cfg.Timeout):
			cancelPoll(payment.ErrTimeout)
		case <-pollCtx.Done():
		}
	}()

	obs.StatusChanged(Update{TransactionID: transactionID, Status: payment.StatusPending})

	wait := p.cfg.InitialDelay
	attempts := 0
	for {
		remaining := deadline.Sub(clock.Now())
		if remaining <= 0 {
			return p.finish(transactionID, obs, Update{Status: payment.StatusTimeout, Attempts: attempts, Err: payment.ErrTimeout})
		}
		if remaining < wait {
			wait = remaining
		}

		select {
		case <-pollCtx.Done():
			return p.interrupted(pollCtx, transactionID, obs, attempts)
		case <-clock.After(wait):
		}
		if pollCtx.Err() != nil {
			return p.interrupted(pollCtx, transactionID, obs, attempts)
		}
		if !clock.Now().Before(deadline) {
			return p.finish(transactionID, obs, Update{Status: payment.StatusTimeout, Attempts: attempts, Err: payment.ErrTimeout})
		}

		attempts++
		p.metrics.IncPollCheck()
		res, err := p.gateway.CheckStatus(pollCtx, transactionID)
		if pollCtx.Err() != nil {
			return p.interrupted(pollCtx, transactionID, obs, attempts)
		}
		if err != nil {
			log.Warn().Err(err).
				Str("checkout_request_id", transactionID).
				Int("attempt", attempts).
				Msg("status check failed")
			return p.finish(transactionID, obs, Update{Status: payment.StatusFailed, Attempts: attempts, Err: err})
		}

		switch res.State {
		case provider.StateCompleted:
			u := p.finish(transactionID, obs, Update{Status: payment.StatusSuccess, Result: res, Attempts: attempts})
			cancelPoll(nil)
			p.awaitReceipt(ctx, transactionID, obs)
			return u
		case provider.StateFailed:
			return p.finish(transactionID, obs, Update{Status: payment.StatusFailed, Result: res, Attempts: attempts})
		}

		if attempts >= p.cfg.MaxAttempts {
			return p.finish(transactionID, obs, Update{Status: payment.StatusTimeout, Result: res, Attempts: attempts, Err: payment.ErrTimeout})
		}
		wait = p.cfg.Interval
	}
}

// interrupted decides between the budget running out and the caller walking away.
func (p *Poller) interrupted(ctx context.Context, transactionID string, obs Observer, attempts int) Update {
	cause := context.Cause(ctx)
	if errors.Is(cause, payment.ErrTimeout) {
		return p.finish(transactionID, obs, Update{Status: payment.StatusTimeout, Attempts: attempts, Err: payment.ErrTimeout})
	}
	log.Debug().
		Str("checkout_request_id", transactionID).
		Int("attempts", attempts).
		Msg("polling abandoned")
	return Update{TransactionID: transactionID, Status: payment.StatusPending, Attempts: attempts, Err: cause}
}

func (p *Poller) finish(transactionID string, obs Observer, u Update) Update {
	u.TransactionID = transactionID
	p.metrics.IncPollOutcome(string(u.Status))

	evt := log.Info()
	if u.Status != payment.StatusSuccess {
		evt = log.Warn().AnErr("cause", u.Err)
	}
	if u.Result != nil {
		evt = evt.Str("result_code", u.Result.ResultCode).Str("result_desc", u.Result.ResultDesc)
	}
	evt.Str("checkout_request_id", transactionID).
		Str("status", string(u.Status)).
		Int("attempts", u.Attempts).
		Msg("payment reached terminal status")

	obs.StatusChanged(u)
	return u
}

// awaitReceipt holds the success banner, then asks for the receipt unless
// the caller cancelled in the meantime.
func (p *Poller) awaitReceipt(ctx context.Context, transactionID string, obs Observer) {
	clock := p.getClock()
	select {
	case <-ctx.Done():
		return
	case <-clock.After(p.cfg.DisplayDelay):
	}
	if ctx.Err() != nil {
		return
	}
	obs.ReceiptDue(transactionID)
}
