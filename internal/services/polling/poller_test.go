package polling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stkpay/internal/domain/payment"
	"stkpay/internal/provider"

	"github.com/zoobzio/clockz"
)

type scriptedGateway struct {
	mu     sync.Mutex
	checks int
	// answer is called with the 1-based check number
	answer func(ctx context.Context, n int) (*provider.StatusResult, error)
}

func (g *scriptedGateway) StartPayment(context.Context, payment.Request) (*payment.Initiation, error) {
	return &payment.Initiation{TransactionID: "ws_CO_1"}, nil
}

func (g *scriptedGateway) CheckStatus(ctx context.Context, _ string) (*provider.StatusResult, error) {
	g.mu.Lock()
	g.checks++
	n := g.checks
	g.mu.Unlock()
	return g.answer(ctx, n)
}

func (g *scriptedGateway) Checks() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.checks
}

func always(state provider.State) func(context.Context, int) (*provider.StatusResult, error) {
	return func(context.Context, int) (*provider.StatusResult, error) {
		return &provider.StatusResult{State: state}, nil
	}
}

type recorder struct {
	mu       sync.Mutex
	updates  []Update
	receipts []string
	onUpdate func(Update)
}

func (r *recorder) StatusChanged(u Update) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	hook := r.onUpdate
	r.mu.Unlock()
	if hook != nil {
		hook(u)
	}
}

func (r *recorder) ReceiptDue(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = append(r.receipts, id)
}

func (r *recorder) statuses() []payment.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]payment.Status, len(r.updates))
	for i, u := range r.updates {
		out[i] = u.Status
	}
	return out
}

func (r *recorder) receiptCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.receipts)
}

func startRun(p *Poller, ctx context.Context, obs Observer) <-chan Update {
	out := make(chan Update, 1)
	go func() {
		out <- p.Run(ctx, "ws_CO_1", obs)
	}()
	// Allow goroutine to start
	time.Sleep(10 * time.Millisecond)
	return out
}

// stepper is the part of the fake clock the tests drive.
type stepper interface {
	Advance(d time.Duration)
	BlockUntilReady()
}

// advanceUntil moves the fake clock one second at a time until the run
// returns or limit simulated time has passed.
func advanceUntil(t *testing.T, clock stepper, done <-chan Update, limit time.Duration) Update {
	t.Helper()
	for elapsed := time.Duration(0); elapsed <= limit; elapsed += time.Second {
		select {
		case u := <-done:
			return u
		default:
		}
		clock.Advance(time.Second)
		clock.BlockUntilReady()
		time.Sleep(2 * time.Millisecond)
	}
	select {
	case u := <-done:
		return u
	case <-time.After(time.Second):
		t.Fatalf("poll did not finish within %v of simulated time", limit)
		return Update{}
	}
}

func equalStatuses(got []payment.Status, want ...payment.Status) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestPoller(t *testing.T) {
	t.Run("Completed On First Check", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		gw := &scriptedGateway{answer: always(provider.StateCompleted)}
		p := NewPoller(gw, DefaultConfig()).WithClock(clock)
		rec := &recorder{}

		u := advanceUntil(t, clock, startRun(p, context.Background(), rec), 30*time.Second)

		if u.Status != payment.StatusSuccess {
			t.Fatalf("expected success, got %s", u.Status)
		}
		if got := rec.statuses(); !equalStatuses(got, payment.StatusPending, payment.StatusSuccess) {
			t.Errorf("unexpected emissions: %v", got)
		}
		if gw.Checks() != 1 {
			t.Errorf("expected exactly 1 status check, got %d", gw.Checks())
		}
		if rec.receiptCount() != 1 {
			t.Errorf("expected receipt navigation once, got %d", rec.receiptCount())
		}
	})

	t.Run("Always Pending Times Out After Max Attempts", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		gw := &scriptedGateway{answer: always(provider.StatePending)}
		p := NewPoller(gw, DefaultConfig()).WithClock(clock)
		rec := &recorder{}

		u := advanceUntil(t, clock, startRun(p, context.Background(), rec), 150*time.Second)

		if u.Status != payment.StatusTimeout {
			t.Fatalf("expected timeout, got %s", u.Status)
		}
		if !errors.Is(u.Err, payment.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", u.Err)
		}
		if gw.Checks() != 20 {
			t.Errorf("expected 20 checks, got %d", gw.Checks())
		}
		if got := rec.statuses(); !equalStatuses(got, payment.StatusPending, payment.StatusTimeout) {
			t.Errorf("unexpected emissions: %v", got)
		}

		// nothing is scheduled after the terminal status
		for i := 0; i < 30; i++ {
			clock.Advance(time.Second)
			clock.BlockUntilReady()
		}
		time.Sleep(10 * time.Millisecond)
		if gw.Checks() != 20 {
			t.Errorf("checks continued after timeout: %d", gw.Checks())
		}
		if rec.receiptCount() != 0 {
			t.Error("timeout must not navigate to the receipt")
		}
	})

	t.Run("Unresolved Check Times Out Once", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		gw := &scriptedGateway{answer: func(ctx context.Context, _ int) (*provider.StatusResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}
		p := NewPoller(gw, DefaultConfig()).WithClock(clock)
		rec := &recorder{}

		u := advanceUntil(t, clock, startRun(p, context.Background(), rec), 150*time.Second)

		if u.Status != payment.StatusTimeout {
			t.Fatalf("expected timeout, got %s", u.Status)
		}
		if got := rec.statuses(); !equalStatuses(got, payment.StatusPending, payment.StatusTimeout) {
			t.Errorf("expected a single timeout emission, got %v", got)
		}
		if gw.Checks() != 1 {
			t.Errorf("expected 1 check, got %d", gw.Checks())
		}
	})

	t.Run("Deadline Beats Attempt Count", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		gw := &scriptedGateway{answer: always(provider.StatePending)}
		cfg := DefaultConfig()
		cfg.Interval = 10 * time.Second // 5s + 19*10s exceeds the 120s budget
		p := NewPoller(gw, cfg).WithClock(clock)
		rec := &recorder{}

		u := advanceUntil(t, clock, startRun(p, context.Background(), rec), 200*time.Second)

		if u.Status != payment.StatusTimeout {
			t.Fatalf("expected timeout, got %s", u.Status)
		}
		if gw.Checks() >= cfg.MaxAttempts {
			t.Errorf("expected the deadline to stop polling early, got %d checks", gw.Checks())
		}
		if got := rec.statuses(); !equalStatuses(got, payment.StatusPending, payment.StatusTimeout) {
			t.Errorf("unexpected emissions: %v", got)
		}
	})

	t.Run("Check Error Fails Without Retry", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		boom := &provider.GatewayError{Code: provider.ErrRequestFailed, Message: "connection reset"}
		gw := &scriptedGateway{answer: func(context.Context, int) (*provider.StatusResult, error) {
			return nil, boom
		}}
		p := NewPoller(gw, DefaultConfig()).WithClock(clock)
		rec := &recorder{}

		u := advanceUntil(t, clock, startRun(p, context.Background(), rec), 30*time.Second)

		if u.Status != payment.StatusFailed {
			t.Fatalf("expected failed, got %s", u.Status)
		}
		if !errors.Is(u.Err, boom) {
			t.Errorf("expected gateway error, got %v", u.Err)
		}
		if gw.Checks() != 1 {
			t.Errorf("expected 1 check, got %d", gw.Checks())
		}
	})

	t.Run("Failed Result Carries Description", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		gw := &scriptedGateway{answer: func(_ context.Context, n int) (*provider.StatusResult, error) {
			if n < 3 {
				return &provider.StatusResult{State: provider.StatePending}, nil
			}
			return &provider.StatusResult{State: provider.StateFailed, ResultCode: "1032", ResultDesc: "Request cancelled by user"}, nil
		}}
		p := NewPoller(gw, DefaultConfig()).WithClock(clock)
		rec := &recorder{}

		u := advanceUntil(t, clock, startRun(p, context.Background(), rec), 60*time.Second)

		if u.Status != payment.StatusFailed {
			t.Fatalf("expected failed, got %s", u.Status)
		}
		if u.Result == nil || u.Result.ResultCode != "1032" {
			t.Errorf("expected result code 1032, got %+v", u.Result)
		}
		if u.Attempts != 3 {
			t.Errorf("expected 3 attempts, got %d", u.Attempts)
		}
	})

	t.Run("Cancelled Run Emits Nothing Terminal", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		gw := &scriptedGateway{answer: always(provider.StatePending)}
		p := NewPoller(gw, DefaultConfig()).WithClock(clock)
		rec := &recorder{}

		ctx, cancel := context.WithCancel(context.Background())
		done := startRun(p, ctx, rec)
		for i := 0; i < 10; i++ {
			clock.Advance(time.Second)
			clock.BlockUntilReady()
			time.Sleep(2 * time.Millisecond)
		}
		cancel()

		select {
		case u := <-done:
			if u.Status != payment.StatusPending {
				t.Errorf("expected pending, got %s", u.Status)
			}
			if !errors.Is(u.Err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", u.Err)
			}
		case <-time.After(time.Second):
			t.Fatal("run did not return after cancel")
		}
		if got := rec.statuses(); !equalStatuses(got, payment.StatusPending) {
			t.Errorf("expected only pending, got %v", got)
		}
	})

	t.Run("Cancel During Display Delay Skips Receipt", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		gw := &scriptedGateway{answer: always(provider.StateCompleted)}
		p := NewPoller(gw, DefaultConfig()).WithClock(clock)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		rec := &recorder{onUpdate: func(u Update) {
			if u.Status == payment.StatusSuccess {
				cancel()
			}
		}}

		u := advanceUntil(t, clock, startRun(p, ctx, rec), 30*time.Second)

		if u.Status != payment.StatusSuccess {
			t.Fatalf("expected success, got %s", u.Status)
		}
		if rec.receiptCount() != 0 {
			t.Error("receipt navigation fired after cancel")
		}
	})
}

func TestNewPollerFillsDefaults(t *testing.T) {
	p := NewPoller(&scriptedGateway{}, Config{})
	if got := p.Config(); got != DefaultConfig() {
		t.Errorf("expected %+v, got %+v", DefaultConfig(), got)
	}

	custom := Config{Interval: time.Second, MaxAttempts: 3}
	got := NewPoller(&scriptedGateway{}, custom).Config()
	if got.Interval != time.Second || got.MaxAttempts != 3 {
		t.Errorf("explicit values overwritten: %+v", got)
	}
	if got.Timeout != 120*time.Second || got.InitialDelay != 5*time.Second {
		t.Errorf("missing defaults: %+v", got)
	}
}

func TestZeroConfigStillPolls(t *testing.T) {
	clock := clockz.NewFakeClock()
	gw := &scriptedGateway{answer: always(provider.StateCompleted)}
	p := NewPoller(gw, Config{}).WithClock(clock)
	rec := &recorder{}

	u := advanceUntil(t, clock, startRun(p, context.Background(), rec), 30*time.Second)

	if u.Status != payment.StatusSuccess {
		t.Fatalf("expected success, got %s", u.Status)
	}
	if gw.Checks() != 1 {
		t.Errorf("expected 1 check, got %d", gw.Checks())
	}
}
