package mock

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"stkpay/internal/domain/payment"
	"stkpay/internal/provider"
)

func instant(cfg Config) Config {
	cfg.StartDelay = 0
	cfg.StatusDelay = 0
	return cfg
}

func TestStartPayment(t *testing.T) {
	req := payment.Request{PhoneNumber: "254712345678", Amount: 100}

	t.Run("Accepted", func(t *testing.T) {
		cfg := instant(DefaultConfig())
		cfg.StartFailureRate = 0
		gw := New(cfg).WithSeed(1)

		init, err := gw.StartPayment(context.Background(), req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(init.TransactionID, "MPESA") {
			t.Errorf("expected MPESA prefix, got %q", init.TransactionID)
		}
		if len(init.TransactionID) != len("MPESA")+8 {
			t.Errorf("unexpected transaction id length: %q", init.TransactionID)
		}
	})

	t.Run("Rejected", func(t *testing.T) {
		cfg := instant(DefaultConfig())
		cfg.StartFailureRate = 1
		gw := New(cfg).WithSeed(1)

		_, err := gw.StartPayment(context.Background(), req)
		var ge *provider.GatewayError
		if !errors.As(err, &ge) {
			t.Fatalf("expected GatewayError, got %v", err)
		}
		if ge.Code != provider.ErrSimulatedFailure {
			t.Errorf("expected %s, got %s", provider.ErrSimulatedFailure, ge.Code)
		}
	})

	t.Run("Respects Context", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.StartDelay = time.Hour
		gw := New(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := gw.StartPayment(ctx, req)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		name      string
		completed float64
		pending   float64
		want      provider.State
		code      string
	}{
		{"always completed", 1, 0, provider.StateCompleted, "0"},
		{"always pending", 0, 1, provider.StatePending, ""},
		{"always failed", 0, 0, provider.StateFailed, "1032"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := instant(DefaultConfig())
			cfg.CompletedRatio = tt.completed
			cfg.PendingRatio = tt.pending
			gw := New(cfg).WithSeed(7)

			for i := 0; i < 20; i++ {
				res, err := gw.CheckStatus(context.Background(), "MPESA123")
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if res.State != tt.want || res.ResultCode != tt.code {
					t.Fatalf("got %s/%s, want %s/%s", res.State, res.ResultCode, tt.want, tt.code)
				}
			}
		})
	}
}

func TestCheckStatusDistribution(t *testing.T) {
	gw := New(instant(DefaultConfig())).WithSeed(42)

	counts := map[provider.State]int{}
	const n = 5000
	for i := 0; i < n; i++ {
		res, err := gw.CheckStatus(context.Background(), "MPESA123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		counts[res.State]++
	}

	within := func(got int, share float64) bool {
		want := share * n
		return float64(got) > want*0.85 && float64(got) < want*1.15
	}
	if !within(counts[provider.StateCompleted], 0.7) ||
		!within(counts[provider.StatePending], 0.2) ||
		!within(counts[provider.StateFailed], 0.1) {
		t.Errorf("unexpected distribution: %v", counts)
	}
}
