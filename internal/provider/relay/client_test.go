package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stkpay/internal/config"
	"stkpay/internal/domain/payment"
	"stkpay/internal/provider"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(config.Cfg{Gateway: config.GatewayCfg{RelayURL: srv.URL, Timeout: 5 * time.Second}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClientStartPayment(t *testing.T) {
	req := payment.Request{PhoneNumber: "254712345678", Amount: 250, Description: "Order 7"}

	t.Run("Accepted", func(t *testing.T) {
		var got STKRequest
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/stk" || r.Method != http.MethodPost {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			_ = json.NewDecoder(r.Body).Decode(&got)
			writeJSON(w, http.StatusOK, STKResponse{Success: true, CheckoutRequestID: "ws_CO_9", CustomerMessage: "sent"})
		})

		init, err := c.StartPayment(context.Background(), req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if init.TransactionID != "ws_CO_9" || init.CustomerMessage != "sent" {
			t.Errorf("unexpected initiation %+v", init)
		}
		if got.PhoneNumber != "254712345678" || got.Amount != 250 || got.Description != "Order 7" {
			t.Errorf("unexpected body %+v", got)
		}
	})

	t.Run("Relay Error Keeps Code", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{
				Message: "Internal server error",
				Code:    provider.ErrSimulatedFailure,
				Error:   "Payment request failed. Please try again.",
			})
		})

		_, err := c.StartPayment(context.Background(), req)
		var ge *provider.GatewayError
		if !errors.As(err, &ge) {
			t.Fatalf("expected GatewayError, got %v", err)
		}
		if ge.Code != provider.ErrSimulatedFailure {
			t.Errorf("expected %s, got %s", provider.ErrSimulatedFailure, ge.Code)
		}
	})

	t.Run("Unreadable Error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := c.StartPayment(context.Background(), req)
		var ge *provider.GatewayError
		if !errors.As(err, &ge) || ge.Code != provider.ErrAPIError {
			t.Fatalf("expected api_error, got %v", err)
		}
	})

	t.Run("Relay Down", func(t *testing.T) {
		c := New(config.Cfg{Gateway: config.GatewayCfg{RelayURL: "http://127.0.0.1:1", Timeout: time.Second}})

		_, err := c.StartPayment(context.Background(), req)
		var ge *provider.GatewayError
		if !errors.As(err, &ge) || ge.Code != provider.ErrRequestFailed {
			t.Fatalf("expected request_failed, got %v", err)
		}
	})
}

func TestClientCheckStatus(t *testing.T) {
	tests := []struct {
		name    string
		resp    StatusResponse
		want    provider.State
		wantErr bool
	}{
		{"completed", StatusResponse{Success: true, Status: "completed", ResultCode: "0"}, provider.StateCompleted, false},
		{"pending", StatusResponse{Success: true, Status: "pending"}, provider.StatePending, false},
		{"failed", StatusResponse{Success: true, Status: "failed", ResultCode: "1032"}, provider.StateFailed, false},
		{"unknown", StatusResponse{Success: true, Status: "weird"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got StatusRequest
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&got)
				writeJSON(w, http.StatusOK, tt.resp)
			})

			res, err := c.CheckStatus(context.Background(), "ws_CO_9")
			if got.CheckoutRequestID != "ws_CO_9" {
				t.Errorf("unexpected body %+v", got)
			}
			if tt.wantErr {
				if !provider.IsGatewayError(err) {
					t.Fatalf("expected GatewayError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.State != tt.want || res.ResultCode != tt.resp.ResultCode {
				t.Errorf("unexpected result %+v", res)
			}
		})
	}
}
