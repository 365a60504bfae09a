package relay

import (
	"context"
	"fmt"

	"stkpay/internal/config"
	"stkpay/internal/domain/payment"
	"stkpay/internal/provider"
	"stkpay/internal/provider/base"
)

// Client is a Gateway that goes through a relay service instead of holding
// Daraja credentials itself.
type Client struct {
	http *base.HTTPClient
}

// New creates a relay client for cfg.Gateway.RelayURL
func New(cfg config.Cfg) *Client {
	httpClient := base.NewHTTPClient("relay", cfg.Gateway.Timeout)
	httpClient.SetBaseURL(cfg.Gateway.RelayURL)
	return &Client{http: httpClient}
}

// Name returns the gateway name
func (c *Client) Name() string {
	return "M-Pesa relay (" + c.http.BaseURL() + ")"
}

func (c *Client) StartPayment(ctx context.Context, req payment.Request) (*payment.Initiation, error) {
	resp, err := c.http.PostJSON(ctx, "/stk", STKRequest{
		PhoneNumber: req.PhoneNumber,
		Amount:      Amount(req.Amount),
		Reference:   req.Description,
		Description: req.Description,
	}, nil)
	if err != nil {
		return nil, provider.NewGatewayError(provider.ErrRequestFailed, err, "relay request failed")
	}
	if !resp.IsSuccess() {
		return nil, errorFrom(resp)
	}

	var out STKResponse
	if err := resp.Decode(&out); err != nil {
		return nil, provider.NewGatewayError(provider.ErrResponseParse, err, "failed to parse relay STK response")
	}
	if !out.Success || out.CheckoutRequestID == "" {
		return nil, &provider.GatewayError{Code: provider.ErrStartRejected, Message: "relay did not accept the payment"}
	}
	return &payment.Initiation{TransactionID: out.CheckoutRequestID, CustomerMessage: out.CustomerMessage}, nil
}

func (c *Client) CheckStatus(ctx context.Context, transactionID string) (*provider.StatusResult, error) {
	resp, err := c.http.PostJSON(ctx, "/status", StatusRequest{CheckoutRequestID: transactionID}, nil)
	if err != nil {
		return nil, provider.NewGatewayError(provider.ErrRequestFailed, err, "relay request failed")
	}
	if !resp.IsSuccess() {
		return nil, errorFrom(resp)
	}

	var out StatusResponse
	if err := resp.Decode(&out); err != nil {
		return nil, provider.NewGatewayError(provider.ErrResponseParse, err, "failed to parse relay status response")
	}

	state := provider.State(out.Status)
	switch state {
	case provider.StatePending, provider.StateCompleted, provider.StateFailed:
	default:
		return nil, &provider.GatewayError{
			Code:    provider.ErrResponseParse,
			Message: fmt.Sprintf("relay returned unknown status %q", out.Status),
		}
	}
	return &provider.StatusResult{State: state, ResultCode: out.ResultCode, ResultDesc: out.ResultDesc}, nil
}

func errorFrom(resp *base.HTTPResponse) *provider.GatewayError {
	var body ErrorResponse
	if err := resp.Decode(&body); err != nil || body.Message == "" {
		return &provider.GatewayError{
			Code:    provider.ErrAPIError,
			Message: fmt.Sprintf("relay returned status %d", resp.StatusCode),
		}
	}
	code := body.Code
	if code == "" {
		code = provider.ErrAPIError
	}
	return &provider.GatewayError{Code: code, Message: body.Message, ProviderErr: body.Error}
}
