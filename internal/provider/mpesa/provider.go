package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"stkpay/internal/config"
	"stkpay/internal/domain/payment"
	"stkpay/internal/metrics"
	"stkpay/internal/provider"
	"stkpay/internal/provider/base"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// errCodeStillProcessing is how the STK query endpoint says "ask again later".
const errCodeStillProcessing = "500.001.1001"

var eat = time.FixedZone("EAT", 3*3600)

// Provider talks to Safaricom Daraja for STK push and STK query
type Provider struct {
	cfg         config.MpesaCfg
	callbackURL string
	http        *base.HTTPClient
	tokens      TokenStore
	breaker     *gobreaker.CircuitBreaker
	metrics     *metrics.Counters
	now         func() time.Time
	newBackOff  func() backoff.BackOff
}

// New creates a Daraja gateway. A nil store caches tokens in memory.
func New(cfg config.Cfg, tokens TokenStore) *Provider {
	if tokens == nil {
		tokens = NewMemoryTokenStore()
	}
	httpClient := base.NewHTTPClient("mpesa", cfg.Gateway.Timeout)
	httpClient.SetBaseURL(baseURL(cfg.Mpesa))

	return &Provider{
		cfg:         cfg.Mpesa,
		callbackURL: cfg.CallbackURL(),
		http:        httpClient,
		tokens:      tokens,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "daraja",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// a caller that gave up says nothing about Daraja's health
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			},
		}),
		now:        time.Now,
		newBackOff: defaultBackOff,
	}
}

// WithMetrics records gateway call latency on m.
func (p *Provider) WithMetrics(m *metrics.Counters) *Provider {
	p.metrics = m
	return p
}

// WithBackOff replaces the retry policy used for token requests.
func (p *Provider) WithBackOff(f func() backoff.BackOff) *Provider {
	p.newBackOff = f
	return p
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "M-Pesa (Safaricom Daraja)"
}

func baseURL(cfg config.MpesaCfg) string {
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	if cfg.Environment == "production" {
		return "https://api.safaricom.co.ke"
	}
	return "https://sandbox.safaricom.co.ke"
}

// Timestamp formats t as Daraja's YYYYMMDDHHmmss in East Africa Time.
func Timestamp(t time.Time) string {
	return t.In(eat).Format("20060102150405")
}

// Password is base64(shortcode + passkey + timestamp).
func Password(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

// StartPayment sends a Lipa Na M-Pesa Online prompt to req.PhoneNumber
func (p *Provider) StartPayment(ctx context.Context, req payment.Request) (*payment.Initiation, error) {
	start := time.Now()
	init, err := p.stkPush(ctx, req)
	p.metrics.ObserveGateway("stk_push", start, err)
	return init, err
}

func (p *Provider) stkPush(ctx context.Context, req payment.Request) (*payment.Initiation, error) {
	ts := Timestamp(p.now())
	reference := req.Description
	if reference == "" {
		reference = "Payment"
	}

	payload := map[string]any{
		"BusinessShortCode": p.cfg.Shortcode,
		"Password":          Password(p.cfg.Shortcode, p.cfg.Passkey, ts),
		"Timestamp":         ts,
		"TransactionType":   p.cfg.TransactionType,
		"Amount":            int64(req.Amount),
		"PartyA":            req.PhoneNumber,
		"PartyB":            p.cfg.Shortcode,
		"PhoneNumber":       req.PhoneNumber,
		"CallBackURL":       p.callbackURL,
		"AccountReference":  reference,
		"TransactionDesc":   reference,
	}

	resp, err := p.post(ctx, "/mpesa/stkpush/v1/processrequest", payload)
	if err != nil {
		return nil, err
	}

	var out stkPushResponse
	decodeErr := resp.Decode(&out)
	if out.ErrorCode != "" {
		return nil, &provider.GatewayError{Code: out.ErrorCode, Message: out.ErrorMessage}
	}
	if !resp.IsSuccess() {
		return nil, &provider.GatewayError{
			Code:    provider.ErrAPIError,
			Message: fmt.Sprintf("API returned status %d: %s", resp.StatusCode, resp.String()),
		}
	}
	if decodeErr != nil {
		return nil, provider.NewGatewayError(provider.ErrResponseParse, decodeErr, "failed to parse STK response")
	}
	if out.ResponseCode != "0" || out.CheckoutRequestID == "" {
		return nil, &provider.GatewayError{Code: provider.ErrStartRejected, Message: out.ResponseDescription}
	}

	log.Info().
		Str("provider", "mpesa").
		Str("operation", "stk_push").
		Str("checkout_request_id", out.CheckoutRequestID).
		Str("merchant_request_id", out.MerchantRequestID).
		Int64("amount", int64(req.Amount)).
		Str("shortcode", p.cfg.Shortcode).
		Msg("M-Pesa operation")

	return &payment.Initiation{
		TransactionID:   out.CheckoutRequestID,
		CustomerMessage: out.CustomerMessage,
	}, nil
}

type stkQueryResponse struct {
	ResponseCode        string     `json:"ResponseCode"`
	ResponseDescription string     `json:"ResponseDescription"`
	MerchantRequestID   string     `json:"MerchantRequestID"`
	CheckoutRequestID   string     `json:"CheckoutRequestID"`
	ResultCode          flexString `json:"ResultCode"`
	ResultDesc          string     `json:"ResultDesc"`
	ErrorCode           string     `json:"errorCode"`
	ErrorMessage        string     `json:"errorMessage"`
}

// CheckStatus queries an STK push by its CheckoutRequestID
func (p *Provider) CheckStatus(ctx context.Context, transactionID string) (*provider.StatusResult, error) {
	start := time.Now()
	res, err := p.stkQuery(ctx, transactionID)
	p.metrics.ObserveGateway("stk_query", start, err)
	return res, err
}

func (p *Provider) stkQuery(ctx context.Context, checkoutRequestID string) (*provider.StatusResult, error) {
	ts := Timestamp(p.now())
	payload := map[string]any{
		"BusinessShortCode": p.cfg.Shortcode,
		"Password":          Password(p.cfg.Shortcode, p.cfg.Passkey, ts),
		"Timestamp":         ts,
		"CheckoutRequestID": checkoutRequestID,
	}

	resp, err := p.post(ctx, "/mpesa/stkpushquery/v1/query", payload)
	if err != nil {
		return nil, err
	}

	var out stkQueryResponse
	decodeErr := resp.Decode(&out)

	switch {
	case out.ErrorCode == errCodeStillProcessing:
		return &provider.StatusResult{State: provider.StatePending, ResultDesc: out.ErrorMessage}, nil
	case out.ErrorCode != "":
		return nil, &provider.GatewayError{Code: out.ErrorCode, Message: out.ErrorMessage}
	case !resp.IsSuccess():
		return nil, &provider.GatewayError{
			Code:    provider.ErrAPIError,
			Message: fmt.Sprintf("API returned status %d: %s", resp.StatusCode, resp.String()),
		}
	case decodeErr != nil:
		return nil, provider.NewGatewayError(provider.ErrResponseParse, decodeErr, "failed to parse status response")
	case out.ResponseCode != "0":
		return nil, &provider.GatewayError{Code: provider.ErrStatusFailed, Message: out.ResponseDescription}
	}

	result := &provider.StatusResult{ResultCode: string(out.ResultCode), ResultDesc: out.ResultDesc}
	switch out.ResultCode {
	case "":
		result.State = provider.StatePending
	case "0":
		result.State = provider.StateCompleted
	default:
		result.State = provider.StateFailed
	}

	log.Debug().
		Str("provider", "mpesa").
		Str("operation", "stk_query").
		Str("checkout_request_id", checkoutRequestID).
		Str("result_code", result.ResultCode).
		Str("state", string(result.State)).
		Msg("M-Pesa operation")

	return result, nil
}

// post sends an authenticated request through the circuit breaker. Only
// transport and auth failures count against the breaker; HTTP error bodies
// are returned for the caller to interpret.
func (p *Provider) post(ctx context.Context, endpoint string, payload any) (*base.HTTPResponse, error) {
	out, err := p.breaker.Execute(func() (interface{}, error) {
		token, err := p.accessToken(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := p.http.PostJSON(ctx, endpoint, payload, map[string]string{"Authorization": "Bearer " + token})
		if err != nil {
			return nil, provider.NewGatewayError(provider.ErrRequestFailed, err, "request failed")
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, provider.NewGatewayError(provider.ErrProviderDown, err, "M-Pesa is temporarily unavailable")
	}
	if err != nil {
		return nil, err
	}
	return out.(*base.HTTPResponse), nil
}

// flexString accepts both "0" and 0; Daraja is not consistent.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*f = flexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexString(n.String())
	return nil
}
