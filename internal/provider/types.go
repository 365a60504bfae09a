package provider

import (
	"errors"
	"fmt"
)

// Driver identifies a Gateway implementation
type Driver string

const (
	DriverMock   Driver = "mock"
	DriverDaraja Driver = "daraja"
	DriverRelay  Driver = "relay"
)

// State is the gateway's view of a payment, before it is mapped to UI status.
type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// StatusResult is one answer from CheckStatus.
type StatusResult struct {
	State      State  `json:"status"`
	ResultCode string `json:"resultCode,omitempty"`
	ResultDesc string `json:"resultDesc,omitempty"`
}

// GatewayError covers every way a gateway call can fail, from rejected
// requests to unreadable responses.
type GatewayError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	ProviderErr string `json:"provider_error,omitempty"`
	Err         error  `json:"-"`
}

func (e *GatewayError) Error() string {
	if e.ProviderErr != "" {
		return e.Message + ": " + e.ProviderErr
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrAuthFailed       = "auth_failed"
	ErrRequestFailed    = "request_failed"
	ErrAPIError         = "api_error"
	ErrResponseParse    = "response_parse_failed"
	ErrStartRejected    = "stk_failed"
	ErrStatusFailed     = "status_failed"
	ErrProviderDown     = "provider_down"
	ErrDriverNotFound   = "driver_not_found"
	ErrSimulatedFailure = "simulated_failure"
)

// NewGatewayError wraps err with a code, keeping it reachable via errors.As.
func NewGatewayError(code string, err error, format string, args ...any) *GatewayError {
	ge := &GatewayError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
	if err != nil {
		ge.ProviderErr = err.Error()
	}
	return ge
}

// IsGatewayError reports whether err carries a *GatewayError.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}
