package provider

import (
	"context"

	"stkpay/internal/domain/payment"
)

// Gateway is the two-call contract every payment backend implements.
// The poller and the wizard only ever see this interface.
type Gateway interface {
	// StartPayment sends the payment prompt to the customer's phone.
	StartPayment(ctx context.Context, req payment.Request) (*payment.Initiation, error)
	// CheckStatus asks where a previously started payment stands. A
	// StateFailed result is a normal answer; transport problems are errors.
	CheckStatus(ctx context.Context, transactionID string) (*StatusResult, error)
}

// Named is implemented by gateways that can describe themselves for logs.
type Named interface {
	Name() string
}
