package payment

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Request is a single checkout attempt as submitted from the form.
type Request struct {
	PhoneNumber string // canonical 2547XXXXXXXX / 2541XXXXXXXX
	Amount      Money
	Description string
}

// Initiation is the gateway's acknowledgement of a payment prompt.
type Initiation struct {
	TransactionID   string
	CustomerMessage string
}

// Money is a whole-shilling amount. M-Pesa does not accept fractions.
type Money int64

// Currency represents a currency code
type Currency string

const (
	KES Currency = "KES"
)

// Status is what the status step shows to the customer.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
)

// IsTerminal reports whether no further status checks may follow.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusTimeout
}

// Retriable reports whether the customer is offered a retry.
func (s Status) Retriable() bool {
	return s == StatusFailed || s == StatusTimeout
}

// Step is the wizard page currently displayed.
type Step string

const (
	StepForm    Step = "form"
	StepStatus  Step = "status"
	StepReceipt Step = "receipt"
)

// Receipt is derived once success has been observed and never changes.
type Receipt struct {
	TransactionID string
	Amount        Money
	Currency      Currency
	PhoneNumber   string
	Date          time.Time
	MerchantName  string
}

// NewRequest builds a request from already validated input.
func NewRequest(phone string, amount Money, description string) (*Request, error) {
	if amount <= 0 {
		return nil, &ValidationError{Field: FieldAmount, Message: "Please enter a valid amount"}
	}
	if strings.TrimSpace(phone) == "" {
		return nil, &ValidationError{Field: FieldPhone, Message: "phone number cannot be empty"}
	}
	return &Request{
		PhoneNumber: phone,
		Amount:      amount,
		Description: strings.TrimSpace(description),
	}, nil
}

// NewReceipt captures the receipt for a successful attempt.
func NewReceipt(req *Request, init *Initiation, merchant string, at time.Time) (*Receipt, error) {
	if req == nil || init == nil {
		return nil, fmt.Errorf("receipt needs both request and initiation")
	}
	if strings.TrimSpace(init.TransactionID) == "" {
		return nil, fmt.Errorf("transaction ID is required")
	}
	return &Receipt{
		TransactionID: init.TransactionID,
		Amount:        req.Amount,
		Currency:      KES,
		PhoneNumber:   req.PhoneNumber,
		Date:          at,
		MerchantName:  merchant,
	}, nil
}

// Field names reported by ValidationError.
const (
	FieldPhone  = "phone"
	FieldAmount = "amount"
)

// ValidationError is raised before any network call and shown on the form.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ErrTimeout is the cause recorded when an attempt exhausts its poll budget.
var ErrTimeout = errors.New("payment status not confirmed in time")
