package base

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"stkpay/internal/domain/payment"
)

var (
	nonDigits      = regexp.MustCompile(`\D`)
	localPattern   = regexp.MustCompile(`^(07|01)\d{8}$`)
	intlPattern    = regexp.MustCompile(`^254(7|1)\d{8}$`)
	displayPattern = regexp.MustCompile(`(\d{4})(\d{3})(\d{3})`)
)

// Digits strips everything that is not 0-9.
func Digits(phone string) string {
	return nonDigits.ReplaceAllString(phone, "")
}

// IsValidLocalNumber accepts 07XXXXXXXX, 01XXXXXXXX, 2547XXXXXXXX and
// 2541XXXXXXXX after punctuation and spaces are removed.
func IsValidLocalNumber(phone string) bool {
	digits := Digits(phone)
	switch len(digits) {
	case 10:
		return localPattern.MatchString(digits)
	case 12:
		return intlPattern.MatchString(digits)
	}
	return false
}

// ToCanonicalForm rewrites a local number to the 254 prefix Daraja expects.
// It does not validate; call IsValidLocalNumber first.
func ToCanonicalForm(phone string) string {
	digits := Digits(phone)
	if len(digits) == 12 && strings.HasPrefix(digits, "254") {
		return digits
	}
	if len(digits) == 10 && (strings.HasPrefix(digits, "07") || strings.HasPrefix(digits, "01")) {
		return "254" + digits[1:]
	}
	return digits
}

// NormalizeMSISDN is the relay's lenient rewrite of a raw phone field:
// a leading 0 or +254 becomes 254, anything else is passed through.
func NormalizeMSISDN(phone string) string {
	p := strings.TrimSpace(phone)
	switch {
	case strings.HasPrefix(p, "0"):
		return "254" + p[1:]
	case strings.HasPrefix(p, "+254"):
		return p[1:]
	}
	return p
}

// DisplayPhone groups a number as 0712 345 678 for banners and receipts.
func DisplayPhone(phone string) string {
	digits := Digits(phone)
	if len(digits) == 12 && strings.HasPrefix(digits, "254") {
		digits = "0" + digits[3:]
	}
	return displayPattern.ReplaceAllString(digits, "$1 $2 $3")
}

// AmountValidator validates payment amounts
type AmountValidator struct {
	minAmount int
	maxAmount int
	currency  string
}

// NewAmountValidator creates an amount validator with limits
func NewAmountValidator(currency string, minAmount, maxAmount int) *AmountValidator {
	return &AmountValidator{
		minAmount: minAmount,
		maxAmount: maxAmount,
		currency:  currency,
	}
}

// ValidateAmount validates payment amount
func (v *AmountValidator) ValidateAmount(amount int) error {
	if amount <= 0 {
		return &payment.ValidationError{
			Field:   payment.FieldAmount,
			Message: "Please enter a valid amount",
		}
	}

	if amount < v.minAmount {
		return &payment.ValidationError{
			Field:   payment.FieldAmount,
			Message: fmt.Sprintf("amount must be at least %d %s", v.minAmount, v.currency),
		}
	}

	if v.maxAmount > 0 && amount > v.maxAmount {
		return &payment.ValidationError{
			Field:   payment.FieldAmount,
			Message: fmt.Sprintf("amount must not exceed %d %s", v.maxAmount, v.currency),
		}
	}

	return nil
}

// RequestValidator checks form input before anything leaves the process.
type RequestValidator struct {
	amountValidator *AmountValidator
}

// NewRequestValidator creates a new request validator
func NewRequestValidator(currency string, minAmount, maxAmount int) *RequestValidator {
	return &RequestValidator{
		amountValidator: NewAmountValidator(currency, minAmount, maxAmount),
	}
}

// Validate returns a canonical payment request or a *payment.ValidationError.
func (v *RequestValidator) Validate(phone string, amount int, description string) (*payment.Request, error) {
	if !IsValidLocalNumber(phone) {
		return nil, &payment.ValidationError{
			Field:   payment.FieldPhone,
			Message: "Please enter a valid Safaricom phone number (format: 07XXXXXXXX or 01XXXXXXXX)",
		}
	}

	if err := v.amountValidator.ValidateAmount(amount); err != nil {
		return nil, err
	}

	return payment.NewRequest(ToCanonicalForm(phone), payment.Money(amount), description)
}

// ParseAmount parses a whole-shilling amount typed by a customer.
func ParseAmount(amountStr string) (int, error) {
	cleaned := strings.ReplaceAll(amountStr, ",", "")
	cleaned = strings.TrimPrefix(strings.TrimSpace(cleaned), "KES")
	cleaned = strings.TrimSpace(cleaned)

	amount, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, fmt.Errorf("invalid amount format: %s", amountStr)
	}
	return amount, nil
}
