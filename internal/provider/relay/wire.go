package relay

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// JSON bodies of the relay's /stk and /status routes. The HTTP handlers
// encode them and Client decodes them.

type STKRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Amount      Amount `json:"amount"`
	Reference   string `json:"reference,omitempty"`
	Description string `json:"description,omitempty"`
}

// Amount is a whole number of shillings. Callers send it as 100 or "100";
// anything that is not a whole number decodes to zero.
type Amount int64

func (a *Amount) UnmarshalJSON(b []byte) error {
	raw := string(b)
	if raw == "null" {
		*a = 0
		return nil
	}
	quoted := strings.HasPrefix(raw, `"`)
	if quoted {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil && !quoted {
		return err
	}
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		*a = 0
		return nil
	}
	*a = Amount(f)
	return nil
}

type STKResponse struct {
	Success           bool   `json:"success"`
	CheckoutRequestID string `json:"checkoutRequestID"`
	CustomerMessage   string `json:"customerMessage,omitempty"`
}

type StatusRequest struct {
	CheckoutRequestID string `json:"checkoutRequestID"`
}

type StatusResponse struct {
	Success    bool   `json:"success"`
	Status     string `json:"status"`
	ResultCode string `json:"resultCode,omitempty"`
	ResultDesc string `json:"resultDesc,omitempty"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}
