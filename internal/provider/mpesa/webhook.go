package mpesa

import (
	"encoding/json"
	"fmt"

	"stkpay/internal/provider"
)

// Callback is the asynchronous STK result Daraja posts to CallBackURL.
type Callback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Amount            int64
	ReceiptNumber     string
	PhoneNumber       string
	TransactionDate   string
}

// State maps the callback result onto the gateway state vocabulary.
func (c *Callback) State() provider.State {
	if c.ResultCode == 0 {
		return provider.StateCompleted
	}
	return provider.StateFailed
}

// ParseCallback decodes the Body.stkCallback envelope.
func ParseCallback(body []byte) (*Callback, error) {
	var stk struct {
		Body struct {
			StkCallback struct {
				MerchantRequestID string `json:"MerchantRequestID"`
				CheckoutRequestID string `json:"CheckoutRequestID"`
				ResultCode        int    `json:"ResultCode"`
				ResultDesc        string `json:"ResultDesc"`
				CallbackMetadata  struct {
					Item []struct {
						Name  string `json:"Name"`
						Value any    `json:"Value"`
					} `json:"Item"`
				} `json:"CallbackMetadata"`
			} `json:"stkCallback"`
		} `json:"Body"`
	}
	if err := json.Unmarshal(body, &stk); err != nil {
		return nil, fmt.Errorf("bad stk callback json: %w", err)
	}
	cb := stk.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return nil, fmt.Errorf("unrecognized callback shape")
	}

	out := &Callback{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
	}
	for _, it := range cb.CallbackMetadata.Item {
		switch it.Name {
		case "Amount":
			if f, ok := it.Value.(float64); ok {
				out.Amount = int64(f)
			}
		case "MpesaReceiptNumber":
			out.ReceiptNumber = stringValue(it.Value)
		case "PhoneNumber":
			out.PhoneNumber = stringValue(it.Value)
		case "TransactionDate":
			out.TransactionDate = stringValue(it.Value)
		}
	}
	return out, nil
}

// some sandboxes send numbers, some strings
func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	}
	return ""
}
