package handlers

import (
	"io"
	"net/http"

	"stkpay/internal/provider/mpesa"

	"github.com/rs/zerolog/log"
)

// Callback receives Daraja's asynchronous STK result. It is logged only;
// the checkout learns the outcome by polling /status. Daraja is always
// acknowledged so it does not redeliver.
func Callback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			serverError(w, r, err)
			return
		}

		cb, err := mpesa.ParseCallback(body)
		if err != nil {
			log.Warn().Err(err).Bytes("payload", body).Msg("unparsed M-Pesa callback")
			writeJSON(w, http.StatusOK, map[string]bool{"success": true})
			return
		}

		log.Info().
			Str("checkout_request_id", cb.CheckoutRequestID).
			Str("merchant_request_id", cb.MerchantRequestID).
			Int("result_code", cb.ResultCode).
			Str("result_desc", cb.ResultDesc).
			Str("state", string(cb.State())).
			Str("receipt", cb.ReceiptNumber).
			Int64("amount", cb.Amount).
			Str("phone", cb.PhoneNumber).
			Msg("M-Pesa callback")

		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
