// internal/http/handlers/stk.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"stkpay/internal/domain/payment"
	"stkpay/internal/provider"
	"stkpay/internal/provider/base"
	"stkpay/internal/provider/relay"

	"github.com/rs/zerolog/log"
)

const defaultReference = "Payment"

// STK forwards a payment prompt to the gateway.
func STK(gw provider.Gateway, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in relay.STKRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			serverError(w, r, err)
			return
		}
		if strings.TrimSpace(in.PhoneNumber) == "" || in.Amount <= 0 {
			badRequest(w, "Phone number and amount are required")
			return
		}
		if in.Reference == "" {
			in.Reference = defaultReference
		}
		if in.Description == "" {
			in.Description = defaultReference
		}

		// Short, bounded context for provider call
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		phone := base.NormalizeMSISDN(in.PhoneNumber)
		out, err := gw.StartPayment(ctx, payment.Request{
			PhoneNumber: phone,
			Amount:      payment.Money(in.Amount),
			Description: in.Description,
		})
		if err != nil {
			log.Error().Err(err).
				Str("phone", phone).
				Int64("amount", int64(in.Amount)).
				Str("reference", in.Reference).
				Msg("STK push failed")
			serverError(w, r, err)
			return
		}

		log.Info().
			Str("checkout_request_id", out.TransactionID).
			Str("phone", phone).
			Int64("amount", int64(in.Amount)).
			Msg("STK push accepted")

		writeJSON(w, http.StatusOK, relay.STKResponse{
			Success:           true,
			CheckoutRequestID: out.TransactionID,
			CustomerMessage:   out.CustomerMessage,
		})
	}
}

// Status asks the gateway where a payment prompt stands.
func Status(gw provider.Gateway, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in relay.StatusRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			serverError(w, r, err)
			return
		}
		if strings.TrimSpace(in.CheckoutRequestID) == "" {
			badRequest(w, "Checkout request ID is required")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		res, err := gw.CheckStatus(ctx, in.CheckoutRequestID)
		if err != nil {
			serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, relay.StatusResponse{
			Success:    true,
			Status:     string(res.State),
			ResultCode: res.ResultCode,
			ResultDesc: res.ResultDesc,
		})
	}
}
