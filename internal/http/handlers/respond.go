package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"stkpay/internal/provider"
	"stkpay/internal/provider/relay"

	"github.com/rs/zerolog/log"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, relay.ErrorResponse{Success: false, Message: message})
}

// serverError answers 500 and keeps the gateway error code so relay
// clients can tell a rejected prompt from an outage.
func serverError(w http.ResponseWriter, r *http.Request, err error) {
	log.Error().Err(err).
		Str("path", r.URL.Path).
		Msg("relay request failed")

	body := relay.ErrorResponse{Success: false, Message: "Internal server error", Error: err.Error()}
	var ge *provider.GatewayError
	if errors.As(err, &ge) {
		body.Code = ge.Code
	}
	writeJSON(w, http.StatusInternalServerError, body)
}

// NotFound answers unknown paths.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, relay.ErrorResponse{Success: false, Message: "Endpoint not found"})
}

// Health reports liveness and the gateway in use.
func Health(gatewayName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"gateway": gatewayName,
		})
	}
}
