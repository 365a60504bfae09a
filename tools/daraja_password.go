package main

import (
	"fmt"
	"os"
	"time"

	"stkpay/internal/config"
	"stkpay/internal/provider/mpesa"
)

// Prints the Timestamp and Password pair for a manual STK call, e.g. from
// curl against the sandbox.
func main() {
	if len(os.Args) > 2 {
		fmt.Println("usage: go run tools/daraja_password.go [YYYYMMDDHHmmss]")
		os.Exit(1)
	}
	cfg := config.Load() // reads MPESA_BUSINESS_SHORT_CODE and MPESA_PASSKEY from env
	if cfg.Mpesa.Shortcode == "" || cfg.Mpesa.Passkey == "" {
		fmt.Println("MPESA_BUSINESS_SHORT_CODE and MPESA_PASSKEY must be set")
		os.Exit(1)
	}

	ts := mpesa.Timestamp(time.Now())
	if len(os.Args) == 2 {
		ts = os.Args[1]
	}
	fmt.Println("Timestamp:", ts)
	fmt.Println("Password: ", mpesa.Password(cfg.Mpesa.Shortcode, cfg.Mpesa.Passkey, ts))
}
