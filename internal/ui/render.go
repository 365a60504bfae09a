package ui

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"stkpay/internal/domain/payment"
	"stkpay/internal/provider/base"
	"stkpay/internal/services/checkout"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// QuickAmounts are the one-key choices offered on the form.
var QuickAmounts = []int{50, 100, 200, 500, 1000}

// QuickAmount maps a 1-based menu choice onto QuickAmounts. Anything else
// returns 0.
func QuickAmount(choice string) int {
	i, err := strconv.Atoi(strings.TrimSpace(choice))
	if err != nil || i < 1 || i > len(QuickAmounts) {
		return 0
	}
	return QuickAmounts[i-1]
}

const dateLayout = "02 Jan 2006, 03:04 PM"

var printer = message.NewPrinter(language.English)

type banner struct {
	title       string
	description string
	action      string
}

var banners = map[payment.Status]banner{
	payment.StatusPending: {"Payment in Progress", "Please check your phone and enter your M-Pesa PIN to complete the payment.", ""},
	payment.StatusSuccess: {"Payment Successful!", "Your payment has been processed successfully.", "Done"},
	payment.StatusFailed:  {"Payment Failed", "We couldn't process your payment. Please try again.", "Retry"},
	payment.StatusTimeout: {"Payment Timeout", "The payment request has timed out. Please try again.", "Retry"},
}

// FormatAmount renders KES 1,000 style amounts.
func FormatAmount(currency payment.Currency, amount payment.Money) string {
	return printer.Sprintf("%s %d", currency, int64(amount))
}

// FormatDate renders a receipt timestamp.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// Render writes the page for v.
func Render(w io.Writer, v checkout.View) {
	switch v.Step {
	case payment.StepForm:
		renderForm(w, v)
	case payment.StepStatus:
		renderStatus(w, v)
	case payment.StepReceipt:
		renderReceipt(w, v)
	}
}

func renderForm(w io.Writer, v checkout.View) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Pay with M-Pesa")
	fmt.Fprintln(w, strings.Repeat("-", 32))
	if v.Submitting {
		fmt.Fprintln(w, "Processing...")
		return
	}
	if v.Message != "" {
		fmt.Fprintf(w, "! %s\n", v.Message)
	}
	quick := make([]string, len(QuickAmounts))
	for i, a := range QuickAmounts {
		quick[i] = fmt.Sprintf("[%d] %s", i+1, FormatAmount(payment.KES, payment.Money(a)))
	}
	fmt.Fprintf(w, "Quick amounts: %s\n", strings.Join(quick, "  "))
}

func renderStatus(w io.Writer, v checkout.View) {
	b := banners[v.Status]
	fmt.Fprintln(w)
	fmt.Fprintln(w, b.title)
	desc := b.description
	if v.Message != "" {
		desc = v.Message
	}
	fmt.Fprintln(w, desc)

	if v.Request != nil {
		fmt.Fprintf(w, "  Amount:       %s\n", FormatAmount(payment.KES, v.Request.Amount))
		fmt.Fprintf(w, "  Phone Number: %s\n", base.DisplayPhone(v.Request.PhoneNumber))
	}
	if v.Initiation != nil {
		fmt.Fprintf(w, "  Reference:    %s\n", v.Initiation.TransactionID)
	}

	var actions []string
	if b.action != "" {
		actions = append(actions, "["+strings.ToLower(b.action[:1])+"] "+b.action)
	}
	if v.ShowNewPayment() {
		actions = append(actions, "[n] New Payment")
	}
	if len(actions) > 0 {
		fmt.Fprintln(w, strings.Join(actions, "  "))
	}
}

func renderReceipt(w io.Writer, v checkout.View) {
	r := v.Receipt
	if r == nil {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Payment Receipt")
	fmt.Fprintln(w, "Transaction completed successfully")
	fmt.Fprintln(w, strings.Repeat("- ", 16))
	fmt.Fprintf(w, "  Amount:         %s\n", FormatAmount(r.Currency, r.Amount))
	fmt.Fprintf(w, "  Date & Time:    %s\n", FormatDate(r.Date))
	fmt.Fprintf(w, "  Phone Number:   %s\n", base.DisplayPhone(r.PhoneNumber))
	fmt.Fprintf(w, "  Merchant:       %s\n", r.MerchantName)
	fmt.Fprintf(w, "  Transaction ID: %s\n", r.TransactionID)
	fmt.Fprintln(w, strings.Repeat("- ", 16))
	fmt.Fprintln(w, "Completed. Thank you for your payment")
	fmt.Fprintln(w, "[n] New Payment")
}
