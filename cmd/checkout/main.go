package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"stkpay/internal/bootstrap"
	"stkpay/internal/config"
	"stkpay/internal/domain/payment"
	"stkpay/internal/metrics"
	"stkpay/internal/provider/base"
	"stkpay/internal/services/checkout"
	"stkpay/internal/services/polling"
	"stkpay/internal/ui"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Load()
	config.SetupLogging(cfg.App)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	gateways := bootstrap.NewGateways(ctx, cfg, m)
	defer gateways.Close()

	gw, err := gateways.Select(cfg.Gateway.Driver)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Gateway.Driver).Msg("no gateway")
	}

	poller := polling.NewPoller(gw, bootstrap.PollConfig(cfg.Poll)).WithMetrics(m)
	session := checkout.NewSession(gw, poller,
		checkout.WithMerchant(cfg.App.MerchantName),
		checkout.WithListener(func(v checkout.View) { ui.Render(os.Stdout, v) }),
	)
	defer session.Close()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
	}()

	in := &input{ctx: ctx, lines: lines}
	ui.Render(os.Stdout, session.Snapshot())
	for {
		v := session.Snapshot()
		var ok bool
		if v.Step == payment.StepForm && !v.Submitting {
			ok = fillForm(ctx, in, session, v)
		} else {
			ok = command(in, session)
		}
		if !ok {
			return
		}
	}
}

type input struct {
	ctx   context.Context
	lines <-chan string
}

// read prints label and waits for a line. It reports false on EOF or
// shutdown.
func (in *input) read(label string) (string, bool) {
	if label != "" {
		fmt.Print(label)
	}
	select {
	case <-in.ctx.Done():
		return "", false
	case line, ok := <-in.lines:
		return line, ok
	}
}

func fillForm(ctx context.Context, in *input, s *checkout.Session, v checkout.View) bool {
	phonePrompt := "Phone Number (07XXXXXXXX): "
	if v.Request != nil {
		phonePrompt = fmt.Sprintf("Phone Number [%s]: ", base.DisplayPhone(v.Request.PhoneNumber))
	}
	phone, ok := in.read(phonePrompt)
	if !ok {
		return false
	}
	if phone == "" && v.Request != nil {
		phone = v.Request.PhoneNumber
	}

	raw, ok := in.read("Amount (KES, or 1-5 for a quick amount): ")
	if !ok {
		return false
	}
	amount := ui.QuickAmount(raw)
	if amount == 0 {
		// a parse failure leaves amount at 0 so the validator reports it
		amount, _ = base.ParseAmount(raw)
	}

	desc, ok := in.read("Description (optional): ")
	if !ok {
		return false
	}

	if err := s.Submit(ctx, phone, amount, desc); err != nil {
		log.Debug().Err(err).Msg("submit rejected")
	}
	return true
}

func command(in *input, s *checkout.Session) bool {
	line, ok := in.read("")
	if !ok {
		return false
	}
	var err error
	switch strings.ToLower(line) {
	case "r", "retry":
		err = s.Retry()
	case "d", "done":
		err = s.Done()
	case "n", "new":
		v := s.Snapshot()
		if v.ShowNewPayment() || v.Step == payment.StepReceipt {
			s.StartOver()
		}
	case "q", "quit":
		return false
	}
	if err != nil {
		fmt.Println(err)
	}
	return true
}
