package checkout

import (
	"context"
	"errors"
	"sync"

	"stkpay/internal/domain/payment"
	"stkpay/internal/provider"
	"stkpay/internal/provider/base"
	"stkpay/internal/services/polling"

	"github.com/anggasct/fluo"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zoobzio/clockz"
)

// ErrSuperseded is returned by Submit when the customer started over or
// submitted again before the gateway answered.
var ErrSuperseded = errors.New("payment attempt superseded")

const (
	msgStartFailed = "Payment request failed. Please try again."
	msgFailed      = "We couldn't process your payment. Please try again."
	msgTimeout     = "The payment request has timed out. Please try again."
)

// View is a consistent copy of the session for rendering.
type View struct {
	SessionID  string
	Step       payment.Step
	Status     payment.Status
	Submitting bool
	Request    *payment.Request
	Initiation *payment.Initiation
	Receipt    *payment.Receipt
	Message    string
	Err        error
}

// CanRetry reports whether the status page offers Retry.
func (v View) CanRetry() bool { return CanApply(ActionRetry, v.Step, v.Status) }

// CanFinish reports whether the status page offers Done.
func (v View) CanFinish() bool { return CanApply(ActionDone, v.Step, v.Status) }

// ShowNewPayment reports whether the "New Payment" link is shown.
func (v View) ShowNewPayment() bool {
	return v.Step != payment.StepForm && v.Status != payment.StatusPending
}

// Option configures a Session
type Option func(*Session)

// WithClock sets a custom clock for testing.
func WithClock(clock clockz.Clock) Option {
	return func(s *Session) { s.clock = clock }
}

// WithMerchant sets the merchant name printed on receipts.
func WithMerchant(name string) Option {
	return func(s *Session) { s.merchant = name }
}

// WithListener registers fn to receive a View after every change. Calls are
// serialized; fn must not call Submit, Retry, Done or StartOver.
func WithListener(fn func(View)) Option {
	return func(s *Session) { s.listener = fn }
}

// Session is the three-step checkout for one customer. Every attempt gets
// a generation number; callbacks from an older generation are dropped.
type Session struct {
	id        string
	gateway   provider.Gateway
	poller    *polling.Poller
	validator *base.RequestValidator
	clock     clockz.Clock
	merchant  string
	listener  func(View)
	notifyMu  sync.Mutex

	mu         sync.Mutex
	gen        uint64
	cancel     context.CancelFunc
	flow       fluo.Machine
	status     payment.Status
	submitting bool
	request    *payment.Request
	initiation *payment.Initiation
	receipt    *payment.Receipt
	message    string
	lastErr    error

	wg sync.WaitGroup
}

// NewSession creates a session on the form step
func NewSession(gw provider.Gateway, poller *polling.Poller, opts ...Option) *Session {
	s := &Session{
		id:        uuid.NewString(),
		gateway:   gw,
		poller:    poller,
		validator: base.NewRequestValidator(string(payment.KES), 1, 0),
		clock:     clockz.RealClock,
		merchant:  "Your Business Name",
		flow:      newFlow(payment.StepForm),
		status:    payment.StatusPending,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID identifies the session in logs
func (s *Session) ID() string { return s.id }

// Submit validates the form, starts the payment and begins polling. A
// *payment.ValidationError leaves the session untouched apart from the
// message; a gateway error moves it to the failed status page.
func (s *Session) Submit(ctx context.Context, phone string, amount int, description string) error {
	req, err := s.validator.Validate(phone, amount, description)
	if err != nil {
		var ve *payment.ValidationError
		s.mu.Lock()
		if errors.As(err, &ve) {
			s.message = ve.Message
		}
		s.lastErr = err
		s.mu.Unlock()
		s.notify()
		return err
	}

	initCtx, cancelInit := context.WithCancel(ctx)
	defer cancelInit()

	s.mu.Lock()
	gen := s.resetLocked()
	s.cancel = cancelInit
	s.request = req
	s.submitting = true
	s.mu.Unlock()
	s.notify()

	logger := log.With().Str("session_id", s.id).Uint64("attempt", gen).Logger()
	logger.Info().Str("phone_number", req.PhoneNumber).Int64("amount", int64(req.Amount)).Msg("initiating payment")

	init, err := s.gateway.StartPayment(initCtx, *req)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		logger.Debug().Msg("initiation result discarded")
		return ErrSuperseded
	}
	s.submitting = false
	s.moveLocked(ActionSubmit)
	if err != nil {
		s.cancel = nil
		s.status = payment.StatusFailed
		s.message = msgStartFailed
		s.lastErr = err
		s.mu.Unlock()
		s.notify()
		logger.Error().Err(err).Msg("payment initiation failed")
		return err
	}

	// the poll outlives the caller's request context
	attemptCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.initiation = init
	s.status = payment.StatusPending
	s.message = init.CustomerMessage
	s.wg.Add(1)
	s.mu.Unlock()
	s.notify()

	logger.Info().Str("checkout_request_id", init.TransactionID).Msg("payment prompt sent")

	go func() {
		defer s.wg.Done()
		s.poller.Run(attemptCtx, init.TransactionID, &attempt{session: s, gen: gen})
	}()
	return nil
}

// Retry returns from a failed or timed out attempt to the form.
func (s *Session) Retry() error {
	s.mu.Lock()
	if err := fire(s.flow, ActionRetry, s.status); err != nil {
		s.mu.Unlock()
		return err
	}
	req := s.request
	s.resetLocked()
	s.request = req // keeps the form filled in
	s.mu.Unlock()
	s.notify()
	return nil
}

// Done skips the rest of the success banner and shows the receipt.
func (s *Session) Done() error {
	s.mu.Lock()
	if err := fire(s.flow, ActionDone, s.status); err != nil {
		s.mu.Unlock()
		return err
	}
	s.cancelLocked()
	s.gen++
	s.mu.Unlock()
	s.notify()
	return nil
}

// StartOver abandons the current attempt, including any poll or pending
// navigation, and shows an empty form.
func (s *Session) StartOver() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	s.notify()
}

// Close abandons the current attempt and waits for its goroutine to exit.
func (s *Session) Close() {
	s.StartOver()
	s.wg.Wait()
}

// Wait blocks until every poll goroutine started so far has returned.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Snapshot returns the current view
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		SessionID:  s.id,
		Step:       s.stepLocked(),
		Status:     s.status,
		Submitting: s.submitting,
		Message:    s.message,
		Err:        s.lastErr,
	}
	if s.request != nil {
		r := *s.request
		v.Request = &r
	}
	if s.initiation != nil {
		i := *s.initiation
		v.Initiation = &i
	}
	if s.receipt != nil {
		r := *s.receipt
		v.Receipt = &r
	}
	return v
}

// resetLocked cancels the running attempt and clears everything it owned.
// It returns the new generation.
func (s *Session) resetLocked() uint64 {
	s.cancelLocked()
	s.gen++
	s.moveLocked(ActionStartOver)
	s.status = payment.StatusPending
	s.submitting = false
	s.request = nil
	s.initiation = nil
	s.receipt = nil
	s.message = ""
	s.lastErr = nil
	return s.gen
}

func (s *Session) cancelLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session) stepLocked() payment.Step {
	return payment.Step(s.flow.CurrentState())
}

// moveLocked fires a move the caller has already decided on.
func (s *Session) moveLocked(action Action) {
	if err := fire(s.flow, action, s.status); err != nil {
		log.Error().Err(err).Str("session_id", s.id).Msg("wizard rejected move")
	}
}

func (s *Session) notify() {
	if s.listener == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.listener(s.Snapshot())
}

// attempt routes one poll's emissions into the session, tagged with the
// generation that started it.
type attempt struct {
	session *Session
	gen     uint64
}

func (a *attempt) StatusChanged(u polling.Update) {
	s := a.session
	s.mu.Lock()
	if a.gen != s.gen || s.stepLocked() != payment.StepStatus || s.status.IsTerminal() {
		s.mu.Unlock()
		return
	}

	s.status = u.Status
	switch u.Status {
	case payment.StatusSuccess:
		receipt, err := payment.NewReceipt(s.request, s.initiation, s.merchant, s.clock.Now())
		if err != nil {
			log.Error().Err(err).Str("session_id", s.id).Msg("could not build receipt")
		}
		s.receipt = receipt
		s.message = "Your payment has been processed successfully."
	case payment.StatusFailed:
		s.message = msgFailed
		if u.Result != nil && u.Result.ResultDesc != "" {
			s.message = u.Result.ResultDesc
		}
		s.lastErr = u.Err
	case payment.StatusTimeout:
		s.message = msgTimeout
		s.lastErr = payment.ErrTimeout
	}
	s.mu.Unlock()
	s.notify()
}

func (a *attempt) ReceiptDue(transactionID string) {
	s := a.session
	s.mu.Lock()
	if a.gen != s.gen || s.initiation == nil || s.initiation.TransactionID != transactionID {
		s.mu.Unlock()
		return
	}
	// done carries the same guard as the button: status page, paid
	if fire(s.flow, ActionDone, s.status) != nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.notify()
}
