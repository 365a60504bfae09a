package checkout

import (
	"fmt"

	"stkpay/internal/domain/payment"

	"github.com/anggasct/fluo"
)

// Action is something the customer can do on a wizard page.
type Action string

const (
	ActionSubmit    Action = "submit"
	ActionRetry     Action = "retry"
	ActionDone      Action = "done"
	ActionStartOver Action = "start_over"
)

var (
	pageForm    = string(payment.StepForm)
	pageStatus  = string(payment.StepStatus)
	pageReceipt = string(payment.StepReceipt)
)

// wizard is the page flow. Events carry the payment status as their data so
// guards can decide on it. Submit is accepted from any page: a new attempt
// replaces whatever was on screen.
var wizard = newWizard()

func newWizard() fluo.MachineDefinition {
	b := fluo.NewMachine()

	b.State(pageForm).Initial().
		To(pageStatus).On(string(ActionSubmit)).
		To(pageForm).On(string(ActionStartOver))

	b.State(pageStatus).
		To(pageStatus).On(string(ActionSubmit)).
		To(pageForm).On(string(ActionRetry)).When(retriable).
		To(pageReceipt).On(string(ActionDone)).When(succeeded).
		To(pageForm).On(string(ActionStartOver))

	b.State(pageReceipt).
		To(pageStatus).On(string(ActionSubmit)).
		To(pageForm).On(string(ActionStartOver))

	return b.Build()
}

func eventStatus(ctx fluo.Context) payment.Status {
	s, _ := ctx.GetEventData().(payment.Status)
	return s
}

func retriable(ctx fluo.Context) bool { return eventStatus(ctx).Retriable() }

func succeeded(ctx fluo.Context) bool { return eventStatus(ctx) == payment.StatusSuccess }

// newFlow starts a wizard instance on the given page.
func newFlow(step payment.Step) fluo.Machine {
	m := wizard.CreateInstance()
	if err := m.Start(); err != nil {
		panic(fmt.Sprintf("checkout: start wizard: %v", err))
	}
	if step != payment.StepForm {
		if err := m.SetState(string(step)); err != nil {
			panic(fmt.Sprintf("checkout: wizard has no %s page: %v", step, err))
		}
	}
	return m
}

// CanApply reports whether the wizard would accept action on step with
// status. It runs the event against a scratch instance.
func CanApply(action Action, step payment.Step, st payment.Status) bool {
	return newFlow(step).HandleEvent(string(action), st).Processed
}

// fire moves m by action, or returns an *ActionError when no transition
// accepts it.
func fire(m fluo.Machine, action Action, st payment.Status) error {
	res := m.HandleEvent(string(action), st)
	if !res.Processed {
		return &ActionError{Action: action, Step: payment.Step(res.PreviousState), Status: st}
	}
	return nil
}

// ActionError is returned for an action the current page does not offer.
type ActionError struct {
	Action Action
	Step   payment.Step
	Status payment.Status
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("cannot %s on %s page with status %s", e.Action, e.Step, e.Status)
}
