package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"stkpay/internal/domain/payment"

	"github.com/rs/zerolog/log"
)

// Registry holds the gateways a binary was built with
type Registry struct {
	gateways map[Driver]Gateway
	mu       sync.RWMutex
}

// NewRegistry creates an empty gateway registry
func NewRegistry() *Registry {
	return &Registry{
		gateways: make(map[Driver]Gateway),
	}
}

// Register adds or replaces the gateway for a driver
func (r *Registry) Register(driver Driver, gw Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gateways[driver] = gw
	log.Info().
		Str("driver", string(driver)).
		Str("name", nameOf(gw)).
		Msg("registered payment gateway")
}

// Get returns the gateway registered for driver
func (r *Registry) Get(driver Driver) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	gw, ok := r.gateways[driver]
	if !ok {
		return nil, &GatewayError{
			Code:    ErrDriverNotFound,
			Message: fmt.Sprintf("gateway %s not registered", driver),
		}
	}
	return gw, nil
}

// Drivers lists registered drivers in a stable order
func (r *Registry) Drivers() []Driver {
	r.mu.RLock()
	defer r.mu.RUnlock()

	drivers := make([]Driver, 0, len(r.gateways))
	for d := range r.gateways {
		drivers = append(drivers, d)
	}
	sort.Slice(drivers, func(i, j int) bool { return drivers[i] < drivers[j] })
	return drivers
}

// Bind returns a Gateway that always dispatches to driver. Lookup happens on
// every call so a re-registered driver takes effect immediately.
func (r *Registry) Bind(driver Driver) Gateway {
	return &boundGateway{registry: r, driver: driver}
}

type boundGateway struct {
	registry *Registry
	driver   Driver
}

func (b *boundGateway) Name() string { return string(b.driver) }

func (b *boundGateway) StartPayment(ctx context.Context, req payment.Request) (*payment.Initiation, error) {
	gw, err := b.registry.Get(b.driver)
	if err != nil {
		return nil, err
	}
	return gw.StartPayment(ctx, req)
}

func (b *boundGateway) CheckStatus(ctx context.Context, transactionID string) (*StatusResult, error) {
	gw, err := b.registry.Get(b.driver)
	if err != nil {
		return nil, err
	}
	return gw.CheckStatus(ctx, transactionID)
}

func nameOf(gw Gateway) string {
	if n, ok := gw.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", gw)
}
