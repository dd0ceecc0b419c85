package payments

import (
	"context"
	"fmt"
	"time"
)

const DefaultTimeout = 15 * time.Second

// Manager dispatches to the gateway registered for a provider and bounds
// every external call with a timeout.
type Manager struct {
	gateways map[Provider]Gateway
	timeout  time.Duration
}

func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{gateways: make(map[Provider]Gateway), timeout: timeout}
}

func (m *Manager) Register(g Gateway) {
	m.gateways[g.Provider()] = g
}

func (m *Manager) Supports(p Provider) bool {
	_, ok := m.gateways[p]
	return ok
}

func (m *Manager) gateway(p Provider) (Gateway, error) {
	g, ok := m.gateways[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, p)
	}
	return g, nil
}

func (m *Manager) CreatePayableOrder(ctx context.Context, p Provider, order Order) (PayableOrder, error) {
	g, err := m.gateway(p)
	if err != nil {
		return PayableOrder{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	po, err := g.CreatePayableOrder(ctx, order)
	if err != nil {
		return PayableOrder{}, fmt.Errorf("%w: %s create order: %w", ErrProviderUnavailable, p, err)
	}
	po.Provider = p
	return po, nil
}

func (m *Manager) ConfirmOrder(ctx context.Context, p Provider, c Confirmation) (Verification, error) {
	g, err := m.gateway(p)
	if err != nil {
		return Verification{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	v, err := g.ConfirmOrder(ctx, c)
	if err != nil {
		return v, fmt.Errorf("%w: %s confirm order: %w", ErrProviderUnavailable, p, err)
	}
	return v, nil
}

// ResumeOrder hands back the redirect for an order the provider still
// considers open. ok is false when the gateway cannot resume orders.
func (m *Manager) ResumeOrder(p Provider, externalID string, order Order) (PayableOrder, bool) {
	g, err := m.gateway(p)
	if err != nil {
		return PayableOrder{}, false
	}
	r, ok := g.(Resumer)
	if !ok {
		return PayableOrder{}, false
	}
	po, ok := r.ResumeOrder(externalID, order)
	if !ok {
		return PayableOrder{}, false
	}
	po.Provider = p
	return po, true
}
