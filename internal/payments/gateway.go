package payments

import "context"

// Gateway is implemented once per external payment provider.
type Gateway interface {
	Provider() Provider
	CreatePayableOrder(ctx context.Context, order Order) (PayableOrder, error)
	ConfirmOrder(ctx context.Context, c Confirmation) (Verification, error)
}

// Resumer is implemented by gateways whose open orders can be paid again
// through a rebuilt redirect instead of a new order.
type Resumer interface {
	ResumeOrder(externalID string, order Order) (PayableOrder, bool)
}
