package payment

import "context"

type CheckoutParams struct {
	PriceID    string
	UserID     string // becomes client_reference_id and subscription metadata
	SuccessURL string
	CancelURL  string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// Subscription is the provider-side view the reconciliation engine mirrors
// into local user configs. ItemID/PriceID describe the first line item.
type Subscription struct {
	ID                string
	ItemID            string
	PriceID           string
	CurrentPeriodEnd  int64
	CancelAtPeriodEnd bool
}

// Provider is the payment backend. The reconciliation engine only mutates
// local state from Subscription values the provider returned, never from its
// own assumptions.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (*Subscription, error)
	// SwapItemPrice moves the subscription item to a new price with an
	// immediate proration invoice.
	SwapItemPrice(ctx context.Context, subscriptionID, itemID, priceID string) (*Subscription, error)
}
