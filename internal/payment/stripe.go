package payment

import (
	"context"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeProvider implements Provider on top of the Stripe API client.
type StripeProvider struct {
	api *client.API
}

func NewStripeProvider(secretKey string) *StripeProvider {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProvider{api: api}
}

var _ Provider = (*StripeProvider)(nil)

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, cp CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(cp.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		AllowPromotionCodes: stripe.Bool(true),
		// client_reference_id ties the session to the user; metadata makes
		// later subscription webhooks resolvable without a side lookup.
		ClientReferenceID: stripe.String(cp.UserID),
		SuccessURL:        stripe.String(cp.SuccessURL),
		CancelURL:         stripe.String(cp.CancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"userId": cp.UserID},
		},
	}

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProvider) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	sub, err := p.api.Subscriptions.Get(id, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, err
	}
	return fromStripeSubscription(sub), nil
}

func (p *StripeProvider) SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (*Subscription, error) {
	sub, err := p.api.Subscriptions.Update(id, &stripe.SubscriptionParams{
		Params:            stripe.Params{Context: ctx},
		CancelAtPeriodEnd: stripe.Bool(cancel),
	})
	if err != nil {
		return nil, err
	}
	return fromStripeSubscription(sub), nil
}

func (p *StripeProvider) SwapItemPrice(ctx context.Context, subscriptionID, itemID, priceID string) (*Subscription, error) {
	sub, err := p.api.Subscriptions.Update(subscriptionID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(itemID),
				Price: stripe.String(priceID),
			},
		},
		ProrationBehavior: stripe.String("always_invoice"),
	})
	if err != nil {
		return nil, err
	}
	return fromStripeSubscription(sub), nil
}

func fromStripeSubscription(sub *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                sub.ID,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		out.ItemID = sub.Items.Data[0].ID
		if sub.Items.Data[0].Price != nil {
			out.PriceID = sub.Items.Data[0].Price.ID
		}
	}
	return out
}
