package paymentintent

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

type StripeGateway struct {
	api *client.API
}

func NewStripeGateway(secretKey string) *StripeGateway {
	return &StripeGateway{api: client.New(secretKey, nil)}
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, amount int64, currency, idempotencyKey string) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, err
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) GetPaymentIntent(ctx context.Context, intentID string) (*IntentStatusResponse, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, fmt.Errorf("%w: %s", ErrIntentNotFound, intentID)
		}
		return nil, err
	}
	return intentStatus(pi), nil
}

func intentStatus(pi *stripe.PaymentIntent) *IntentStatusResponse {
	resp := &IntentStatusResponse{
		IntentID: pi.ID,
		State:    IntentState(pi.Status),
		Amount:   pi.Amount,
	}
	if e := pi.LastPaymentError; e != nil {
		resp.DeclineCode = string(e.DeclineCode)
		if resp.DeclineCode == "" {
			resp.DeclineCode = string(e.Code)
		}
		resp.DeclineMessage = e.Msg
	}
	if pi.Status == stripe.PaymentIntentStatusCanceled && pi.CancellationReason != "" {
		resp.DeclineCode = string(pi.CancellationReason)
	}
	return resp
}
