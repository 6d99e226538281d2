package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShippingDetails are the order fields captured by the address form.
type ShippingDetails struct {
	RecipientName string `json:"recipient_name"`
	PhoneNumber   string `json:"phone_number"`
	Country       string `json:"country"`
	City          string `json:"city"`
	StreetAddress string `json:"street_address"`
}

type CheckoutRequest struct {
	OwnerID        string
	IdempotencyKey string
	Shipping       ShippingDetails
	// Total is the order total in major currency units, as shown on the order summary.
	Total decimal.Decimal
}

// ConfirmationOutcome is the signal returned by the client-side payment confirmation surface.
type ConfirmationOutcome string

const (
	ConfirmationSucceeded ConfirmationOutcome = "succeeded"
	ConfirmationDeclined  ConfirmationOutcome = "declined"
	ConfirmationCancelled ConfirmationOutcome = "cancelled"
)

type ConfirmationResult struct {
	Outcome ConfirmationOutcome
	Code    string
	Message string
}

func (r ConfirmationResult) Succeeded() bool {
	return r.Outcome == ConfirmationSucceeded
}

// CheckoutAttempt is one run of the checkout state machine for an owner.
type CheckoutAttempt struct {
	ID             string
	OwnerID        string
	IdempotencyKey string
	Status         CheckoutStatus
	FailureReason  FailureReason
	FailureCode    string
	FailureMessage string
	AmountMinor    int64
	Currency       string

	// PaymentIntentID identifies the intent at the gateway. ClientSecret is only handed to the owner.
	PaymentIntentID string
	ClientSecret    string
	Shipping        ShippingDetails
	OrderID         *string
	ReconcileCount  int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
