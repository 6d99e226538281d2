package paymentintent

import "errors"

var (
	ErrInvalidRole        = errors.New("request is not a mutation")
	ErrInvalidAmount      = errors.New("amount must be a positive integer in minor units")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrIntentNotFound     = errors.New("payment intent not found")
)
