package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyCart           = errors.New("cart is empty, nothing to checkout")
	IllegalTransitionError = errors.New("illegal transition of checkout status")
	ErrValidation          = errors.New("checkout form is invalid")
	ErrPaymentSetup        = errors.New("payment could not be set up, try again")
	ErrPaymentDeclined     = errors.New("payment declined")
	ErrPaymentPending      = errors.New("payment is not settled yet, confirm again later")
	ErrPaymentUnverified   = errors.New("payment status could not be verified, try again")
	ErrMaterialization     = errors.New("payment captured but the order could not be recorded")
	ErrAttemptNotFound     = errors.New("checkout attempt not found")
	ErrNotReconcilable     = errors.New("checkout attempt cannot be reconciled")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every form field that failed its check.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return fmt.Sprintf("%v: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// DeclineError carries the gateway's machine code and human message unchanged.
type DeclineError struct {
	Code    string
	Message string
}

func (e *DeclineError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%v: %s", ErrPaymentDeclined, e.Message)
	}
	return fmt.Sprintf("%v (%s): %s", ErrPaymentDeclined, e.Code, e.Message)
}

func (e *DeclineError) Is(target error) bool {
	return target == ErrPaymentDeclined
}
