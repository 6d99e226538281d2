package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fjod/go_cart/storefront/domain"
)

// validate normalizes the shipping fields in place and returns the amount in minor units.
func (s *CheckoutServiceImpl) validate(request *domain.CheckoutRequest) (int64, error) {
	sh := &request.Shipping
	sh.RecipientName = strings.TrimSpace(sh.RecipientName)
	sh.PhoneNumber = strings.TrimSpace(sh.PhoneNumber)
	sh.Country = strings.TrimSpace(sh.Country)
	sh.City = strings.TrimSpace(sh.City)
	sh.StreetAddress = strings.TrimSpace(sh.StreetAddress)

	var fields []FieldError
	if sh.RecipientName == "" {
		fields = append(fields, FieldError{Field: "recipient_name", Message: "is required"})
	}
	if sh.PhoneNumber == "" {
		fields = append(fields, FieldError{Field: "phone_number", Message: "is required"})
	}

	switch n := utf8.RuneCountInString(sh.StreetAddress); {
	case n < s.addressMin:
		fields = append(fields, FieldError{Field: "street_address", Message: fmt.Sprintf("is too short, minimum %d characters", s.addressMin)})
	case n > s.addressMax:
		fields = append(fields, FieldError{Field: "street_address", Message: fmt.Sprintf("is too long, maximum %d characters", s.addressMax)})
	}

	amount, err := domain.ToMinorUnits(request.Total)
	if err != nil {
		fields = append(fields, FieldError{Field: "total", Message: err.Error()})
	}

	if len(fields) > 0 {
		return 0, &ValidationError{Fields: fields}
	}
	return amount, nil
}
