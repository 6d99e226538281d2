package grpc

import (
	"context"
	"errors"

	pi "github.com/fjod/go_cart/storefront/internal/paymentintent"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type PaymentIntentServiceServer struct {
	issuer PaymentIntentServer
}

func NewPaymentIntentServiceServer(issuer PaymentIntentServer) *PaymentIntentServiceServer {
	return &PaymentIntentServiceServer{
		issuer: issuer,
	}
}

func (h *PaymentIntentServiceServer) IssueIntent(
	ctx context.Context,
	req *pi.IssueIntentRequest) (*pi.IssueIntentResponse, error) {

	resp, err := h.issuer.IssueIntent(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

func (h *PaymentIntentServiceServer) IntentStatus(
	ctx context.Context,
	req *pi.IntentStatusRequest) (*pi.IntentStatusResponse, error) {

	resp, err := h.issuer.IntentStatus(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, pi.ErrInvalidRole):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, pi.ErrInvalidAmount):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, pi.ErrIntentNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, pi.ErrGatewayUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Errorf(codes.Internal, "payment intent call failed: %v", err)
	}
}
