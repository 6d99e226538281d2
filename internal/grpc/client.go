package grpc

import (
	"context"
	"fmt"

	pi "github.com/fjod/go_cart/storefront/internal/paymentintent"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// PaymentIntentClient calls a remote payment intent service and maps its
// status codes back onto the issuer's error values.
type PaymentIntentClient struct {
	cc grpc.ClientConnInterface
}

func NewPaymentIntentClient(cc grpc.ClientConnInterface) *PaymentIntentClient {
	return &PaymentIntentClient{cc: cc}
}

func (c *PaymentIntentClient) IssueIntent(ctx context.Context, req *pi.IssueIntentRequest) (*pi.IssueIntentResponse, error) {
	out := new(pi.IssueIntentResponse)
	err := c.cc.Invoke(ctx, issueIntentFullMethod, req, out, grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, fromStatus(err)
	}
	return out, nil
}

func (c *PaymentIntentClient) IntentStatus(ctx context.Context, req *pi.IntentStatusRequest) (*pi.IntentStatusResponse, error) {
	out := new(pi.IntentStatusResponse)
	err := c.cc.Invoke(ctx, intentStatusFullMethod, req, out, grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, fromStatus(err)
	}
	return out, nil
}

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", pi.ErrGatewayUnavailable, err)
	}
	switch st.Code() {
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", pi.ErrInvalidRole, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", pi.ErrInvalidAmount, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", pi.ErrIntentNotFound, st.Message())
	default:
		// Unavailable, DeadlineExceeded and anything unexpected mean the gateway gave no answer.
		return fmt.Errorf("%w: %s: %s", pi.ErrGatewayUnavailable, st.Code(), st.Message())
	}
}
