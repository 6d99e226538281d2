package grpc

import (
	"context"

	pi "github.com/fjod/go_cart/storefront/internal/paymentintent"
	"google.golang.org/grpc"
)

const (
	paymentIntentServiceName = "payment.PaymentIntentService"
	issueIntentFullMethod    = "/payment.PaymentIntentService/IssueIntent"
	intentStatusFullMethod   = "/payment.PaymentIntentService/IntentStatus"
)

// PaymentIntentServer is the server API for the payment intent service.
type PaymentIntentServer interface {
	IssueIntent(context.Context, *pi.IssueIntentRequest) (*pi.IssueIntentResponse, error)
	IntentStatus(context.Context, *pi.IntentStatusRequest) (*pi.IntentStatusResponse, error)
}

// PaymentIntentServiceDesc describes the service for grpc.Server.RegisterService.
// Messages travel as JSON, see codec.go.
var PaymentIntentServiceDesc = grpc.ServiceDesc{
	ServiceName: paymentIntentServiceName,
	HandlerType: (*PaymentIntentServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "IssueIntent",
			Handler:    issueIntentHandler,
		},
		{
			MethodName: "IntentStatus",
			Handler:    intentStatusHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "payment_intent",
}

func RegisterPaymentIntentServer(s grpc.ServiceRegistrar, srv PaymentIntentServer) {
	s.RegisterService(&PaymentIntentServiceDesc, srv)
}

func issueIntentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pi.IssueIntentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PaymentIntentServer).IssueIntent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: issueIntentFullMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PaymentIntentServer).IssueIntent(ctx, req.(*pi.IssueIntentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func intentStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pi.IntentStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PaymentIntentServer).IntentStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: intentStatusFullMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PaymentIntentServer).IntentStatus(ctx, req.(*pi.IntentStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}
