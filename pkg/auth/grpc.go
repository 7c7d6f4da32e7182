package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
)

// OperationFunc maps a full gRPC method name such as
// "/pharmacy.v1.Medicines/List" to a policy operation name.
type OperationFunc func(fullMethod string) string

// MethodName uses the full gRPC method name as the operation name.
func MethodName(fullMethod string) string { return fullMethod }

// UnaryServerInterceptor returns a gRPC unary server interceptor that
// runs the same checks as [Gate.Require] using the "authorization"
// metadata value. If operationFor is nil, [MethodName] is used.
//
// Outcomes map to gRPC codes as follows: missing or invalid token to
// Unauthenticated, missing role to PermissionDenied, unreachable key set
// to Unavailable, unknown operation to Internal.
func UnaryServerInterceptor(authn Authenticator, policy Policy, operationFor OperationFunc) grpc.UnaryServerInterceptor {
	gate := NewGate(authn, policy, "grpc")
	if operationFor == nil {
		operationFor = MethodName
	}
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := admitGRPC(ctx, gate, operationFor(info.FullMethod))
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart of
// [UnaryServerInterceptor].
func StreamServerInterceptor(authn Authenticator, policy Policy, operationFor OperationFunc) grpc.StreamServerInterceptor {
	gate := NewGate(authn, policy, "grpc")
	if operationFor == nil {
		operationFor = MethodName
	}
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := admitGRPC(ss.Context(), gate, operationFor(info.FullMethod))
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// UnaryClientInterceptor returns a gRPC unary client interceptor that
// forwards the caller's bearer token from the context, along with
// serviceName as the caller service.
func UnaryClientInterceptor(serviceName string) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		return invoker(forwardToGRPC(ctx, serviceName), method, req, reply, cc, opts...)
	}
}

func admitGRPC(ctx context.Context, gate *Gate, operation string) (context.Context, error) {
	var authHeader string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(HeaderAuthorization); len(values) > 0 {
			authHeader = values[0]
		}
	}

	c, token, err := gate.Check(ctx, operation, authHeader)
	if err != nil {
		return ctx, grpcStatus(err)
	}

	ctx = ContextWithClaims(ctx, c)
	ctx = ContextWithToken(ctx, token)
	return contextWithOperation(ctx, operation), nil
}

func grpcStatus(err *sserr.Error) error {
	switch {
	case sserr.IsAuthentication(err):
		return status.Error(codes.Unauthenticated, err.Wire())
	case sserr.IsAuthorization(err):
		reason, _ := err.Details["reason"].(string)
		return status.Error(codes.PermissionDenied, reason)
	case sserr.IsUpstream(err):
		return status.Error(codes.Unavailable, err.Wire())
	default:
		return status.Error(codes.Internal, err.Wire())
	}
}

func forwardToGRPC(ctx context.Context, serviceName string) context.Context {
	pairs := []string{HeaderCallerService, serviceName}
	if token, ok := TokenFromContext(ctx); ok {
		pairs = append(pairs, HeaderAuthorization, BearerValue(token))
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...)
}

// wrappedServerStream overrides Context so handlers see the admitted
// caller.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
