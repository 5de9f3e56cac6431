package auth

import (
	"context"

	"github.com/gartstein/fleet/internal/fleet/authz"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Interceptor authenticates gRPC calls except for public methods.
type Interceptor struct {
	authenticator *Authenticator
	publicMethods map[string]bool
}

// NewAuthInterceptor creates an Interceptor. Methods listed in public are
// served without credentials.
func NewAuthInterceptor(authenticator *Authenticator, public ...string) *Interceptor {
	publicMethods := make(map[string]bool, len(public))
	for _, m := range public {
		publicMethods[m] = true
	}
	return &Interceptor{authenticator: authenticator, publicMethods: publicMethods}
}

// Unary returns a gRPC unary interceptor for token validation.
func (i *Interceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if i.publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "metadata missing")
		}

		tokenString, err := extractTokenFromMetadata(md)
		if err != nil {
			return nil, err
		}

		principal, err := i.authenticator.Authenticate(ctx, tokenString)
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
		}

		return handler(authz.WithPrincipal(ctx, principal), req)
	}
}

// extractTokenFromMetadata retrieves the token from gRPC metadata.
func extractTokenFromMetadata(md metadata.MD) (string, error) {
	authHeaders := md.Get("authorization")
	if len(authHeaders) == 0 {
		return "", status.Error(codes.Unauthenticated, "authorization header missing")
	}

	token, err := ExtractToken(authHeaders[0])
	if err != nil {
		return "", status.Error(codes.Unauthenticated, err.Error())
	}
	return token, nil
}
