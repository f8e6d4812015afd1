// Package auth provides a gRPC unary interceptor, an HTTP middleware and
// JWT token validation to secure the mutating CRM operations.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ConvertLeadMethod is the full gRPC name of the lead conversion call.
const ConvertLeadMethod = "/crm.v1.LeadService/ConvertLead"

type userKey struct{}

// WithUser returns ctx carrying the authenticated user id.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the subject of the validated token, if any.
func UserFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(userKey{}).(string)
	return user, ok && user != ""
}

// Interceptor authenticates calls to the gRPC methods that change state.
type Interceptor struct {
	secret    string
	protected map[string]struct{}
}

// NewAuthInterceptor guards lead conversion plus any extra methods.
func NewAuthInterceptor(jwtSecret string, extraMethods ...string) *Interceptor {
	protected := map[string]struct{}{ConvertLeadMethod: {}}
	for _, m := range extraMethods {
		protected[m] = struct{}{}
	}
	return &Interceptor{secret: jwtSecret, protected: protected}
}

// Unary rejects protected calls without a valid Bearer token and passes the
// token subject on to the handler.
func (i *Interceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if _, ok := i.protected[info.FullMethod]; !ok {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "metadata missing")
		}
		token, err := extractTokenFromMetadata(md)
		if err != nil {
			return nil, err
		}
		user, err := validateToken(token, i.secret)
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
		}
		return handler(WithUser(ctx, user), req)
	}
}

func extractTokenFromMetadata(md metadata.MD) (string, error) {
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", status.Error(codes.Unauthenticated, "authorization header missing")
	}
	token, err := bearerToken(values[0])
	if err != nil {
		return "", status.Error(codes.Unauthenticated, err.Error())
	}
	return token, nil
}

func bearerToken(header string) (string, error) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", errors.New("invalid authorization format: missing Bearer prefix")
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", errors.New("invalid authorization format: empty token")
	}
	return token, nil
}

// validateToken verifies an HMAC-signed token and returns its subject.
func validateToken(token, secret string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}
