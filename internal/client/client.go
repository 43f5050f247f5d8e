package client

import (
	"context"
	"crypto/tls"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/manifest-network/txpipe/internal/reflection"
)

// GRPCClient bundles a connection, the context calls run under and the
// reflection resolver for that connection.
type GRPCClient struct {
	Conn     *grpc.ClientConn
	Ctx      context.Context
	Resolver *reflection.CustomResolver
}

// NewGRPCClient dials address. TLS is used unless insecureConn is set.
func NewGRPCClient(ctx context.Context, address string, insecureConn bool) (*GRPCClient, error) {
	var creds credentials.TransportCredentials
	if insecureConn {
		creds = insecure.NewCredentials()
	} else {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gRPC server %s: %w", address, err)
	}

	return FromConn(ctx, conn), nil
}

// FromConn wraps an existing connection.
func FromConn(ctx context.Context, conn *grpc.ClientConn) *GRPCClient {
	return &GRPCClient{
		Conn:     conn,
		Ctx:      ctx,
		Resolver: reflection.NewCustomResolver(conn),
	}
}

// WithContext returns a client sharing the connection and resolver but
// running calls under ctx.
func (c *GRPCClient) WithContext(ctx context.Context) *GRPCClient {
	return &GRPCClient{Conn: c.Conn, Ctx: ctx, Resolver: c.Resolver}
}

func (c *GRPCClient) Close() error {
	return c.Conn.Close()
}
