// Package gobgp is a thin client for the GoBGP gRPC API.
//
// It exposes only the read-only calls the watcher needs: streaming the peer
// list (with per-peer message statistics) and fetching RIB summaries.
package gobgp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	apipb "github.com/osrg/gobgp/v3/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// DefaultPort is the port GoBGP serves its gRPC API on.
const DefaultPort = 50051

// -------------------------------------------------------------------------
// Client Interface
// -------------------------------------------------------------------------

// Client abstracts the GoBGP gRPC operations used by the watcher.
// This interface enables testing without a running GoBGP instance.
type Client interface {
	// ListPeers returns every configured peer, including its state and
	// message counters.
	ListPeers(ctx context.Context) ([]*apipb.Peer, error)

	// GetTable returns the RIB summary for the given address family.
	GetTable(ctx context.Context, family *apipb.Family) (*apipb.GetTableResponse, error)

	// Close releases the underlying gRPC connection.
	Close() error
}

// IPv4Unicast is the address family used for RIB summaries.
func IPv4Unicast() *apipb.Family {
	return &apipb.Family{Afi: apipb.Family_AFI_IP, Safi: apipb.Family_SAFI_UNICAST}
}

// -------------------------------------------------------------------------
// Sentinel Errors
// -------------------------------------------------------------------------

var (
	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("gobgp client is closed")

	// ErrDialFailed indicates the gRPC dial to GoBGP failed.
	ErrDialFailed = errors.New("gobgp gRPC dial failed")
)

// -------------------------------------------------------------------------
// GRPCClient: production GoBGP gRPC client
// -------------------------------------------------------------------------

// GRPCClient connects to GoBGP's gRPC API and implements the Client interface.
//
// A single connection is created at startup and reused for every call. The
// connection uses insecure credentials because GoBGP's API is normally
// reached on localhost or a lab network.
type GRPCClient struct {
	conn        *grpc.ClientConn
	api         apipb.GobgpApiClient
	callTimeout time.Duration
	logger      *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// GRPCClientConfig holds connection parameters for the GoBGP gRPC client.
type GRPCClientConfig struct {
	// Addr is the GoBGP gRPC listen address (e.g., "127.0.0.1:50051").
	Addr string

	// CallTimeout bounds each RPC. Zero means the caller's context decides.
	CallTimeout time.Duration

	// DialOptions are appended to the default transport options.
	DialOptions []grpc.DialOption
}

// NewGRPCClient creates a GoBGP gRPC client.
//
// grpc.NewClient does not block; connectivity is verified on the first RPC.
func NewGRPCClient(cfg GRPCClientConfig, logger *slog.Logger) (*GRPCClient, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("create gobgp client: %w: empty address", ErrDialFailed)
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, cfg.DialOptions...)

	conn, err := grpc.NewClient(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gobgp client to %s: %w: %w", cfg.Addr, ErrDialFailed, err)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	client := &GRPCClient{
		conn:        conn,
		api:         apipb.NewGobgpApiClient(conn),
		callTimeout: cfg.CallTimeout,
		logger: logger.With(
			slog.String("component", "gobgp.client"),
			slog.String("addr", cfg.Addr),
		),
	}

	client.logger.Debug("gobgp gRPC client created")

	return client, nil
}

func (c *GRPCClient) checkOpen(op string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("%s: %w", op, ErrClientClosed)
	}
	return nil
}

func (c *GRPCClient) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

// ListPeers drains the ListPeer stream and returns every peer it carried.
func (c *GRPCClient) ListPeers(ctx context.Context) ([]*apipb.Peer, error) {
	if err := c.checkOpen("list peers"); err != nil {
		return nil, err
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	stream, err := c.api.ListPeer(ctx, &apipb.ListPeerRequest{})
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}

	var peers []*apipb.Peer
	for {
		rsp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list peers: receive: %w", err)
		}
		if p := rsp.GetPeer(); p != nil {
			peers = append(peers, p)
		}
	}

	c.logger.Debug("listed BGP peers", slog.Int("count", len(peers)))

	return peers, nil
}

// GetTable returns the global RIB summary for family.
func (c *GRPCClient) GetTable(ctx context.Context, family *apipb.Family) (*apipb.GetTableResponse, error) {
	if err := c.checkOpen("get table"); err != nil {
		return nil, err
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	rsp, err := c.api.GetTable(ctx, &apipb.GetTableRequest{
		TableType: apipb.TableType_GLOBAL,
		Family:    family,
	})
	if err != nil {
		return nil, fmt.Errorf("get table: %w", err)
	}

	return rsp, nil
}

// Close releases the underlying gRPC connection. After Close, all methods
// return ErrClientClosed.
func (c *GRPCClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close gobgp client: %w", err)
	}

	c.logger.Debug("gobgp gRPC client closed")

	return nil
}
