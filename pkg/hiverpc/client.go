package hiverpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/arlenko/cellhive/pkg/hiveid"
	"github.com/arlenko/cellhive/pkg/txsupervisor"
	"github.com/arlenko/cellhive/pkg/wireframe"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// CellAddressResolver maps a cell id to a dialable address. A real
// deployment would back this with the cluster's own membership
// directory; cmd/cellhived wires a static map read from flags.
type CellAddressResolver interface {
	Address(cellID hiveid.CellId) (string, error)
}

// StaticResolver is a CellAddressResolver backed by a fixed map, for
// small clusters and tests.
type StaticResolver map[hiveid.CellId]string

func (r StaticResolver) Address(cellID hiveid.CellId) (string, error) {
	addr, ok := r[cellID]
	if !ok {
		return "", fmt.Errorf("hiverpc: no address registered for cell %s", cellID)
	}
	return addr, nil
}

// ChannelProvider implements txsupervisor.ParticipantChannelProvider by
// dialing (and caching) a grpc.ClientConn per participant cell.
type ChannelProvider struct {
	resolver CellAddressResolver

	mu      sync.Mutex
	clients map[hiveid.CellId]*Client
}

func NewChannelProvider(resolver CellAddressResolver) *ChannelProvider {
	return &ChannelProvider{resolver: resolver, clients: make(map[hiveid.CellId]*Client)}
}

var (
	_ txsupervisor.ParticipantChannelProvider = (*ChannelProvider)(nil)
	_ txsupervisor.ParticipantClient          = (*Client)(nil)
	_ txsupervisor.TimestampProvider          = (*remoteTimestampProvider)(nil)
)

func (p *ChannelProvider) GetClient(cellID hiveid.CellId) (txsupervisor.ParticipantClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[cellID]; ok {
		return c, nil
	}

	addr, err := p.resolver.Address(cellID)
	if err != nil {
		return nil, err
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("hiverpc: dial cell %s at %s: %w", cellID, addr, err)
	}

	c := &Client{conn: conn}
	p.clients[cellID] = c
	return c, nil
}

// Client is a txsupervisor.ParticipantClient backed by a gRPC channel to
// one remote cell.
type Client struct {
	conn *grpc.ClientConn
}

func (c *Client) invoke(ctx context.Context, method string, req []byte) (wireframe.ResponseFrame, error) {
	var reply rawFrame
	if err := c.conn.Invoke(ctx, method, rawFrame(req), &reply); err != nil {
		if code := status.Code(err); code == codes.Unavailable || code == codes.DeadlineExceeded {
			return wireframe.ResponseFrame{}, txsupervisor.Wrap(txsupervisor.CodeUnavailable, "participant transport failed", err)
		}
		return wireframe.ResponseFrame{}, err
	}
	return wireframe.DecodeResponse(reply)
}

func frameToErr(f wireframe.ResponseFrame) error {
	if f.OK {
		return nil
	}
	return txsupervisor.NewHiveError(txsupervisor.ErrorCode(f.ErrCode), f.ErrMessage)
}

func (c *Client) Prepare(ctx context.Context, txID hiveid.TxId, prepareTimestamp hiveid.Timestamp) error {
	req := wireframe.EncodeParticipantRequest(wireframe.ParticipantRequestFrame{TxId: txID, Timestamp: uint64(prepareTimestamp)})
	f, err := c.invoke(ctx, "/"+ParticipantServiceName+"/Prepare", req)
	if err != nil {
		return err
	}
	return frameToErr(f)
}

func (c *Client) Commit(ctx context.Context, txID hiveid.TxId, commitTimestamp hiveid.Timestamp) error {
	req := wireframe.EncodeParticipantRequest(wireframe.ParticipantRequestFrame{TxId: txID, Timestamp: uint64(commitTimestamp)})
	f, err := c.invoke(ctx, "/"+ParticipantServiceName+"/Commit", req)
	if err != nil {
		return err
	}
	return frameToErr(f)
}

func (c *Client) Abort(ctx context.Context, txID hiveid.TxId) error {
	req := wireframe.EncodeParticipantRequest(wireframe.ParticipantRequestFrame{TxId: txID})
	f, err := c.invoke(ctx, "/"+ParticipantServiceName+"/Abort", req)
	if err != nil {
		return err
	}
	return frameToErr(f)
}

func (c *Client) AvailabilityCheck(ctx context.Context) error {
	f, err := c.invoke(ctx, "/"+ParticipantServiceName+"/AvailabilityCheck", nil)
	if err != nil {
		return err
	}
	return frameToErr(f)
}

func (c *Client) TimestampProvider() txsupervisor.TimestampProvider {
	return (*remoteTimestampProvider)(c)
}

func (c *Client) State() txsupervisor.ParticipantClientState {
	if c.conn.GetState() == connectivity.Shutdown {
		return txsupervisor.ParticipantClientInvalid
	}
	return txsupervisor.ParticipantClientValid
}

// remoteTimestampProvider adapts Client's GenerateTimestamp/LatestTimestamp
// RPCs to the txsupervisor.TimestampProvider interface. It is defined as
// a distinct named type over *Client rather than a method directly on
// Client so TimestampProvider() can return it without Client itself
// satisfying a second, narrower interface by accident.
type remoteTimestampProvider Client

func (r *remoteTimestampProvider) GenerateTimestamp(ctx context.Context) (hiveid.Timestamp, error) {
	c := (*Client)(r)
	var reply rawFrame
	if err := c.conn.Invoke(ctx, "/"+ParticipantServiceName+"/GenerateTimestamp", rawFrame(nil), &reply); err != nil {
		return 0, err
	}
	ts, err := wireframe.DecodeTimestamp(reply)
	return hiveid.Timestamp(ts), err
}

func (r *remoteTimestampProvider) LatestTimestamp() hiveid.Timestamp {
	c := (*Client)(r)
	var reply rawFrame
	if err := c.conn.Invoke(context.Background(), "/"+ParticipantServiceName+"/LatestTimestamp", rawFrame(nil), &reply); err != nil {
		return 0
	}
	ts, _ := wireframe.DecodeTimestamp(reply)
	return hiveid.Timestamp(ts)
}
