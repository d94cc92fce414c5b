package chainrpc

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/animanga/agentchain/chain"
)

// Client is the caller-facing API of a remote source chain. It translates
// between CIDs and the wire encoding and maps gRPC status codes back onto
// the module's error taxonomy.
type Client struct {
	cc     *grpc.ClientConn
	client SourceChainClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewSourceChainClient(cc)}, nil
}

// NewClient wraps an existing connection, e.g. a bufconn in tests.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewSourceChainClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Commit(ctx context.Context, entryType string, content []byte, additional []chain.Provenance) (cid.Cid, error) {
	req, err := chain.Encode(CommitRequest{
		EntryType:             entryType,
		Content:               content,
		AdditionalProvenances: additional,
	})
	if err != nil {
		return cid.Undef, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.Commit(ctx, wrapperspb.Bytes(req))
	if err != nil {
		return cid.Undef, mapRPC(err)
	}
	return decodeReplyCID(reply.GetValue())
}

func (c *Client) AddLink(ctx context.Context, base, target cid.Cid, tag string) (cid.Cid, error) {
	req, err := chain.Encode(AddLinkRequest{Base: base.String(), Target: target.String(), Tag: tag})
	if err != nil {
		return cid.Undef, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.AddLink(ctx, wrapperspb.Bytes(req))
	if err != nil {
		return cid.Undef, mapRPC(err)
	}
	return decodeReplyCID(reply.GetValue())
}

func (c *Client) RemoveLink(ctx context.Context, linkAdd cid.Cid) (cid.Cid, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.RemoveLink(ctx, wrapperspb.String(linkAdd.String()))
	if err != nil {
		return cid.Undef, mapRPC(err)
	}
	return decodeReplyCID(reply.GetValue())
}

func (c *Client) RemoveEntry(ctx context.Context, ref cid.Cid) (cid.Cid, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.RemoveEntry(ctx, wrapperspb.String(ref.String()))
	if err != nil {
		return cid.Undef, mapRPC(err)
	}
	return decodeReplyCID(reply.GetValue())
}

func (c *Client) GetLinks(ctx context.Context, base cid.Cid, tag string) ([]LinkRecord, error) {
	req, err := chain.Encode(GetLinksRequest{Base: base.String(), Tag: tag})
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.GetLinks(ctx, wrapperspb.Bytes(req))
	if err != nil {
		return nil, mapRPC(err)
	}
	var resp GetLinksResponse
	if err := chain.Decode(reply.GetValue(), &resp); err != nil {
		return nil, err
	}
	return resp.Links, nil
}

func (c *Client) GetEntry(ctx context.Context, ref cid.Cid) (chain.Entry, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.GetEntry(ctx, wrapperspb.String(ref.String()))
	if err != nil {
		return chain.Entry{}, mapRPC(err)
	}
	var resp EntryResponse
	if err := chain.Decode(reply.GetValue(), &resp); err != nil {
		return chain.Entry{}, err
	}
	return chain.Entry{Type: resp.Type, Content: resp.Content}, nil
}

// Walk returns up to limit headers newest-first; limit <= 0 means all.
func (c *Client) Walk(ctx context.Context, limit int64) ([]HeaderRecord, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.Walk(ctx, wrapperspb.Int64(limit))
	if err != nil {
		return nil, mapRPC(err)
	}
	var resp WalkResponse
	if err := chain.Decode(reply.GetValue(), &resp); err != nil {
		return nil, err
	}
	return resp.Headers, nil
}

func (c *Client) Provenances(ctx context.Context, header cid.Cid) ([]chain.Provenance, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.Provenances(ctx, wrapperspb.String(header.String()))
	if err != nil {
		return nil, mapRPC(err)
	}
	var resp ProvenancesResponse
	if err := chain.Decode(reply.GetValue(), &resp); err != nil {
		return nil, err
	}
	return resp.Provenances, nil
}

// Verify asks the server to replay and check its chain. agent may be empty
// to mean the server's own chain.
func (c *Client) Verify(ctx context.Context, agent string) error {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	_, err := c.client.Verify(ctx, wrapperspb.String(agent))
	return mapRPC(err)
}

func (c *Client) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.Timeout)
}

func decodeReplyCID(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil || !id.Defined() {
		return cid.Undef, chain.NewError(chain.KindSerialization, "CHAIN-RPC-001", "invalid header hash in reply")
	}
	return id, nil
}

// mapRPC folds gRPC status codes back onto the module's error taxonomy, so
// remote callers can branch on kinds the same way local ones do.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return chain.WrapError(chain.KindInternal, "CHAIN-RPC-002", "rpc transport failure", err)
	}
	switch st.Code() {
	case codes.InvalidArgument:
		return chain.WrapError(chain.KindValidation, "CHAIN-RPC-003", st.Message(), err)
	case codes.NotFound:
		return chain.WrapError(chain.KindUnknownReference, "CHAIN-RPC-004", st.Message(), err)
	case codes.Aborted:
		return chain.WrapError(chain.KindConcurrentModification, "CHAIN-RPC-005", st.Message(), err)
	case codes.FailedPrecondition:
		return chain.WrapError(chain.KindChainIntegrity, "CHAIN-RPC-006", st.Message(), err)
	case codes.PermissionDenied:
		return chain.WrapError(chain.KindCrypto, "CHAIN-RPC-007", st.Message(), err)
	default:
		return chain.WrapError(chain.KindInternal, "CHAIN-RPC-008", st.Message(), err)
	}
}
