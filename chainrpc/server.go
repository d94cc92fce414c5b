package chainrpc

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/animanga/agentchain/chain"
	"github.com/animanga/agentchain/linkgraph"
	"github.com/animanga/agentchain/provenance"
	"github.com/animanga/agentchain/sourcechain"
)

// Server exposes one agent's source chain over the SourceChain gRPC
// service.
type Server struct {
	UnimplementedSourceChainServer

	Pipeline *sourcechain.Pipeline
	Links    *linkgraph.Engine
	Ledger   *provenance.Ledger

	// Log defaults to slog.Default when nil.
	Log *slog.Logger
}

func (s *Server) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

func (s *Server) ready() error {
	if s == nil || s.Pipeline == nil || s.Links == nil {
		return status.Error(codes.FailedPrecondition, "missing source chain")
	}
	return nil
}

func (s *Server) Commit(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	reqID := uuid.NewString()
	var req CommitRequest
	if err := chain.Decode(in.GetValue(), &req); err != nil {
		return nil, mapErr(err)
	}
	entry := chain.Entry{Type: req.EntryType, Content: req.Content}
	id, err := s.Pipeline.Commit(ctx, entry, sourcechain.CommitOptions{
		AdditionalProvenances: req.AdditionalProvenances,
	})
	if err != nil {
		s.log().Error("commit failed", "request_id", reqID, "entry_type", req.EntryType, "rule", chain.RuleID(err), "err", err)
		return nil, mapErr(err)
	}
	s.log().Info("committed entry", "request_id", reqID, "entry_type", req.EntryType, "header", id.String())
	return wrapperspb.String(id.String()), nil
}

func (s *Server) AddLink(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	reqID := uuid.NewString()
	var req AddLinkRequest
	if err := chain.Decode(in.GetValue(), &req); err != nil {
		return nil, mapErr(err)
	}
	base, err := decodeCID(req.Base)
	if err != nil {
		return nil, err
	}
	target, err := decodeCID(req.Target)
	if err != nil {
		return nil, err
	}
	id, err := s.Links.AddLink(ctx, base, target, req.Tag, sourcechain.CommitOptions{})
	if err != nil {
		s.log().Error("add-link failed", "request_id", reqID, "rule", chain.RuleID(err), "err", err)
		return nil, mapErr(err)
	}
	s.log().Info("added link", "request_id", reqID, "base", req.Base, "tag", req.Tag, "header", id.String())
	return wrapperspb.String(id.String()), nil
}

func (s *Server) RemoveLink(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	reqID := uuid.NewString()
	target, err := decodeCID(in.GetValue())
	if err != nil {
		return nil, err
	}
	id, err := s.Links.RemoveLink(ctx, target, sourcechain.CommitOptions{})
	if err != nil {
		s.log().Error("remove-link failed", "request_id", reqID, "target", in.GetValue(), "rule", chain.RuleID(err), "err", err)
		return nil, mapErr(err)
	}
	s.log().Info("removed link", "request_id", reqID, "target", in.GetValue(), "header", id.String())
	return wrapperspb.String(id.String()), nil
}

func (s *Server) RemoveEntry(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	reqID := uuid.NewString()
	target, err := decodeCID(in.GetValue())
	if err != nil {
		return nil, err
	}
	id, err := s.Links.RemoveEntry(ctx, target, sourcechain.CommitOptions{})
	if err != nil {
		s.log().Error("remove-entry failed", "request_id", reqID, "target", in.GetValue(), "rule", chain.RuleID(err), "err", err)
		return nil, mapErr(err)
	}
	s.log().Info("removed entry", "request_id", reqID, "target", in.GetValue(), "header", id.String())
	return wrapperspb.String(id.String()), nil
}

func (s *Server) GetLinks(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var req GetLinksRequest
	if err := chain.Decode(in.GetValue(), &req); err != nil {
		return nil, mapErr(err)
	}
	base, err := decodeCID(req.Base)
	if err != nil {
		return nil, err
	}
	links, err := s.Links.LiveLinks(base, req.Tag)
	if err != nil {
		return nil, mapErr(err)
	}
	resp := GetLinksResponse{Links: make([]LinkRecord, 0, len(links))}
	for _, l := range links {
		resp.Links = append(resp.Links, LinkRecord{
			Target: l.Target.String(),
			Tag:    l.Tag,
			Header: l.Header.String(),
		})
	}
	return encodeResponse(resp)
}

func (s *Server) GetEntry(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ref, err := decodeCID(in.GetValue())
	if err != nil {
		return nil, err
	}
	e, err := s.Links.LookupEntry(ref)
	if err != nil {
		return nil, mapErr(err)
	}
	return encodeResponse(EntryResponse{Type: e.Type, Content: e.Content})
}

func (s *Server) Walk(ctx context.Context, in *wrapperspb.Int64Value) (*wrapperspb.BytesValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	limit := in.GetValue()
	w, err := s.Pipeline.Chain().Walk()
	if err != nil {
		return nil, mapErr(err)
	}
	resp := WalkResponse{Headers: []HeaderRecord{}}
	for limit <= 0 || int64(len(resp.Headers)) < limit {
		h, id, ok, err := w.Next()
		if err != nil {
			return nil, mapErr(err)
		}
		if !ok {
			break
		}
		resp.Headers = append(resp.Headers, HeaderRecord{Hash: id.String(), Header: h})
	}
	return encodeResponse(resp)
}

func (s *Server) Provenances(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if s.Ledger == nil {
		return nil, status.Error(codes.FailedPrecondition, "no provenance ledger")
	}
	id, err := decodeCID(in.GetValue())
	if err != nil {
		return nil, err
	}
	return encodeResponse(ProvenancesResponse{Provenances: s.Ledger.ProvenancesFor(id)})
}

func (s *Server) Verify(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if agent := in.GetValue(); agent != "" && agent != s.Pipeline.Chain().Agent() {
		return nil, status.Error(codes.NotFound, "chain not served here: "+agent)
	}
	if err := s.Pipeline.Chain().Verify(); err != nil {
		s.log().Error("chain verification failed", "rule", chain.RuleID(err), "err", err)
		return nil, mapErr(err)
	}
	return wrapperspb.Bool(true), nil
}

func decodeCID(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil || !id.Defined() {
		return cid.Undef, status.Error(codes.InvalidArgument, "invalid hash: "+s)
	}
	return id, nil
}

func encodeResponse(v interface{}) (*wrapperspb.BytesValue, error) {
	b, err := chain.Encode(v)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bytes(b), nil
}

// mapErr translates the module's error taxonomy onto gRPC status codes. The
// rule identifier rides in the status message so clients can match on it.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var code codes.Code
	switch {
	case chain.IsKind(err, chain.KindValidation), chain.IsKind(err, chain.KindSerialization):
		code = codes.InvalidArgument
	case chain.IsKind(err, chain.KindUnknownReference):
		code = codes.NotFound
	case chain.IsKind(err, chain.KindConcurrentModification):
		code = codes.Aborted
	case chain.IsKind(err, chain.KindChainIntegrity):
		code = codes.FailedPrecondition
	case chain.IsKind(err, chain.KindCrypto):
		code = codes.PermissionDenied
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
