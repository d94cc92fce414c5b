package chainrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// SourceChainServer is the server API for the SourceChain gRPC service.
//
// We intentionally use protobuf well-known wrapper types so this package does
// not require a protoc/codegen toolchain. Structured payloads travel as
// canonical CBOR inside BytesValue; single hashes travel as StringValue.
//
// Proto definition: sourcechain.proto.
type SourceChainServer interface {
	Commit(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	AddLink(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	RemoveLink(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	RemoveEntry(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	GetLinks(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	GetEntry(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	Walk(context.Context, *wrapperspb.Int64Value) (*wrapperspb.BytesValue, error)
	Provenances(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	Verify(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
}

// UnimplementedSourceChainServer can be embedded to have forward compatible
// implementations.
type UnimplementedSourceChainServer struct{}

func (UnimplementedSourceChainServer) Commit(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Commit not implemented")
}
func (UnimplementedSourceChainServer) AddLink(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method AddLink not implemented")
}
func (UnimplementedSourceChainServer) RemoveLink(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method RemoveLink not implemented")
}
func (UnimplementedSourceChainServer) RemoveEntry(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method RemoveEntry not implemented")
}
func (UnimplementedSourceChainServer) GetLinks(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetLinks not implemented")
}
func (UnimplementedSourceChainServer) GetEntry(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetEntry not implemented")
}
func (UnimplementedSourceChainServer) Walk(context.Context, *wrapperspb.Int64Value) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Walk not implemented")
}
func (UnimplementedSourceChainServer) Provenances(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Provenances not implemented")
}
func (UnimplementedSourceChainServer) Verify(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Verify not implemented")
}

// RegisterSourceChainServer registers the SourceChain service on a gRPC
// server.
func RegisterSourceChainServer(s grpc.ServiceRegistrar, srv SourceChainServer) {
	s.RegisterService(&SourceChain_ServiceDesc, srv)
}

// SourceChainClient is the client API for the SourceChain gRPC service.
type SourceChainClient interface {
	Commit(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	AddLink(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	RemoveLink(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	RemoveEntry(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	GetLinks(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	GetEntry(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Walk(ctx context.Context, in *wrapperspb.Int64Value, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Provenances(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Verify(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
}

type sourceChainClient struct{ cc grpc.ClientConnInterface }

func NewSourceChainClient(cc grpc.ClientConnInterface) SourceChainClient {
	return &sourceChainClient{cc: cc}
}

const serviceName = "agentchain.chainrpc.v1.SourceChain"

func (c *sourceChainClient) Commit(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Commit", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sourceChainClient) AddLink(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/AddLink", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sourceChainClient) RemoveLink(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/RemoveLink", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sourceChainClient) RemoveEntry(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/RemoveEntry", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sourceChainClient) GetLinks(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetLinks", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sourceChainClient) GetEntry(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetEntry", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sourceChainClient) Walk(ctx context.Context, in *wrapperspb.Int64Value, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Walk", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sourceChainClient) Provenances(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Provenances", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sourceChainClient) Verify(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Verify", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func unaryHandler[Req any](method string, call func(srv SourceChainServer, ctx context.Context, in *Req) (interface{}, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	full := "/" + serviceName + "/" + method
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SourceChainServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(SourceChainServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// SourceChain_ServiceDesc is the grpc.ServiceDesc for the SourceChain
// service.
var SourceChain_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SourceChainServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Commit", Handler: unaryHandler("Commit", func(srv SourceChainServer, ctx context.Context, in *wrapperspb.BytesValue) (interface{}, error) {
			return srv.Commit(ctx, in)
		})},
		{MethodName: "AddLink", Handler: unaryHandler("AddLink", func(srv SourceChainServer, ctx context.Context, in *wrapperspb.BytesValue) (interface{}, error) {
			return srv.AddLink(ctx, in)
		})},
		{MethodName: "RemoveLink", Handler: unaryHandler("RemoveLink", func(srv SourceChainServer, ctx context.Context, in *wrapperspb.StringValue) (interface{}, error) {
			return srv.RemoveLink(ctx, in)
		})},
		{MethodName: "RemoveEntry", Handler: unaryHandler("RemoveEntry", func(srv SourceChainServer, ctx context.Context, in *wrapperspb.StringValue) (interface{}, error) {
			return srv.RemoveEntry(ctx, in)
		})},
		{MethodName: "GetLinks", Handler: unaryHandler("GetLinks", func(srv SourceChainServer, ctx context.Context, in *wrapperspb.BytesValue) (interface{}, error) {
			return srv.GetLinks(ctx, in)
		})},
		{MethodName: "GetEntry", Handler: unaryHandler("GetEntry", func(srv SourceChainServer, ctx context.Context, in *wrapperspb.StringValue) (interface{}, error) {
			return srv.GetEntry(ctx, in)
		})},
		{MethodName: "Walk", Handler: unaryHandler("Walk", func(srv SourceChainServer, ctx context.Context, in *wrapperspb.Int64Value) (interface{}, error) {
			return srv.Walk(ctx, in)
		})},
		{MethodName: "Provenances", Handler: unaryHandler("Provenances", func(srv SourceChainServer, ctx context.Context, in *wrapperspb.StringValue) (interface{}, error) {
			return srv.Provenances(ctx, in)
		})},
		{MethodName: "Verify", Handler: unaryHandler("Verify", func(srv SourceChainServer, ctx context.Context, in *wrapperspb.StringValue) (interface{}, error) {
			return srv.Verify(ctx, in)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sourcechain.proto",
}
