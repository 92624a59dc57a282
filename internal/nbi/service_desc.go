package nbi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// CellularServiceName is the fully-qualified gRPC service name.
const CellularServiceName = "cellsim.v1.CellularService"

// RPC method names of CellularService.
const (
	MethodGetStatus       = "GetStatus"
	MethodAddTower        = "AddTower"
	MethodAttachDevice    = "AttachDevice"
	MethodDetachDevice    = "DetachDevice"
	MethodEnqueueMessage  = "EnqueueMessage"
	MethodProcessMessages = "ProcessMessages"
)

// CellularServiceServer is the server API of CellularService. Requests and
// responses are google.protobuf.Struct bodies; the keys each method reads
// and writes are documented on CellularService.
type CellularServiceServer interface {
	GetStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddTower(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AttachDevice(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DetachDevice(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EnqueueMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ProcessMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structCall func(CellularServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call structCall) grpc.MethodHandler {
	fullMethod := "/" + CellularServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CellularServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CellularServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// CellularServiceDesc describes CellularService for grpc.Server.RegisterService.
var CellularServiceDesc = grpc.ServiceDesc{
	ServiceName: CellularServiceName,
	HandlerType: (*CellularServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodGetStatus, Handler: unaryHandler(MethodGetStatus, CellularServiceServer.GetStatus)},
		{MethodName: MethodAddTower, Handler: unaryHandler(MethodAddTower, CellularServiceServer.AddTower)},
		{MethodName: MethodAttachDevice, Handler: unaryHandler(MethodAttachDevice, CellularServiceServer.AttachDevice)},
		{MethodName: MethodDetachDevice, Handler: unaryHandler(MethodDetachDevice, CellularServiceServer.DetachDevice)},
		{MethodName: MethodEnqueueMessage, Handler: unaryHandler(MethodEnqueueMessage, CellularServiceServer.EnqueueMessage)},
		{MethodName: MethodProcessMessages, Handler: unaryHandler(MethodProcessMessages, CellularServiceServer.ProcessMessages)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cellsim/v1/cellular.proto",
}

// RegisterCellularServiceServer registers srv on s.
func RegisterCellularServiceServer(s grpc.ServiceRegistrar, srv CellularServiceServer) {
	s.RegisterService(&CellularServiceDesc, srv)
}

// CellularClient calls CellularService over conn.
type CellularClient struct {
	conn grpc.ClientConnInterface
}

// NewCellularClient wraps conn.
func NewCellularClient(conn grpc.ClientConnInterface) *CellularClient {
	return &CellularClient{conn: conn}
}

// Call invokes method with req, which may be nil for an empty body.
func (c *CellularClient) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+CellularServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
