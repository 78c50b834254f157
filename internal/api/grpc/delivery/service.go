package delivery

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "klaxon.v1.AlarmDelivery"

// Method names of the AlarmDelivery service.
const (
	MethodFire             = "Fire"
	MethodCallStateChanged = "CallStateChanged"
	MethodUserAction       = "UserAction"
	MethodCancelSnooze     = "CancelSnooze"
	MethodInvokeAction     = "InvokeAction"
	MethodGetState         = "GetState"
	MethodWatch            = "Watch"
)

// AlarmDeliveryServer is the server API of the AlarmDelivery service.
type AlarmDeliveryServer interface {
	Fire(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	CallStateChanged(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	UserAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	CancelSnooze(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	InvokeAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetState(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Watch(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error
}

// unaryCall adapts one AlarmDeliveryServer method.
type unaryCall func(srv AlarmDeliveryServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

// fullMethod returns the full RPC path of method.
func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryMethod(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(
			srv any,
			ctx context.Context,
			dec func(any) error,
			interceptor grpc.UnaryServerInterceptor,
		) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}

			server, _ := srv.(AlarmDeliveryServer)

			if interceptor == nil {
				return call(server, ctx, in)
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(method),
			}

			handler := func(ctx context.Context, req any) (any, error) {
				request, _ := req.(*structpb.Struct)

				return call(server, ctx, request)
			}

			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	server, _ := srv.(AlarmDeliveryServer)

	return server.Watch(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// ServiceDesc is the grpc.ServiceDesc of AlarmDelivery.
//
//nolint:gochecknoglobals // Service descriptors are package-level by convention.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AlarmDeliveryServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodFire, AlarmDeliveryServer.Fire),
		unaryMethod(MethodCallStateChanged, AlarmDeliveryServer.CallStateChanged),
		unaryMethod(MethodUserAction, AlarmDeliveryServer.UserAction),
		unaryMethod(MethodCancelSnooze, AlarmDeliveryServer.CancelSnooze),
		unaryMethod(MethodInvokeAction, AlarmDeliveryServer.InvokeAction),
		unaryMethod(MethodGetState, AlarmDeliveryServer.GetState),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    MethodWatch,
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "klaxon/v1/delivery.proto",
}

// RegisterAlarmDeliveryServer registers srv on the gRPC registrar.
func RegisterAlarmDeliveryServer(registrar grpc.ServiceRegistrar, srv AlarmDeliveryServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

// AlarmDeliveryClient is the client API of the AlarmDelivery service.
type AlarmDeliveryClient struct {
	// conn carries the calls.
	conn grpc.ClientConnInterface
}

// NewAlarmDeliveryClient creates a client on conn.
func NewAlarmDeliveryClient(conn grpc.ClientConnInterface) *AlarmDeliveryClient {
	return &AlarmDeliveryClient{conn: conn}
}

// Call invokes a unary method.
func (c *AlarmDeliveryClient) Call(
	ctx context.Context,
	method string,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

// Watch opens the outbound message stream.
func (c *AlarmDeliveryClient) Watch(
	ctx context.Context,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod(MethodWatch), opts...)
	if err != nil {
		return nil, err
	}

	client := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}

	if err = client.SendMsg(in); err != nil {
		return nil, err
	}

	if err = client.CloseSend(); err != nil {
		return nil, err
	}

	return client, nil
}
