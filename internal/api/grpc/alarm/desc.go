package alarm

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "alarmclock.v1.AlarmService"

// Method names of the alarm service.
const (
	MethodSetAlarm       = "SetAlarm"
	MethodEditAlarm      = "EditAlarm"
	MethodDeleteAlarm    = "DeleteAlarm"
	MethodToggleAlarm    = "ToggleAlarm"
	MethodGetAlarm       = "GetAlarm"
	MethodListAlarms     = "ListAlarms"
	MethodDismissCurrent = "DismissCurrent"
	MethodSnoozeCurrent  = "SnoozeCurrent"
	MethodCurrentSession = "CurrentSession"
)

// Field names used by requests and responses on top of the codec fields.
const (
	FieldAlarms    = "alarms"
	FieldDelay     = "delay"
	FieldDismissed = "dismissed"
	FieldSnoozed   = "snoozed"
	FieldRinging   = "ringing"
	FieldSession   = "session"
)

// Handler is the server side of the alarm service.
type Handler interface {
	SetAlarm(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	EditAlarm(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DeleteAlarm(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ToggleAlarm(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetAlarm(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListAlarms(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DismissCurrent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SnoozeCurrent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CurrentSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the alarm service for grpc.Server.RegisterService.
//
//nolint:gochecknoglobals // grpc expects a package-level descriptor.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodSetAlarm, Handler.SetAlarm),
		unary(MethodEditAlarm, Handler.EditAlarm),
		unary(MethodDeleteAlarm, Handler.DeleteAlarm),
		unary(MethodToggleAlarm, Handler.ToggleAlarm),
		unary(MethodGetAlarm, Handler.GetAlarm),
		unary(MethodListAlarms, Handler.ListAlarms),
		unary(MethodDismissCurrent, Handler.DismissCurrent),
		unary(MethodSnoozeCurrent, Handler.SnoozeCurrent),
		unary(MethodCurrentSession, Handler.CurrentSession),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "alarmclock/v1/alarm.proto",
}

// FullMethod returns the path used by clients to invoke method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// Register attaches handler to registrar.
func Register(registrar grpc.ServiceRegistrar, handler Handler) {
	registrar.RegisterService(&ServiceDesc, handler)
}

type call func(Handler, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unary builds a method descriptor that decodes a Struct request and runs
// it through the interceptor chain.
func unary(name string, fn call) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}

			handler := srv.(Handler) //nolint:forcetypeassert,errcheck // HandlerType guarantees it.
			if interceptor == nil {
				return fn(handler, ctx, in)
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(name),
			}

			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(handler, ctx, req.(*structpb.Struct)) //nolint:forcetypeassert,errcheck // Decoded above.
			})
		},
	}
}
