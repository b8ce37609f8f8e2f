// Package alarm implements the gRPC transport for the alarm clock service.
//
// The service is described by a hand-written grpc.ServiceDesc whose methods
// exchange google.protobuf.Struct messages. Field names are shared with the
// codec package, so clients only need the method names exported here.
package alarm
