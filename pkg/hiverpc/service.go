package hiverpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
)

// Fully-qualified service names, matching the convention a .proto file
// would declare (package cellhive; service TransactionSupervisor {...}).
const (
	SupervisorServiceName  = "cellhive.TransactionSupervisor"
	ParticipantServiceName = "cellhive.TransactionParticipant"
)

func unaryHandler(method func(ctx context.Context, req rawFrame) (rawFrame, error), fullMethod string) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: fullMethod[strings.LastIndex(fullMethod, "/")+1:],
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			var req rawFrame
			if err := dec(&req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return method(ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return method(ctx, req.(rawFrame))
			}
			return interceptor(ctx, req, info, handler)
		},
	}
}

// handlerType stands in for the per-service interface type
// protoc-gen-go-grpc would normally generate and hand to HandlerType;
// RegisterService only uses it to type-assert ss against it, and an
// empty interface accepts any server value.
type handlerType = interface{}

// supervisorServiceDesc routes the coordinator-facing RPCs
// (CommitTransaction, AbortTransaction) to a *supervisorServer.
func supervisorServiceDesc(s *supervisorServer) grpc.ServiceDesc {
	return grpc.ServiceDesc{
		ServiceName: SupervisorServiceName,
		HandlerType: (*handlerType)(nil),
		Methods: []grpc.MethodDesc{
			unaryHandler(s.commitTransaction, "/"+SupervisorServiceName+"/CommitTransaction"),
			unaryHandler(s.abortTransaction, "/"+SupervisorServiceName+"/AbortTransaction"),
		},
		Metadata: "pkg/hiverpc/service.go",
	}
}

// participantServiceDesc routes the participant-facing RPCs (Prepare,
// Commit, Abort, Ping, AvailabilityCheck, GenerateTimestamp,
// LatestTimestamp) to a *participantServer.
func participantServiceDesc(p *participantServer) grpc.ServiceDesc {
	return grpc.ServiceDesc{
		ServiceName: ParticipantServiceName,
		HandlerType: (*handlerType)(nil),
		Methods: []grpc.MethodDesc{
			unaryHandler(p.prepare, "/"+ParticipantServiceName+"/Prepare"),
			unaryHandler(p.commit, "/"+ParticipantServiceName+"/Commit"),
			unaryHandler(p.abort, "/"+ParticipantServiceName+"/Abort"),
			unaryHandler(p.ping, "/"+ParticipantServiceName+"/Ping"),
			unaryHandler(p.availabilityCheck, "/"+ParticipantServiceName+"/AvailabilityCheck"),
			unaryHandler(p.generateTimestamp, "/"+ParticipantServiceName+"/GenerateTimestamp"),
			unaryHandler(p.latestTimestamp, "/"+ParticipantServiceName+"/LatestTimestamp"),
		},
		Metadata: "pkg/hiverpc/service.go",
	}
}
