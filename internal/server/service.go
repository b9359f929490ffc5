package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "orgstore.v1.AccountabilityVersions"

// Method names
const (
	MethodCreateAccountability = "CreateAccountability"
	MethodListAccountabilities = "ListAccountabilities"
	MethodInsertVersion        = "InsertVersion"
	MethodGetHead              = "GetHead"
	MethodListHistory          = "ListHistory"
	MethodDeleteVersion        = "DeleteVersion"
	MethodPurgeChain           = "PurgeChain"
	MethodVersionAsOf          = "VersionAsOf"
	MethodActiveOn             = "ActiveOn"
	MethodListByCreator        = "ListByCreator"
	MethodVerifyChain          = "VerifyChain"
	MethodGetStats             = "GetStats"
)

// FullMethod returns the wire path of a method
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// AccountabilityVersionsServer is the server API. Requests and responses
// are google.protobuf.Struct messages; dates travel as YYYY-MM-DD strings.
type AccountabilityVersionsServer interface {
	CreateAccountability(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAccountabilities(context.Context, *structpb.Struct) (*structpb.Struct, error)
	InsertVersion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetHead(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteVersion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PurgeChain(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VersionAsOf(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ActiveOn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListByCreator(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyChain(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStats(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(AccountabilityVersionsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AccountabilityVersionsServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(name),
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(AccountabilityVersionsServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the AccountabilityVersions service for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AccountabilityVersionsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodCreateAccountability, AccountabilityVersionsServer.CreateAccountability),
		unary(MethodListAccountabilities, AccountabilityVersionsServer.ListAccountabilities),
		unary(MethodInsertVersion, AccountabilityVersionsServer.InsertVersion),
		unary(MethodGetHead, AccountabilityVersionsServer.GetHead),
		unary(MethodListHistory, AccountabilityVersionsServer.ListHistory),
		unary(MethodDeleteVersion, AccountabilityVersionsServer.DeleteVersion),
		unary(MethodPurgeChain, AccountabilityVersionsServer.PurgeChain),
		unary(MethodVersionAsOf, AccountabilityVersionsServer.VersionAsOf),
		unary(MethodActiveOn, AccountabilityVersionsServer.ActiveOn),
		unary(MethodListByCreator, AccountabilityVersionsServer.ListByCreator),
		unary(MethodVerifyChain, AccountabilityVersionsServer.VerifyChain),
		unary(MethodGetStats, AccountabilityVersionsServer.GetStats),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "orgstore/v1/accountability_versions",
}

// RegisterAccountabilityVersionsServer registers srv on s
func RegisterAccountabilityVersionsServer(s grpc.ServiceRegistrar, srv AccountabilityVersionsServer) {
	s.RegisterService(&ServiceDesc, srv)
}
