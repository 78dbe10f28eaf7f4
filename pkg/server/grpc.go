package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/amdinfer/amdinfer/pkg/amderr"
	"github.com/amdinfer/amdinfer/pkg/pb"
)

// serviceDesc is a hand-built grpc.ServiceDesc standing in for a
// protoc-generated one (spec.md §6): each method's Handler decodes its
// request through whatever codec the client negotiated (pb.Codec, under
// subtype "json", registered by pkg/pb's init) and dispatches to Server.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "amdinfer.Inference",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Infer", Handler: inferHandler},
		{MethodName: "WorkerLoad", Handler: workerLoadHandler},
		{MethodName: "WorkerUnload", Handler: workerUnloadHandler},
		{MethodName: "ModelReady", Handler: modelReadyHandler},
		{MethodName: "ModelList", Handler: modelListHandler},
		{MethodName: "ServerMetadata", Handler: serverMetadataHandler},
	},
	Metadata: "pkg/server/grpc.go",
}

// registerGRPC installs the service on s.
func (s *Server) registerGRPC(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

func inferHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	var in pb.InferEnvelope
	if err := dec(&in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	req, err := pb.ToRequest(in.Request, nil)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.metrics.RecordRequest(in.Endpoint)

	resp, err := s.registry.ModelInfer(ctx, in.Endpoint, req)
	if err != nil {
		return nil, toGRPCStatus(err)
	}
	out := pb.FromResponse(resp)
	return &out, nil
}

func workerLoadHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	var in pb.WorkerLoadRequest
	if err := dec(&in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	endpoint, err := s.registry.WorkerLoad(in.Name, paramsFromJSON(in.Parameters))
	if err != nil {
		return nil, toGRPCStatus(err)
	}
	s.metrics.RecordLoad(in.Name)
	return &pb.WorkerLoadResponse{Endpoint: endpoint}, nil
}

func workerUnloadHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	var in pb.EndpointRequest
	if err := dec(&in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.registry.WorkerUnload(in.Endpoint); err != nil {
		return nil, toGRPCStatus(err)
	}
	s.metrics.RecordUnload(in.Endpoint)
	return &pb.Empty{}, nil
}

func modelReadyHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	var in pb.EndpointRequest
	if err := dec(&in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return &pb.ModelReadyResponse{Ready: s.registry.ModelReady(in.Endpoint)}, nil
}

func modelListHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	var in pb.Empty
	if err := dec(&in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return &pb.ModelListResponse{Models: s.registry.ModelList()}, nil
}

func serverMetadataHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	var in pb.Empty
	if err := dec(&in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	md := s.Metadata()
	return &md, nil
}

// toGRPCStatus maps the amderr taxonomy onto gRPC status codes, per
// spec.md §7 "converted to the wire error field".
func toGRPCStatus(err error) error {
	code := codes.Internal
	if kind, ok := amderr.KindOf(err); ok {
		switch kind {
		case amderr.InvalidArgument:
			code = codes.InvalidArgument
		case amderr.FileNotFound:
			code = codes.NotFound
		case amderr.Connection:
			code = codes.Unavailable
		case amderr.BadStatus:
			code = codes.Unknown
		case amderr.External, amderr.Runtime:
			code = codes.Internal
		}
	}
	return status.Error(code, err.Error())
}
