package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/amdinfer/amdinfer/pkg/amderr"
	"github.com/amdinfer/amdinfer/pkg/pb"
	"github.com/amdinfer/amdinfer/pkg/request"
	"github.com/amdinfer/amdinfer/pkg/server"
	"github.com/amdinfer/amdinfer/pkg/types"
)

// GRPCClient is the remote gRPC implementation of Client. It calls the
// hand-built service (pkg/server/grpc.go) using pb.Codec under the
// "json" content-subtype instead of a protoc-generated stub (spec.md §6).
type GRPCClient struct {
	conn *grpc.ClientConn
}

// DialGRPC opens an insecure gRPC connection to target ("host:port").
func DialGRPC(target string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, amderr.Wrap(amderr.Connection, fmt.Sprintf("dial %s failed", target), err)
	}
	return &GRPCClient{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *GRPCClient) Close() error { return c.conn.Close() }

func (c *GRPCClient) invoke(ctx context.Context, method string, in, out any) error {
	err := c.conn.Invoke(ctx, "/amdinfer.Inference/"+method, in, out, grpc.CallContentSubtype(pb.Codec{}.Name()))
	if err != nil {
		if st, ok := grpcstatus.FromError(err); ok {
			if st.Code() == codes.Unavailable {
				return amderr.Wrap(amderr.Connection, fmt.Sprintf("rpc %s failed", method), err)
			}
			return amderr.Wrap(amderr.BadStatus, fmt.Sprintf("rpc %s failed", method), err)
		}
		return err
	}
	return nil
}

func (c *GRPCClient) ServerLive(ctx context.Context) (bool, error) {
	_, err := c.serverMetadata(ctx)
	return err == nil, errToBool(err)
}

func (c *GRPCClient) ServerReady(ctx context.Context) (bool, error) {
	_, err := c.serverMetadata(ctx)
	return err == nil, errToBool(err)
}

func (c *GRPCClient) serverMetadata(ctx context.Context) (server.Metadata, error) {
	var out server.Metadata
	err := c.invoke(ctx, "ServerMetadata", &pb.Empty{}, &out)
	return out, err
}

func (c *GRPCClient) ServerMetadata(ctx context.Context) (server.Metadata, error) {
	return c.serverMetadata(ctx)
}

func (c *GRPCClient) ModelReady(ctx context.Context, endpoint string) (bool, error) {
	var out pb.ModelReadyResponse
	err := c.invoke(ctx, "ModelReady", &pb.EndpointRequest{Endpoint: endpoint}, &out)
	if err != nil {
		return false, errToBool(err)
	}
	return out.Ready, nil
}

func (c *GRPCClient) ModelList(ctx context.Context) ([]string, error) {
	var out pb.ModelListResponse
	err := c.invoke(ctx, "ModelList", &pb.Empty{}, &out)
	return out.Models, err
}

func (c *GRPCClient) WorkerLoad(ctx context.Context, name string, params *types.ParameterMap) (string, error) {
	var out pb.WorkerLoadResponse
	in := &pb.WorkerLoadRequest{Name: name, Parameters: paramsToMap(params)}
	err := c.invoke(ctx, "WorkerLoad", in, &out)
	return out.Endpoint, err
}

func (c *GRPCClient) WorkerUnload(ctx context.Context, endpoint string) error {
	var out pb.Empty
	return c.invoke(ctx, "WorkerUnload", &pb.EndpointRequest{Endpoint: endpoint}, &out)
}

func (c *GRPCClient) ModelLoad(ctx context.Context, model string, params *types.ParameterMap) (string, error) {
	return c.WorkerLoad(ctx, model, params)
}

func (c *GRPCClient) ModelUnload(ctx context.Context, endpoint string) error {
	return c.WorkerUnload(ctx, endpoint)
}

func (c *GRPCClient) ModelInfer(ctx context.Context, endpoint string, req *request.Request) (*request.Response, error) {
	in := &pb.InferEnvelope{Endpoint: endpoint, Request: pb.FromRequest(req)}
	var out pb.Response
	if err := c.invoke(ctx, "Infer", in, &out); err != nil {
		return nil, err
	}
	return pb.ToResponse(out)
}

// ModelInferAsync issues the RPC on a separate goroutine, matching the
// other transports' async contract (spec.md §4.5).
func (c *GRPCClient) ModelInferAsync(ctx context.Context, endpoint string, req *request.Request) (*Future, error) {
	f := &Future{ch: make(chan *request.Response, 1)}
	go func() {
		resp, err := c.ModelInfer(ctx, endpoint, req)
		if err != nil {
			resp = request.NewErrorResponse(req.ID, endpoint, err.Error())
		}
		f.ch <- resp
	}()
	return f, nil
}
