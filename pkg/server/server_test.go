package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/amdinfer/amdinfer/pkg/amderr"
	"github.com/amdinfer/amdinfer/pkg/buffer"
	"github.com/amdinfer/amdinfer/pkg/config"
	"github.com/amdinfer/amdinfer/pkg/pb"
	"github.com/amdinfer/amdinfer/pkg/types"
	_ "github.com/amdinfer/amdinfer/pkg/worker/builtin"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func newTestConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.HTTPPort = freePort(t)
	cfg.Server.GRPCPort = freePort(t)
	cfg.Server.PollInterval = 20 * time.Millisecond
	return cfg
}

func newTestPool() *buffer.MemoryPool {
	pool := buffer.NewMemoryPool()
	pool.Register(buffer.Cpu)
	return pool
}

func TestStartStopHTTPIsIdempotent(t *testing.T) {
	s := New(newTestConfig(t), newTestPool(), nil)
	if err := s.StartHTTP(); err != nil {
		t.Fatalf("startHttp: %v", err)
	}
	if err := s.StartHTTP(); err != nil {
		t.Fatalf("second startHttp should be a no-op, got: %v", err)
	}
	if err := s.StopHTTP(); err != nil {
		t.Fatalf("stopHttp: %v", err)
	}
	if err := s.StopHTTP(); err != nil {
		t.Fatalf("second stopHttp should be a no-op, got: %v", err)
	}
}

func TestHTTPEchoEndToEnd(t *testing.T) {
	cfg := newTestConfig(t)
	s := New(cfg, newTestPool(), nil)
	if err := s.StartHTTP(); err != nil {
		t.Fatalf("startHttp: %v", err)
	}
	defer s.StopHTTP()

	base := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)

	loadBody, _ := json.Marshal(map[string]any{"name": "echo"})
	resp, err := http.Post(base+"/v1/workers/load", "application/json", bytes.NewReader(loadBody))
	if err != nil {
		t.Fatalf("load request: %v", err)
	}
	var loadOut struct {
		Endpoint string `json:"endpoint"`
	}
	json.NewDecoder(resp.Body).Decode(&loadOut)
	resp.Body.Close()
	if loadOut.Endpoint == "" {
		t.Fatal("expected a non-empty endpoint")
	}

	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, 3)
	wireReq := pb.Request{
		ID:     "req-1",
		Inputs: []pb.Tensor{{Name: "in", Shape: []uint64{1}, Datatype: "UINT32", Data: data}},
	}
	inferBody, _ := json.Marshal(wireReq)
	resp, err = http.Post(base+"/v1/models/"+loadOut.Endpoint+"/infer", "application/json", bytes.NewReader(inferBody))
	if err != nil {
		t.Fatalf("infer request: %v", err)
	}
	defer resp.Body.Close()

	var wireResp pb.Response
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		t.Fatalf("decode infer response: %v", err)
	}
	if wireResp.Error != "" {
		t.Fatalf("error response: %s", wireResp.Error)
	}
	got := binary.LittleEndian.Uint32(wireResp.Outputs[0].Data)
	if got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
}

func TestGRPCInferEndToEnd(t *testing.T) {
	cfg := newTestConfig(t)
	s := New(cfg, newTestPool(), nil)
	if err := s.StartGRPC(); err != nil {
		t.Fatalf("startGrpc: %v", err)
	}
	defer s.StopGRPC()

	endpoint, err := s.Registry().WorkerLoad("echo", types.NewParameterMap())
	if err != nil {
		t.Fatalf("workerLoad: %v", err)
	}

	target := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort)
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, 9)
	in := &pb.InferEnvelope{
		Endpoint: endpoint,
		Request: pb.Request{
			ID:     "req-1",
			Inputs: []pb.Tensor{{Name: "in", Shape: []uint64{1}, Datatype: "UINT32", Data: data}},
		},
	}
	var out pb.Response

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Invoke(ctx, "/amdinfer.Inference/Infer", in, &out, grpc.CallContentSubtype(pb.Codec{}.Name())); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out.Error != "" {
		t.Fatalf("error response: %s", out.Error)
	}
	got := binary.LittleEndian.Uint32(out.Outputs[0].Data)
	if got != 10 {
		t.Fatalf("expected 10, got %d", got)
	}
}

func TestWorkerUnloadUnknownEndpointIsInvalidArgument(t *testing.T) {
	s := New(newTestConfig(t), newTestPool(), nil)
	err := s.Registry().WorkerUnload("does-not-exist")
	if kind, ok := amderr.KindOf(err); !ok || kind != amderr.InvalidArgument {
		t.Fatalf("expected invalid_argument, got %v", err)
	}
}
