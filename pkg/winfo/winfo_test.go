package winfo

import (
	"encoding/base64"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/amdinfer/amdinfer/pkg/batcher"
	"github.com/amdinfer/amdinfer/pkg/buffer"
	"github.com/amdinfer/amdinfer/pkg/request"
	"github.com/amdinfer/amdinfer/pkg/types"
	_ "github.com/amdinfer/amdinfer/pkg/worker/builtin"
)

func newTestPool() *buffer.MemoryPool {
	p := buffer.NewMemoryPool()
	p.Register(buffer.Cpu)
	return p
}

func TestWorkerInfoEchoRoundTrip(t *testing.T) {
	pool := newTestPool()
	responder, err := New("echo-responder-0", "responder", types.NewParameterMap(), DefaultConfig(), pool, nil, nil, nil)
	if err != nil {
		t.Fatalf("responder: %v", err)
	}
	cfg := DefaultConfig()
	cfg.BatchSize = 1
	cfg.Timeout = 20 * time.Millisecond
	echo, err := New("echo-0", "echo", types.NewParameterMap(), cfg, pool, responder, nil, nil)
	if err != nil {
		t.Fatalf("echo: %v", err)
	}
	responder.Start()
	echo.Start()
	defer echo.Stop()
	defer responder.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	var got *request.Response
	req := request.New("req-1", func(r *request.Response) {
		got = r
		wg.Done()
	})
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, 3)
	req.AddInput(request.NewOwnedInput(types.NewTensor("in", []uint64{1}, types.Uint32), data))

	echo.Submit(&batcher.PendingRequest{Req: req, Model: "echo", EnqueueAt: time.Now()})
	wg.Wait()

	if got == nil || got.IsError() {
		t.Fatalf("bad response: %+v", got)
	}
	value := binary.LittleEndian.Uint32(got.Outputs[0].Data())
	if value != 4 {
		t.Fatalf("expected 4, got %d", value)
	}
}

func TestWorkerInfoEnsembleChain(t *testing.T) {
	pool := newTestPool()
	cfg := DefaultConfig()
	cfg.BatchSize = 1
	cfg.Timeout = 20 * time.Millisecond

	responder, err := New("ensemble-responder-0", "responder", types.NewParameterMap(), cfg, pool, nil, nil, nil)
	if err != nil {
		t.Fatalf("responder: %v", err)
	}
	encode, err := New("base64_encode-0", "base64_encode", types.NewParameterMap(), cfg, pool, responder, nil, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	invert, err := New("invert_image-0", "invert_image", types.NewParameterMap(), cfg, pool, encode, nil, nil)
	if err != nil {
		t.Fatalf("invert: %v", err)
	}
	decode, err := New("base64_decode-0", "base64_decode", types.NewParameterMap(), cfg, pool, invert, nil, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	for _, wi := range []*WorkerInfo{responder, encode, invert, decode} {
		wi.Start()
		defer wi.Stop()
	}

	raw := []byte{10, 20, 30, 40, 50, 60}
	encoded := base64.StdEncoding.EncodeToString(raw)

	var wg sync.WaitGroup
	wg.Add(1)
	var got *request.Response
	req := request.New("req-1", func(r *request.Response) {
		got = r
		wg.Done()
	})
	req.AddInput(request.NewOwnedInput(types.NewTensor("in", []uint64{uint64(len(encoded))}, types.Bytes), []byte(encoded)))

	decode.Submit(&batcher.PendingRequest{Req: req, Model: "base64_decode", EnqueueAt: time.Now()})
	wg.Wait()

	if got == nil || got.IsError() {
		t.Fatalf("bad response: %+v", got)
	}

	finalRaw, err := base64.StdEncoding.DecodeString(string(got.Outputs[0].Data()))
	if err != nil {
		t.Fatalf("decode final: %v", err)
	}
	for i, v := range raw {
		if want := byte(255) - v; finalRaw[i] != want {
			t.Fatalf("byte %d: got %d want %d", i, finalRaw[i], want)
		}
	}
}
