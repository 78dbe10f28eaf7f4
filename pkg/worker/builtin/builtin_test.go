package builtin

import (
	"encoding/base64"
	"encoding/binary"
	"testing"
	"time"

	"github.com/amdinfer/amdinfer/pkg/batch"
	"github.com/amdinfer/amdinfer/pkg/buffer"
	"github.com/amdinfer/amdinfer/pkg/request"
	"github.com/amdinfer/amdinfer/pkg/types"
	"github.com/amdinfer/amdinfer/pkg/worker"
)

func newPool() *buffer.MemoryPool {
	p := buffer.NewMemoryPool()
	p.Register(buffer.Cpu)
	return p
}

func TestEchoIncrementsValue(t *testing.T) {
	w, err := worker.New("echo")
	if err != nil {
		t.Fatalf("New(echo): %v", err)
	}
	params := types.NewParameterMap()
	if err := w.DoInit(params); err != nil {
		t.Fatalf("DoInit: %v", err)
	}
	if err := w.DoAcquire(params); err != nil {
		t.Fatalf("DoAcquire: %v", err)
	}

	var got *request.Response
	req := request.New("req-1", func(r *request.Response) { got = r })
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, 3)
	req.AddInput(request.NewOwnedInput(types.NewTensor("in", []uint64{1}, types.Uint32), data))

	b := batch.New()
	b.AddRequest(req, "echo", time.Now())

	newBatch, err := w.DoRun(b, newPool())
	if err != nil {
		t.Fatalf("DoRun: %v", err)
	}
	worker.Respond(newBatch)

	if got == nil {
		t.Fatal("callback never fired")
	}
	if got.IsError() {
		t.Fatalf("unexpected error response: %s", got.Error)
	}
	if len(got.Outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(got.Outputs))
	}
	value := binary.LittleEndian.Uint32(got.Outputs[0].Data())
	if value != 4 {
		t.Fatalf("expected 4, got %d", value)
	}
}

func TestEchoMultiCyclesInputsAcrossOutputs(t *testing.T) {
	w, err := worker.New("echo_multi")
	if err != nil {
		t.Fatalf("New(echo_multi): %v", err)
	}
	params := types.NewParameterMap()
	_ = w.DoInit(params)
	if err := w.DoAcquire(params); err != nil {
		t.Fatalf("DoAcquire: %v", err)
	}

	var got *request.Response
	req := request.New("req-1", func(r *request.Response) { got = r })
	in0 := make([]byte, 4)
	binary.LittleEndian.PutUint32(in0, 1)
	in1 := make([]byte, 8)
	binary.LittleEndian.PutUint32(in1[0:], 2)
	binary.LittleEndian.PutUint32(in1[4:], 3)
	req.AddInput(request.NewOwnedInput(types.NewTensor("a", []uint64{1}, types.Uint32), in0))
	req.AddInput(request.NewOwnedInput(types.NewTensor("b", []uint64{2}, types.Uint32), in1))

	b := batch.New()
	b.AddRequest(req, "echo_multi", time.Now())

	newBatch, err := w.DoRun(b, newPool())
	if err != nil {
		t.Fatalf("DoRun: %v", err)
	}
	worker.Respond(newBatch)

	if got == nil || got.IsError() {
		t.Fatalf("bad response: %+v", got)
	}
	if len(got.Outputs) != 3 {
		t.Fatalf("expected 3 outputs, got %d", len(got.Outputs))
	}
	wantLens := []int{1, 4, 3}
	for i, o := range got.Outputs {
		if len(o.Data())/4 != wantLens[i] {
			t.Fatalf("output %d: expected %d elements, got %d", i, wantLens[i], len(o.Data())/4)
		}
	}
	first := binary.LittleEndian.Uint32(got.Outputs[0].Data())
	if first != 1 {
		t.Fatalf("expected first output element to be 1, got %d", first)
	}
}

func TestBase64EnsembleRoundTrip(t *testing.T) {
	decode, _ := worker.New("base64_decode")
	invert, _ := worker.New("invert_image")
	encode, _ := worker.New("base64_encode")
	for _, w := range []worker.Worker{decode, invert, encode} {
		_ = w.DoInit(types.NewParameterMap())
		if err := w.DoAcquire(types.NewParameterMap()); err != nil {
			t.Fatalf("DoAcquire: %v", err)
		}
	}

	raw := []byte{0, 10, 20, 255, 100, 200, 50, 60, 70, 10, 20, 30}
	encoded := base64.StdEncoding.EncodeToString(raw)

	var got *request.Response
	req := request.New("req-1", func(r *request.Response) { got = r })
	req.AddInput(request.NewOwnedInput(types.NewTensor("in", []uint64{uint64(len(encoded))}, types.Bytes), []byte(encoded)))

	b := batch.New()
	b.AddRequest(req, "base64_decode", time.Now())

	b1, err := decode.DoRun(b, newPool())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	b2, err := invert.DoRun(b1, newPool())
	if err != nil {
		t.Fatalf("invert: %v", err)
	}

	b3, err := encode.DoRun(b2, newPool())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	worker.Respond(b3)
	if got == nil || got.IsError() {
		t.Fatalf("bad response: %+v", got)
	}

	finalEncoded := string(got.Outputs[0].Data())
	finalRaw, err := base64.StdEncoding.DecodeString(finalEncoded)
	if err != nil {
		t.Fatalf("decode final: %v", err)
	}
	if len(finalRaw) != len(raw) {
		t.Fatalf("length mismatch: got %d want %d", len(finalRaw), len(raw))
	}
	for i := 0; i < len(raw); i += 3 {
		for c := 0; c < 3; c++ {
			want := byte(255) - raw[i+c]
			if finalRaw[i+c] != want {
				t.Fatalf("byte %d: got %d want %d", i+c, finalRaw[i+c], want)
			}
		}
	}
}

func TestResponderCompletesBatchAndSignalsHandled(t *testing.T) {
	r, err := worker.New("responder")
	if err != nil {
		t.Fatalf("New(responder): %v", err)
	}
	_ = r.DoInit(types.NewParameterMap())
	_ = r.DoAcquire(types.NewParameterMap())

	var got *request.Response
	req := request.New("req-1", func(resp *request.Response) { got = resp })
	req.AddInput(request.NewOwnedInput(types.NewTensor("out", []uint64{1}, types.Uint32), []byte{1, 0, 0, 0}))

	b := batch.New()
	b.AddRequest(req, "responder", time.Now())

	newBatch, err := r.DoRun(b, newPool())
	if err != nil {
		t.Fatalf("DoRun: %v", err)
	}
	if newBatch != nil {
		t.Fatalf("expected nil batch signaling already-handled, got %v", newBatch)
	}
	if got == nil {
		t.Fatal("expected responder to fire the callback directly")
	}
}
