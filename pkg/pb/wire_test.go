package pb

import (
	"encoding/binary"
	"testing"

	"github.com/amdinfer/amdinfer/pkg/request"
	"github.com/amdinfer/amdinfer/pkg/types"
)

func TestRequestRoundTripPreservesTensorBytes(t *testing.T) {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, 3)

	req := request.New("req-1", nil)
	req.Parameters.Set("batch_size", int32(4))
	req.AddInput(request.NewOwnedInput(types.NewTensor("in", []uint64{1}, types.Uint32), data))

	wire := FromRequest(req)
	if wire.ID != "req-1" {
		t.Fatalf("expected id req-1, got %q", wire.ID)
	}
	if len(wire.Inputs) != 1 || wire.Inputs[0].Datatype != "UINT32" {
		t.Fatalf("unexpected wire inputs: %+v", wire.Inputs)
	}

	back, err := ToRequest(wire, nil)
	if err != nil {
		t.Fatalf("ToRequest: %v", err)
	}
	if back.ID != req.ID {
		t.Fatalf("id mismatch: %q vs %q", back.ID, req.ID)
	}
	got := binary.LittleEndian.Uint32(back.Inputs[0].Data())
	if got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestResponseRoundTripError(t *testing.T) {
	resp := request.NewErrorResponse("req-1", "echo-0", "boom")
	wire := FromResponse(resp)
	if wire.Error != "boom" {
		t.Fatalf("expected error boom, got %q", wire.Error)
	}

	back, err := ToResponse(wire)
	if err != nil {
		t.Fatalf("ToResponse: %v", err)
	}
	if !back.IsError() || back.Error != "boom" {
		t.Fatalf("expected error response, got %+v", back)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	c := Codec{}
	in := Request{ID: "abc", Inputs: []Tensor{{Name: "x", Shape: []uint64{1}, Datatype: "UINT32", Data: []byte{1, 2, 3, 4}}}}
	data, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Request
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID != in.ID || len(out.Inputs) != 1 || out.Inputs[0].Name != "x" {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if c.Name() != "json" {
		t.Fatalf("expected codec name json, got %q", c.Name())
	}
}
