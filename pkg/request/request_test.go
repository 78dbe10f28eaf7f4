package request

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/amdinfer/amdinfer/pkg/types"
)

func TestRunCallbackOnceFiresExactlyOnce(t *testing.T) {
	var calls atomic.Int32
	r := New("req-1", func(resp *Response) { calls.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RunCallbackOnce(NewResponse("req-1", "m"))
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("callback fired %d times, want 1", got)
	}
}

func TestRunCallbackErrorProducesErrorResponse(t *testing.T) {
	var got *Response
	r := New("req-2", func(resp *Response) { got = resp })
	r.RunCallbackError("echo", "boom")

	if got == nil || !got.IsError() || got.Error != "boom" {
		t.Fatalf("expected error response, got %+v", got)
	}
}

func TestPropagateCarriesCallbackAndOutputsNotInputs(t *testing.T) {
	var fired bool
	r := New("req-3", func(resp *Response) { fired = true })
	r.AddInput(NewOwnedInput(types.NewTensor("in", []uint64{1}, types.Uint32), []byte{1, 2, 3, 4}))
	r.AddOutput(NewOutput(types.NewTensor("out", nil, types.Uint32), nil))

	next := r.Propagate()
	if len(next.Inputs) != 0 {
		t.Fatalf("propagate must not carry inputs, got %d", len(next.Inputs))
	}
	if len(next.Outputs) != 1 || next.Outputs[0].Name != "out" {
		t.Fatalf("propagate must carry output descriptors, got %+v", next.Outputs)
	}
	if next.ID != r.ID {
		t.Fatalf("propagate must carry id, got %q want %q", next.ID, r.ID)
	}

	next.RunCallbackOnce(NewResponse(next.ID, "m"))
	if !fired {
		t.Fatal("propagated request must forward the original callback")
	}
}
