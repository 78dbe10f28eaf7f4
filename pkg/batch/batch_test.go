package batch

import (
	"testing"
	"time"

	"github.com/amdinfer/amdinfer/pkg/request"
)

func TestPropagatePreservesPerIndexMetadataButNotSize(t *testing.T) {
	b := New()
	now := time.Now()
	for i := 0; i < 3; i++ {
		b.AddRequest(request.New("r", nil), "echo", now)
	}

	next := b.Propagate()
	if next.Size() != 0 {
		t.Fatalf("propagated batch size = %d, want 0", next.Size())
	}
	for i := 0; i < 3; i++ {
		if next.Model(i) != b.Model(i) {
			t.Fatalf("model[%d] = %q, want %q", i, next.Model(i), b.Model(i))
		}
		if !next.StartTime(i).Equal(b.StartTime(i)) {
			t.Fatalf("start time[%d] mismatch", i)
		}
	}
}
