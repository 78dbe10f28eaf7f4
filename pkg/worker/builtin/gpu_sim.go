package builtin

import (
	"encoding/json"
	"math"
	"math/rand"
	"time"

	"github.com/amdinfer/amdinfer/pkg/batch"
	"github.com/amdinfer/amdinfer/pkg/buffer"
	"github.com/amdinfer/amdinfer/pkg/request"
	"github.com/amdinfer/amdinfer/pkg/types"
	"github.com/amdinfer/amdinfer/pkg/worker"
)

func init() {
	worker.Register("gpu_sim", func() worker.Worker { return newGPUSim() })
}

// gpuSimWorker mirrors the teacher's executor.SimulatedGPU: it mimics a
// real GPU kernel's latency profile (a fixed base cost plus a term that
// grows sublinearly with batch size) using real CPU work and a sleep,
// so that a whole batcher/worker pool can be load-tested for the
// throughput gains of batching without needing an actual accelerator.
type gpuSimWorker struct {
	worker.Base
	baseLatency time.Duration
}

func newGPUSim() *gpuSimWorker {
	return &gpuSimWorker{Base: worker.NewBase("gpu_sim", buffer.Cpu), baseLatency: 5 * time.Millisecond}
}

func (w *gpuSimWorker) DoInit(params *types.ParameterMap) error {
	if err := w.Base.DoInit(params); err != nil {
		return err
	}
	if ms := params.GetInt32("base_latency_ms", 5); ms > 0 {
		w.baseLatency = time.Duration(ms) * time.Millisecond
	}
	return nil
}

func (w *gpuSimWorker) DoAcquire(params *types.ParameterMap) error {
	w.SetMetadata(worker.Metadata{Name: "gpu_sim"})
	return nil
}

var simClasses = []string{"cat", "dog", "car", "tree", "person", "building", "bird", "fish"}

func (w *gpuSimWorker) DoRun(b *batch.Batch, _ *buffer.MemoryPool) (*batch.Batch, error) {
	batchSize := b.Size()
	if batchSize == 0 {
		return batch.New(), nil
	}

	latency := w.baseLatency + time.Duration(1.5*math.Sqrt(float64(batchSize))*float64(time.Millisecond))
	matrixWork(64)
	time.Sleep(latency)

	newBatch := batch.New()
	for j := 0; j < batchSize; j++ {
		req := b.Request(j)
		result := map[string]any{
			"class":      simClasses[rand.Intn(len(simClasses))],
			"confidence": 0.7 + rand.Float64()*0.29,
			"simulated":  true,
			"batch_pos":  j,
		}
		data, err := json.Marshal(result)
		if err != nil {
			req.RunCallbackError("gpu_sim", err.Error())
			continue
		}

		newReq := req.Propagate()
		newReq.AddInput(request.NewOwnedInput(types.NewTensor("output", []uint64{uint64(len(data))}, types.Bytes), data))
		newBatch.AddRequest(newReq, "gpu_sim", b.StartTime(j))
	}
	return newBatch, nil
}

// matrixWork performs an NxN matrix multiply to create real, measurable
// CPU load standing in for an actual GPU kernel launch.
func matrixWork(n int) {
	a := make([][]float64, n)
	c := make([][]float64, n)
	for i := 0; i < n; i++ {
		a[i] = make([]float64, n)
		c[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			a[i][j] = rand.Float64()
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sum := 0.0
			for k := 0; k < n; k++ {
				sum += a[i][k] * a[k][j]
			}
			c[i][j] = sum
		}
	}
	_ = math.Sqrt(c[0][0])
}
