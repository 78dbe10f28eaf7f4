// Command loadtest drives concurrent inference traffic against a
// running amdinfer server, grounded on the teacher's
// scripts/loadtest.go, adapted from the router's fixed
// inference.v1.InferRequest shape to the generic pkg/client façade and
// the echo builtin worker.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amdinfer/amdinfer/pkg/client"
	"github.com/amdinfer/amdinfer/pkg/request"
	"github.com/amdinfer/amdinfer/pkg/types"
)

func main() {
	addr := flag.String("addr", "localhost:8081", "server gRPC address")
	endpoint := flag.String("endpoint", "", "endpoint to load-test; loads a fresh echo worker if empty")
	concurrency := flag.Int("concurrency", 50, "number of concurrent clients")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	batchSize := flag.Int("batch_size", 1, "echo worker batch_size to load, when --endpoint is empty")
	flag.Parse()

	log.Printf("🚀 Load test starting: addr=%s, concurrency=%d, duration=%v", *addr, *concurrency, *duration)

	c, err := client.DialGRPC(*addr)
	if err != nil {
		log.Fatalf("❌ failed to connect: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := client.WaitUntilServerReady(ctx, c); err != nil {
		log.Fatalf("❌ server never became ready: %v", err)
	}

	ep := *endpoint
	if ep == "" {
		params := types.NewParameterMap()
		params.Set("batch_size", int32(*batchSize))
		ep, err = c.WorkerLoad(ctx, "echo", params)
		if err != nil {
			log.Fatalf("❌ failed to load echo worker: %v", err)
		}
		defer c.WorkerUnload(context.Background(), ep)
		if err := client.WaitUntilModelReady(ctx, c, ep); err != nil {
			log.Fatalf("❌ model never became ready: %v", err)
		}
	}
	log.Printf("📊 targeting endpoint %q", ep)

	var (
		totalRequests atomic.Int64
		totalErrors   atomic.Int64
		mu            sync.Mutex
		latencies     []time.Duration
	)

	runCtx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			for {
				select {
				case <-runCtx.Done():
					return
				default:
				}

				req := echoRequest(uint32(clientID))
				reqStart := time.Now()
				resp, err := c.ModelInfer(runCtx, ep, req)
				if err != nil || (resp != nil && resp.IsError()) {
					totalErrors.Add(1)
					continue
				}
				elapsed := time.Since(reqStart)
				totalRequests.Add(1)

				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	mu.Lock()
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	mu.Unlock()

	total := totalRequests.Load()
	errors := totalErrors.Load()
	throughput := float64(total) / elapsed.Seconds()

	fmt.Println("\n═══════════════════════════════════════════════════")
	fmt.Println("   🏁 LOAD TEST RESULTS")
	fmt.Println("═══════════════════════════════════════════════════")
	fmt.Printf("   Duration:      %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("   Concurrency:   %d\n", *concurrency)
	fmt.Printf("   Total Reqs:    %d\n", total)
	if total+errors > 0 {
		fmt.Printf("   Errors:        %d (%.1f%%)\n", errors, float64(errors)/float64(total+errors)*100)
	}
	fmt.Printf("   Throughput:    %.1f req/sec\n", throughput)
	fmt.Println()

	if len(latencies) > 0 {
		fmt.Println("   📊 Latency Percentiles:")
		fmt.Printf("      p50:  %v\n", latencies[len(latencies)*50/100])
		fmt.Printf("      p95:  %v\n", latencies[len(latencies)*95/100])
		fmt.Printf("      p99:  %v\n", latencies[len(latencies)*99/100])
		fmt.Printf("      max:  %v\n", latencies[len(latencies)-1])
	}
	fmt.Println("═══════════════════════════════════════════════════")
}

func echoRequest(seed uint32) *request.Request {
	req := request.New("", nil)
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, seed)
	req.AddInput(request.NewOwnedInput(types.NewTensor("in", []uint64{1}, types.Uint32), data))
	return req
}
