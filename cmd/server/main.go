// Command server hosts the full inference-serving core — endpoint
// manager, batching, and the HTTP/gRPC/WebSocket transports — in a
// single process, grounded on the teacher's separate
// cmd/router/main.go and cmd/worker/main.go entrypoints, combined here
// per spec.md §1's single-process core.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amdinfer/amdinfer/pkg/buffer"
	"github.com/amdinfer/amdinfer/pkg/config"
	"github.com/amdinfer/amdinfer/pkg/server"
	"github.com/amdinfer/amdinfer/pkg/telemetry"
	"github.com/amdinfer/amdinfer/pkg/worker"
	_ "github.com/amdinfer/amdinfer/pkg/worker/builtin"
)

var cfgFile string

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	root := &cobra.Command{
		Use:   "server",
		Short: "amdinfer inference-serving core",
		RunE:  run,
	}
	root.Flags().StringVar(&cfgFile, "config", "", "path to config file (default: ./amdinfer.yaml if present)")

	if err := root.Execute(); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	log.Printf("🧠 amdinfer starting: http=%d grpc=%d", cfg.Server.HTTPPort, cfg.Server.GRPCPort)
	log.Printf("   known workers: %v", worker.Known())

	ctx := context.Background()
	provider, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Tracing.Enabled,
		Exporter:    cfg.Telemetry.Tracing.Exporter,
		Endpoint:    cfg.Telemetry.Tracing.Endpoint,
		SampleRate:  cfg.Telemetry.Tracing.SampleRate,
		ServiceName: "amdinfer",
		Insecure:    cfg.Telemetry.Tracing.Insecure,
	})
	if err != nil {
		return err
	}

	pool := buffer.NewMemoryPool()
	pool.Register(buffer.Cpu)
	pool.Register(buffer.CpuPinned)

	s := server.New(cfg, pool, provider)
	if err := s.StartHTTP(); err != nil {
		return err
	}
	log.Printf("📊 HTTP/WebSocket listening on %s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	if err := s.StartGRPC(); err != nil {
		return err
	}
	log.Printf("🚀 gRPC listening on %s:%d", cfg.Server.Host, cfg.Server.GRPCPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 shutting down")
	if err := s.StopGRPC(); err != nil {
		log.Printf("⚠️  grpc shutdown: %v", err)
	}
	if err := s.StopHTTP(); err != nil {
		log.Printf("⚠️  http shutdown: %v", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := provider.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  telemetry shutdown: %v", err)
	}
	log.Println("✅ stopped")
	return nil
}
