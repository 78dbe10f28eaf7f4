// Package registry implements the endpoint manager of spec.md §4.4: it
// turns workerLoad/workerUnload/modelInfer(Async)/loadEnsemble calls
// into WorkerInfo lifecycles, grounded on the teacher's remote-worker
// Registry (pkg/router/registry.go) repurposed from tracking remote
// gRPC worker health to tracking in-process WorkerInfo ref-counts and
// sharing.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/amdinfer/amdinfer/pkg/amderr"
	"github.com/amdinfer/amdinfer/pkg/batcher"
	"github.com/amdinfer/amdinfer/pkg/buffer"
	"github.com/amdinfer/amdinfer/pkg/metrics"
	"github.com/amdinfer/amdinfer/pkg/request"
	"github.com/amdinfer/amdinfer/pkg/telemetry"
	"github.com/amdinfer/amdinfer/pkg/types"
	"github.com/amdinfer/amdinfer/pkg/winfo"
)

// sharingIgnorableKeys are the reserved parameter keys spec.md §4.4
// excludes from the sharing-identity quotient: they govern sharing and
// chaining themselves rather than the worker's own configuration.
var sharingIgnorableKeys = map[string]bool{"share": true, "next": true}

// Registry is the endpoint manager: the single owner of every live
// WorkerInfo, keyed by its unique endpoint string.
type Registry struct {
	mu   sync.RWMutex
	pool *buffer.MemoryPool

	metrics *metrics.Metrics
	tracer  *telemetry.Provider

	endpoints map[string]*winfo.WorkerInfo
	shared    map[string]string // sharing key -> endpoint, for share==true reuse
}

// New returns an empty registry backed by pool. m and tracer may be
// nil, in which case endpoints it constructs record no metrics and
// start no spans (spec.md §4.8).
func New(pool *buffer.MemoryPool, m *metrics.Metrics, tracer *telemetry.Provider) *Registry {
	return &Registry{
		pool:      pool,
		metrics:   m,
		tracer:    tracer,
		endpoints: make(map[string]*winfo.WorkerInfo),
		shared:    make(map[string]string),
	}
}

// WorkerLoad implements spec.md §4.4 workerLoad: it resolves name via
// the worker registry, shares an existing endpoint when params.share is
// true (the default) and a matching one already exists, and otherwise
// constructs, starts, and registers a fresh WorkerInfo under a unique
// endpoint name.
func (r *Registry) WorkerLoad(name string, params *types.ParameterMap) (string, error) {
	if params == nil {
		params = types.NewParameterMap()
	}
	share := params.GetBool("share", true)
	key := sharingKey(name, params)

	r.mu.Lock()
	defer r.mu.Unlock()

	if share {
		if endpoint, ok := r.shared[key]; ok {
			r.endpoints[endpoint].IncRef()
			return endpoint, nil
		}
	}

	var next *winfo.WorkerInfo
	if nextEndpoint := params.GetString("next", ""); nextEndpoint != "" {
		wi, ok := r.endpoints[nextEndpoint]
		if !ok {
			return "", amderr.New(amderr.InvalidArgument, fmt.Sprintf("unknown next endpoint %q", nextEndpoint))
		}
		next = wi
	}

	cfg := winfo.Config{
		Batchers:  params.GetInt32("batchers", 1),
		Workers:   params.GetInt32("workers", 1),
		BatchSize: params.GetInt32("batch_size", 1),
		Timeout:   time.Duration(params.GetInt32("timeout", 100)) * time.Millisecond,
		Hard:      params.GetBool("hard", false),
	}

	endpoint := r.nextEndpoint(name)
	wi, err := winfo.New(endpoint, name, params, cfg, r.pool, next, r.metrics, r.tracer)
	if err != nil {
		return "", err
	}
	wi.Start()

	r.endpoints[endpoint] = wi
	if share {
		r.shared[key] = endpoint
	}
	return endpoint, nil
}

// WorkerUnload implements spec.md §4.4 workerUnload: decrement the
// endpoint's ref-count, and on reaching zero, stop its threads (which
// flushes, joins, and runs doRelease/doDestroy via WorkerInfo.Stop) and
// remove it from the registry.
func (r *Registry) WorkerUnload(endpoint string) error {
	r.mu.Lock()
	wi, ok := r.endpoints[endpoint]
	if !ok {
		r.mu.Unlock()
		return amderr.New(amderr.InvalidArgument, fmt.Sprintf("unknown endpoint %q", endpoint))
	}
	remaining := wi.DecRef()
	if remaining > 0 {
		r.mu.Unlock()
		return nil
	}
	delete(r.endpoints, endpoint)
	for key, ep := range r.shared {
		if ep == endpoint {
			delete(r.shared, key)
		}
	}
	r.mu.Unlock()

	wi.Stop()
	return nil
}

// ModelReady reports whether endpoint names a currently loaded
// WorkerInfo. Since WorkerLoad only returns after doAcquire has
// completed on every instance, presence in the registry is sufficient.
func (r *Registry) ModelReady(endpoint string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.endpoints[endpoint]
	return ok
}

// ModelList returns every currently loaded endpoint.
func (r *Registry) ModelList() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.endpoints))
	for ep := range r.endpoints {
		out = append(out, ep)
	}
	sort.Strings(out)
	return out
}

// QueueDepths returns the current ingress queue depth of every loaded
// endpoint, for the dashboard broadcaster / metrics gauge.
func (r *Registry) QueueDepths() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.endpoints))
	for ep, wi := range r.endpoints {
		out[ep] = wi.QueueDepth()
	}
	return out
}

// ModelInferAsync implements spec.md §4.4 modelInfer(Async): it enqueues
// req onto the ingress queue of the chain head named by endpoint. The
// request's own callback (set at construction) is what eventually
// delivers the response.
func (r *Registry) ModelInferAsync(endpoint string, req *request.Request) error {
	r.mu.RLock()
	wi, ok := r.endpoints[endpoint]
	r.mu.RUnlock()
	if !ok {
		return amderr.New(amderr.InvalidArgument, fmt.Sprintf("unknown endpoint %q", endpoint))
	}
	wi.Submit(&batcher.PendingRequest{Req: req, Model: endpoint, EnqueueAt: time.Now()})
	return nil
}

// ModelInfer is the blocking counterpart of ModelInferAsync: it installs
// a callback that delivers onto a channel and waits for either the
// response or ctx to end.
func (r *Registry) ModelInfer(ctx context.Context, endpoint string, req *request.Request) (*request.Response, error) {
	done := make(chan *request.Response, 1)
	req.SetCallback(func(resp *request.Response) { done <- resp })

	if err := r.ModelInferAsync(endpoint, req); err != nil {
		return nil, err
	}

	select {
	case resp := <-done:
		return resp, nil
	case <-ctx.Done():
		return nil, amderr.Wrap(amderr.Connection, "modelInfer: context ended before response", ctx.Err())
	}
}

// LoadEnsemble implements spec.md §4.4 loadEnsemble: it builds the chain
// right-to-left, attaching the built-in "responder" worker as the true
// terminal stage (spec.md §4.3 "used as the final stage of every
// ensemble chain whose real workers do not themselves call callbacks"),
// then loading each listed worker with params.next pointing at the
// previously loaded (more-downstream) endpoint. It returns one endpoint
// per entry in names, in the same order; clients submit to endpoints[0].
func (r *Registry) LoadEnsemble(names []string, params *types.ParameterMap) ([]string, error) {
	if params == nil {
		params = types.NewParameterMap()
	}

	responderEndpoint, err := r.WorkerLoad("responder", types.NewParameterMap())
	if err != nil {
		return nil, err
	}

	endpoints := make([]string, len(names))
	prev := responderEndpoint
	for i := len(names) - 1; i >= 0; i-- {
		stageParams := params.Clone()
		stageParams.Set("next", prev)
		ep, err := r.WorkerLoad(names[i], stageParams)
		if err != nil {
			return nil, err
		}
		endpoints[i] = ep
		prev = ep
	}
	return endpoints, nil
}

// nextEndpoint returns name suffixed with the lowest unused
// non-negative integer (spec.md §6): after echo-0 is unloaded, a fresh
// load of echo reuses "echo-0" rather than advancing past it.
func (r *Registry) nextEndpoint(name string) string {
	for n := 0; ; n++ {
		candidate := fmt.Sprintf("%s-%d", name, n)
		if _, ok := r.endpoints[candidate]; !ok {
			return candidate
		}
	}
}

// sharingKey canonicalizes (name, params) modulo the sharing-ignorable
// keys into a string suitable for equality comparison.
func sharingKey(name string, params *types.ParameterMap) string {
	keys := params.Keys()
	sort.Strings(keys)
	key := name
	for _, k := range keys {
		if sharingIgnorableKeys[k] {
			continue
		}
		v, _ := params.Get(k)
		key += fmt.Sprintf(";%s=%v", k, v)
	}
	return key
}
