package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/amdinfer/amdinfer/pkg/amderr"
	"github.com/amdinfer/amdinfer/pkg/pb"
	"github.com/amdinfer/amdinfer/pkg/request"
	"github.com/amdinfer/amdinfer/pkg/server"
	"github.com/amdinfer/amdinfer/pkg/types"
)

// HTTPClient is the remote HTTP implementation of Client: requests are
// serialized as JSON per spec.md §6's wire body (spec.md §4.5 "Remote
// clients serialize requests using an external wire codec... and call
// the server over sockets").
type HTTPClient struct {
	baseURL string
	hc      *http.Client
}

// NewHTTP builds an HTTPClient against baseURL (e.g. "http://host:8080").
func NewHTTP(baseURL string) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, hc: &http.Client{Timeout: 30 * time.Second}}
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return amderr.Wrap(amderr.InvalidArgument, "marshal request body", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return amderr.Wrap(amderr.InvalidArgument, "build http request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return amderr.Wrap(amderr.Connection, fmt.Sprintf("request to %s failed", path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var wireErr struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&wireErr)
		msg := wireErr.Error
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return amderr.New(amderr.BadStatus, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return amderr.Wrap(amderr.BadStatus, "decode response body", err)
	}
	return nil
}

func (c *HTTPClient) ServerLive(ctx context.Context) (bool, error) {
	err := c.doJSON(ctx, http.MethodGet, "/v1/server/live", nil, nil)
	return err == nil, errToBool(err)
}

func (c *HTTPClient) ServerReady(ctx context.Context) (bool, error) {
	err := c.doJSON(ctx, http.MethodGet, "/v1/server/ready", nil, nil)
	return err == nil, errToBool(err)
}

// errToBool returns nil for a connection_error (readiness probes return
// false without throwing, spec.md §7), and propagates any other error.
func errToBool(err error) error {
	if err == nil {
		return nil
	}
	if kind, ok := amderr.KindOf(err); ok && kind == amderr.Connection {
		return nil
	}
	return err
}

func (c *HTTPClient) ServerMetadata(ctx context.Context) (server.Metadata, error) {
	var md server.Metadata
	err := c.doJSON(ctx, http.MethodGet, "/v1/server/metadata", nil, &md)
	return md, err
}

func (c *HTTPClient) ModelReady(ctx context.Context, endpoint string) (bool, error) {
	var out struct {
		Ready bool `json:"ready"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/v1/models/"+endpoint+"/ready", nil, &out)
	if err != nil {
		return false, errToBool(err)
	}
	return out.Ready, nil
}

func (c *HTTPClient) ModelList(ctx context.Context) ([]string, error) {
	var out []string
	err := c.doJSON(ctx, http.MethodGet, "/v1/models", nil, &out)
	return out, err
}

func (c *HTTPClient) WorkerLoad(ctx context.Context, name string, params *types.ParameterMap) (string, error) {
	var out struct {
		Endpoint string `json:"endpoint"`
	}
	body := map[string]any{"name": name, "parameters": paramsToMap(params)}
	err := c.doJSON(ctx, http.MethodPost, "/v1/workers/load", body, &out)
	return out.Endpoint, err
}

func (c *HTTPClient) WorkerUnload(ctx context.Context, endpoint string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/workers/unload/"+endpoint, nil, nil)
}

func (c *HTTPClient) ModelLoad(ctx context.Context, model string, params *types.ParameterMap) (string, error) {
	return c.WorkerLoad(ctx, model, params)
}

func (c *HTTPClient) ModelUnload(ctx context.Context, endpoint string) error {
	return c.WorkerUnload(ctx, endpoint)
}

func (c *HTTPClient) ModelInfer(ctx context.Context, endpoint string, req *request.Request) (*request.Response, error) {
	wireReq := pb.FromRequest(req)
	var wireResp pb.Response
	if err := c.doJSON(ctx, http.MethodPost, "/v1/models/"+endpoint+"/infer", wireReq, &wireResp); err != nil {
		return nil, err
	}
	return pb.ToResponse(wireResp)
}

// ModelInferAsync issues the (synchronous) HTTP call on a separate
// goroutine so the caller gets a Future immediately, matching the other
// transports' async contract even though the HTTP transport itself has
// no native async primitive (spec.md §4.5).
func (c *HTTPClient) ModelInferAsync(ctx context.Context, endpoint string, req *request.Request) (*Future, error) {
	f := &Future{ch: make(chan *request.Response, 1)}
	go func() {
		resp, err := c.ModelInfer(ctx, endpoint, req)
		if err != nil {
			resp = request.NewErrorResponse(req.ID, endpoint, err.Error())
		}
		f.ch <- resp
	}()
	return f, nil
}

func paramsToMap(p *types.ParameterMap) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, p.Len())
	for _, k := range p.Keys() {
		v, _ := p.Get(k)
		out[k] = v
	}
	return out
}
