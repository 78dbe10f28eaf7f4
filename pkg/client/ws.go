package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/amdinfer/amdinfer/pkg/amderr"
	"github.com/amdinfer/amdinfer/pkg/pb"
	"github.com/amdinfer/amdinfer/pkg/request"
	"github.com/amdinfer/amdinfer/pkg/server"
	"github.com/amdinfer/amdinfer/pkg/types"
)

// wsEnvelope frames every message exchanged over the WebSocket client's
// single persistent connection: an operation tag, a correlation id the
// server echoes back, and the JSON-encoded payload appropriate to Op.
type wsEnvelope struct {
	ID      string          `json:"id"`
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload"`
}

// WSClient is the remote WebSocket implementation of Client, grounded
// on the teacher's gorilla/websocket dashboard transport
// (pkg/router/broadcast.go) repurposed from one-way state broadcast
// into a request/response multiplexer keyed by correlation id.
type WSClient struct {
	conn *websocket.Conn

	mu      sync.Mutex
	pending map[string]chan wsEnvelope
}

// DialWS opens a WebSocket connection to the server's infer endpoint.
func DialWS(url string) (*WSClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, amderr.Wrap(amderr.Connection, fmt.Sprintf("dial %s failed", url), err)
	}
	c := &WSClient{conn: conn, pending: make(map[string]chan wsEnvelope)}
	go c.readLoop()
	return c, nil
}

func (c *WSClient) readLoop() {
	for {
		var env wsEnvelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.mu.Lock()
			for _, ch := range c.pending {
				close(ch)
			}
			c.pending = make(map[string]chan wsEnvelope)
			c.mu.Unlock()
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		if ok {
			delete(c.pending, env.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- env
		}
	}
}

func (c *WSClient) call(ctx context.Context, op string, payload any) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, amderr.Wrap(amderr.InvalidArgument, "marshal payload", err)
	}

	id := uuid.NewString()
	ch := make(chan wsEnvelope, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.conn.WriteJSON(wsEnvelope{ID: id, Op: op, Payload: data}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, amderr.Wrap(amderr.Connection, "write failed", err)
	}

	select {
	case env, ok := <-ch:
		if !ok {
			return nil, amderr.New(amderr.Connection, "connection closed before response")
		}
		return env.Payload, nil
	case <-ctx.Done():
		return nil, amderr.Wrap(amderr.Connection, "call: context ended", ctx.Err())
	}
}

// Close ends the connection.
func (c *WSClient) Close() error { return c.conn.Close() }

func (c *WSClient) ServerLive(ctx context.Context) (bool, error) {
	_, err := c.call(ctx, "server_metadata", pb.Empty{})
	return err == nil, errToBool(err)
}

func (c *WSClient) ServerReady(ctx context.Context) (bool, error) {
	_, err := c.call(ctx, "server_metadata", pb.Empty{})
	return err == nil, errToBool(err)
}

func (c *WSClient) ServerMetadata(ctx context.Context) (server.Metadata, error) {
	raw, err := c.call(ctx, "server_metadata", pb.Empty{})
	if err != nil {
		return server.Metadata{}, err
	}
	var md server.Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return server.Metadata{}, amderr.Wrap(amderr.BadStatus, "decode server metadata", err)
	}
	return md, nil
}

func (c *WSClient) ModelReady(ctx context.Context, endpoint string) (bool, error) {
	raw, err := c.call(ctx, "model_ready", pb.EndpointRequest{Endpoint: endpoint})
	if err != nil {
		return false, errToBool(err)
	}
	var out pb.ModelReadyResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return false, amderr.Wrap(amderr.BadStatus, "decode model_ready", err)
	}
	return out.Ready, nil
}

func (c *WSClient) ModelList(ctx context.Context) ([]string, error) {
	raw, err := c.call(ctx, "model_list", pb.Empty{})
	if err != nil {
		return nil, err
	}
	var out pb.ModelListResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, amderr.Wrap(amderr.BadStatus, "decode model_list", err)
	}
	return out.Models, nil
}

func (c *WSClient) WorkerLoad(ctx context.Context, name string, params *types.ParameterMap) (string, error) {
	raw, err := c.call(ctx, "worker_load", pb.WorkerLoadRequest{Name: name, Parameters: paramsToMap(params)})
	if err != nil {
		return "", err
	}
	var out pb.WorkerLoadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", amderr.Wrap(amderr.BadStatus, "decode worker_load", err)
	}
	return out.Endpoint, nil
}

func (c *WSClient) WorkerUnload(ctx context.Context, endpoint string) error {
	_, err := c.call(ctx, "worker_unload", pb.EndpointRequest{Endpoint: endpoint})
	return err
}

func (c *WSClient) ModelLoad(ctx context.Context, model string, params *types.ParameterMap) (string, error) {
	return c.WorkerLoad(ctx, model, params)
}

func (c *WSClient) ModelUnload(ctx context.Context, endpoint string) error {
	return c.WorkerUnload(ctx, endpoint)
}

func (c *WSClient) ModelInfer(ctx context.Context, endpoint string, req *request.Request) (*request.Response, error) {
	raw, err := c.call(ctx, "infer", pb.InferEnvelope{Endpoint: endpoint, Request: pb.FromRequest(req)})
	if err != nil {
		return nil, err
	}
	var out pb.Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, amderr.Wrap(amderr.BadStatus, "decode infer response", err)
	}
	return pb.ToResponse(out)
}

// ModelInferAsync issues the call on a separate goroutine; the
// underlying connection already multiplexes concurrent calls by
// correlation id, so this simply frees the caller from blocking.
func (c *WSClient) ModelInferAsync(ctx context.Context, endpoint string, req *request.Request) (*Future, error) {
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
