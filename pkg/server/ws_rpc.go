package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/amdinfer/amdinfer/pkg/amderr"
	"github.com/amdinfer/amdinfer/pkg/pb"
)

// wsEnvelope mirrors pkg/client's wire framing for the WebSocket
// implementation of Client: an operation tag, a correlation id, and a
// JSON payload (spec.md §4.5 "WebSocket" transport).
type wsEnvelope struct {
	ID      string          `json:"id"`
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload"`
}

// handleWSRPC upgrades to a WebSocket and serves Client-façade RPCs
// multiplexed by correlation id over a single connection, as opposed to
// the one-way dashboard broadcaster on /ws.
func (s *Server) handleWSRPC(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var env wsEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		out, rpcErr := s.dispatchWSOp(ctx, env.Op, env.Payload)
		cancel()

		var payload json.RawMessage
		if rpcErr != nil {
			payload, _ = json.Marshal(map[string]string{"error": rpcErr.Error()})
		} else {
			payload, _ = json.Marshal(out)
		}
		if err := conn.WriteJSON(wsEnvelope{ID: env.ID, Op: env.Op, Payload: payload}); err != nil {
			return
		}
	}
}

func (s *Server) dispatchWSOp(ctx context.Context, op string, raw json.RawMessage) (any, error) {
	switch op {
	case "server_metadata":
		return s.Metadata(), nil

	case "model_ready":
		var in pb.EndpointRequest
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, amderr.Wrap(amderr.InvalidArgument, "decode model_ready", err)
		}
		return pb.ModelReadyResponse{Ready: s.registry.ModelReady(in.Endpoint)}, nil

	case "model_list":
		return pb.ModelListResponse{Models: s.registry.ModelList()}, nil

	case "worker_load":
		var in pb.WorkerLoadRequest
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, amderr.Wrap(amderr.InvalidArgument, "decode worker_load", err)
		}
		endpoint, err := s.registry.WorkerLoad(in.Name, paramsFromJSON(in.Parameters))
		if err != nil {
			return nil, err
		}
		s.metrics.RecordLoad(in.Name)
		return pb.WorkerLoadResponse{Endpoint: endpoint}, nil

	case "worker_unload":
		var in pb.EndpointRequest
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, amderr.Wrap(amderr.InvalidArgument, "decode worker_unload", err)
		}
		if err := s.registry.WorkerUnload(in.Endpoint); err != nil {
			return nil, err
		}
		s.metrics.RecordUnload(in.Endpoint)
		return pb.Empty{}, nil

	case "infer":
		var in pb.InferEnvelope
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, amderr.Wrap(amderr.InvalidArgument, "decode infer", err)
		}
		req, err := pb.ToRequest(in.Request, nil)
		if err != nil {
			return nil, amderr.Wrap(amderr.InvalidArgument, "malformed tensor", err)
		}
		s.metrics.RecordRequest(in.Endpoint)
		resp, err := s.registry.ModelInfer(ctx, in.Endpoint, req)
		if err != nil {
			return nil, err
		}
		return pb.FromResponse(resp), nil

	default:
		return nil, amderr.New(amderr.InvalidArgument, "unknown op "+op)
	}
}
