package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amdinfer/amdinfer/pkg/amderr"
	"github.com/amdinfer/amdinfer/pkg/pb"
	"github.com/amdinfer/amdinfer/pkg/types"
)

// registerHTTP wires the REST+WebSocket surface onto mux, mirroring the
// operations of the Client façade (spec.md §4.5) as plain JSON over
// HTTP: server liveness/readiness/metadata, model list/ready, worker
// load/unload, and blocking infer.
func (s *Server) registerHTTP(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.broadcaster.HandleWS)
	mux.HandleFunc("/v1/ws/rpc", s.handleWSRPC)

	mux.HandleFunc("/v1/server/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/server/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/server/metadata", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Metadata())
	})

	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.registry.ModelList())
	})

	mux.HandleFunc("/v1/workers/load", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Name   string         `json:"name"`
			Params map[string]any `json:"parameters"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeErr(w, amderr.Wrap(amderr.InvalidArgument, "malformed request body", err))
			return
		}
		endpoint, err := s.registry.WorkerLoad(body.Name, paramsFromJSON(body.Params))
		if err != nil {
			writeErr(w, err)
			return
		}
		s.metrics.RecordLoad(body.Name)
		writeJSON(w, http.StatusOK, map[string]string{"endpoint": endpoint})
	})

	mux.HandleFunc("/v1/workers/unload/", func(w http.ResponseWriter, r *http.Request) {
		endpoint := strings.TrimPrefix(r.URL.Path, "/v1/workers/unload/")
		if err := s.registry.WorkerUnload(endpoint); err != nil {
			writeErr(w, err)
			return
		}
		s.metrics.RecordUnload(endpoint)
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/v1/models/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/v1/models/")
		switch {
		case strings.HasSuffix(rest, "/ready"):
			endpoint := strings.TrimSuffix(rest, "/ready")
			writeJSON(w, http.StatusOK, map[string]bool{"ready": s.registry.ModelReady(endpoint)})
		case strings.HasSuffix(rest, "/infer"):
			endpoint := strings.TrimSuffix(rest, "/infer")
			s.handleInfer(w, r, endpoint)
		default:
			http.NotFound(w, r)
		}
	})
}

func (s *Server) handleInfer(w http.ResponseWriter, r *http.Request, endpoint string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var wireReq pb.Request
	if err := json.NewDecoder(r.Body).Decode(&wireReq); err != nil {
		writeErr(w, amderr.Wrap(amderr.InvalidArgument, "malformed request body", err))
		return
	}
	if wireReq.ID == "" {
		wireReq.ID = uuid.NewString()
	}

	req, err := pb.ToRequest(wireReq, nil)
	if err != nil {
		writeErr(w, amderr.Wrap(amderr.InvalidArgument, "malformed tensor", err))
		return
	}

	s.metrics.RecordRequest(endpoint)
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	resp, err := s.registry.ModelInfer(ctx, endpoint, req)
	if err != nil {
		writeErr(w, err)
		return
	}
	if resp.IsError() {
		if kind, ok := amderr.KindOf(err); ok {
			s.metrics.RecordRequestError(endpoint, kind.String())
		} else {
			s.metrics.RecordRequestError(endpoint, amderr.Runtime.String())
		}
	}
	writeJSON(w, http.StatusOK, pb.FromResponse(resp))
}

func paramsFromJSON(m map[string]any) *types.ParameterMap {
	p := types.NewParameterMap()
	for k, v := range m {
		switch n := v.(type) {
		case float64:
			if n == float64(int32(n)) {
				p.Set(k, int32(n))
			} else {
				p.Set(k, n)
			}
		default:
			p.Set(k, v)
		}
	}
	return p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeErr maps an amderr.Kind onto the wire error field and an HTTP
// status, per spec.md §7 "converted to the wire error field".
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if kind, ok := amderr.KindOf(err); ok {
		switch kind {
		case amderr.InvalidArgument:
			status = http.StatusBadRequest
		case amderr.FileNotFound:
			status = http.StatusNotFound
		case amderr.Connection:
			status = http.StatusServiceUnavailable
		case amderr.BadStatus:
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
