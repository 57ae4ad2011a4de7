// Package api exposes the membership registry over JSON-RPC 2.0 (HTTP) and
// WebSocket subscriptions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"membership-registry/internal/accounts"
	"membership-registry/internal/observability"
	"membership-registry/internal/rpc"
	"membership-registry/internal/runtime"
	"membership-registry/internal/storage"
)

// DefaultMaxBodyBytes caps the size of a JSON-RPC request body.
const DefaultMaxBodyBytes = 1 << 20

// ServerOptions contains configuration for creating a Server.
type ServerOptions struct {
	Executor     *runtime.Executor
	Ledger       storage.Ledger
	EventStore   storage.EventStore // optional; getMembershipEvents fails without it
	Hub          *Hub               // optional; /ws is not served without it
	Logger       *log.Logger
	MaxBodyBytes int64
}

type handlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Server handles JSON-RPC requests.
type Server struct {
	exec         *runtime.Executor
	ledger       storage.Ledger
	reader       *accounts.Reader
	events       storage.EventStore
	hub          *Hub
	logger       *log.Logger
	maxBodyBytes int64
	methods      map[string]handlerFunc
}

// NewServer creates a new Server.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Executor == nil {
		return nil, errors.New("api: executor is required")
	}
	if opts.Ledger == nil {
		return nil, errors.New("api: ledger is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	s := &Server{
		exec:         opts.Executor,
		ledger:       opts.Ledger,
		reader:       accounts.NewReader(opts.Ledger),
		events:       opts.EventStore,
		hub:          opts.Hub,
		logger:       logger,
		maxBodyBytes: maxBody,
	}
	s.methods = map[string]handlerFunc{
		rpc.MethodSendTransaction:     s.sendTransaction,
		rpc.MethodGetTransaction:      s.getTransaction,
		rpc.MethodGetMembership:       s.getMembership,
		rpc.MethodGetAuthority:        s.getAuthority,
		rpc.MethodGetMint:             s.getMint,
		rpc.MethodGetTokenAccount:     s.getTokenAccount,
		rpc.MethodGetMembershipEvents: s.getMembershipEvents,
		rpc.MethodDeriveAddresses:     s.deriveAddresses,
		rpc.MethodGetSlot:             s.getSlot,
	}
	return s, nil
}

// Handler returns the HTTP routes: JSON-RPC on POST /, subscriptions on
// /ws, plus /health and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{$}", s.handleRPC)
	if s.hub != nil {
		mux.Handle("GET /ws", s.hub)
	}
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", observability.Handler())
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	slot, err := s.ledger.CurrentSlot(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "unavailable", "error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "slot": slot})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		s.writeError(w, nil, rpc.NewError(rpc.CodeInvalidRequest, "read body: %v", err))
		return
	}

	var req rpc.Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, nil, rpc.NewError(rpc.CodeParseError, "parse request: %v", err))
		return
	}
	if req.JSONRPC != rpc.Version || req.Method == "" {
		s.writeError(w, req.ID, rpc.NewError(rpc.CodeInvalidRequest, "invalid request"))
		return
	}

	start := time.Now()
	result, rpcErr := s.dispatch(r.Context(), req.Method, req.Params)

	status := "ok"
	if rpcErr != nil {
		status = "error"
	}
	observability.RecordRPC(req.Method, status, time.Since(start).Seconds())

	if rpcErr != nil {
		if rpcErr.Code == rpc.CodeInternalError {
			s.logger.Printf("%s: %s", req.Method, rpcErr.Message)
		}
		s.writeError(w, req.ID, rpcErr)
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		s.writeError(w, req.ID, rpc.NewError(rpc.CodeInternalError, "marshal result: %v", err))
		return
	}
	s.write(w, rpc.Response{JSONRPC: rpc.Version, ID: req.ID, Result: raw})
}

func (s *Server) dispatch(ctx context.Context, method string, params json.RawMessage) (any, *rpc.Error) {
	handler, ok := s.methods[method]
	if !ok {
		return nil, rpc.NewError(rpc.CodeMethodNotFound, "method not found: %s", method)
	}
	result, err := handler(ctx, params)
	if err != nil {
		return nil, rpc.FromError(err)
	}
	return result, nil
}

func (s *Server) writeError(w http.ResponseWriter, id json.RawMessage, rpcErr *rpc.Error) {
	s.write(w, rpc.Response{JSONRPC: rpc.Version, ID: nullID(id), Error: rpcErr})
}

func (s *Server) write(w http.ResponseWriter, resp rpc.Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Printf("write response: %v", err)
	}
}

func nullID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

// decodeParams unmarshals a positional params array into targets. The first
// required targets must be present; the rest are optional.
func decodeParams(params json.RawMessage, required int, targets ...any) error {
	var raw []json.RawMessage
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &raw); err != nil {
			return rpc.NewError(rpc.CodeInvalidParams, "params must be an array: %v", err)
		}
	}
	if len(raw) < required {
		return rpc.NewError(rpc.CodeInvalidParams, "expected at least %d params, got %d", required, len(raw))
	}
	if len(raw) > len(targets) {
		return rpc.NewError(rpc.CodeInvalidParams, "expected at most %d params, got %d", len(targets), len(raw))
	}
	for i, r := range raw {
		if err := json.Unmarshal(r, targets[i]); err != nil {
			return rpc.NewError(rpc.CodeInvalidParams, "param %d: %v", i, err)
		}
	}
	return nil
}
