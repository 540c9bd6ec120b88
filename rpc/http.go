package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"proofcart/core/events"
	"proofcart/ledger"
	"proofcart/native/escrow"
	"proofcart/native/registry"
	"proofcart/observability/metrics"
	"proofcart/rpc/middleware"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeUnauthorized   = -32001
	codeServerError    = -32000

	codeInvalidParams  = -32021
	codeNotFound       = -32022
	codeForbidden      = -32023
	codeConflict       = -32024
	codeInternal       = -32025
	codeTransferFailed = -32026
)

// Server exposes the escrow engine and the product registry over JSON-RPC.
type Server struct {
	escrow    *escrow.Engine
	registry  *registry.Engine
	ledger    *ledger.Ledger
	events    *events.Recorder
	logger    *slog.Logger
	metrics   *metrics.EscrowMetrics
	authToken string
}

// NewServer wires the RPC surface. authToken guards mutating methods; an
// empty token disables them entirely.
func NewServer(esc *escrow.Engine, reg *registry.Engine, led *ledger.Ledger, rec *events.Recorder, logger *slog.Logger, authToken string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		escrow:    esc,
		registry:  reg,
		ledger:    led,
		events:    rec,
		logger:    logger,
		metrics:   metrics.Escrow(),
		authToken: strings.TrimSpace(authToken),
	}
}

// Handler builds the HTTP routing tree. Extra middlewares (rate limiting,
// JWT auth) wrap the /rpc endpoint only, so health and metrics stay open.
func (s *Server) Handler(mws ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(gr chi.Router) {
		for _, mw := range mws {
			gr.Use(mw)
		}
		logged := middleware.RequestLogger(s.logger)(http.HandlerFunc(s.handle))
		gr.Method(http.MethodPost, "/rpc", otelhttp.NewHandler(logged, "rpc"))
	})
	return r
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "read request", err.Error())
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request too large", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", nil)
		return
	}

	switch req.Method {
	// escrow: mutating
	case "escrow_create":
		s.withAuth(w, r, &req, s.handleEscrowCreate)
	case "escrow_confirmRelease":
		s.withAuth(w, r, &req, s.handleEscrowConfirmRelease)
	case "escrow_lock":
		s.withAuth(w, r, &req, s.handleEscrowLock)
	case "escrow_flagDispute":
		s.withAuth(w, r, &req, s.handleEscrowFlagDispute)
	case "escrow_resolveRefund":
		s.withAuth(w, r, &req, s.handleEscrowResolveRefund)
	case "escrow_resolveRelease":
		s.withAuth(w, r, &req, s.handleEscrowResolveRelease)
	// escrow: read-only
	case "escrow_get":
		s.handleEscrowGet(w, &req)
	case "escrow_listByParticipant":
		s.handleEscrowList(w, &req)
	case "escrow_listEvents":
		s.handleListEvents(w, &req)
	// registry
	case "registry_mint":
		s.withAuth(w, r, &req, s.handleRegistryMint)
	case "registry_transfer":
		s.withAuth(w, r, &req, s.handleRegistryTransfer)
	case "registry_get":
		s.handleRegistryGet(w, &req)
	case "registry_verify":
		s.handleRegistryVerify(w, &req)
	case "registry_batchVerify":
		s.handleRegistryBatchVerify(w, &req)
	case "registry_tokensOf":
		s.handleRegistryTokensOf(w, &req)
	case "registry_history":
		s.handleRegistryHistory(w, &req)
	case "registry_total":
		s.handleRegistryTotal(w, &req)
	// ledger
	case "ledger_getBalance":
		s.handleLedgerBalance(w, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

func (s *Server) withAuth(w http.ResponseWriter, r *http.Request, req *RPCRequest, next func(http.ResponseWriter, *RPCRequest)) {
	if err := s.requireAuth(r); err != nil {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, err.Error(), nil)
		return
	}
	next(w, req)
}

type authError struct{ msg string }

func (e *authError) Error() string { return e.msg }

func (s *Server) requireAuth(r *http.Request) error {
	if s.authToken == "" {
		return &authError{msg: "mutating methods disabled: no auth token configured"}
	}
	token := extractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return &authError{msg: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &authError{msg: "invalid bearer token"}
	}
	return nil
}

func extractBearerToken(header string) string {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return ""
	}
	parts := strings.SplitN(trimmed, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// singleParam decodes the request's single parameter object into dst.
func singleParam(req *RPCRequest, dst interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "invalid_params", Data: "exactly one parameter object expected"}
	}
	if err := json.Unmarshal(req.Params[0], dst); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid_params", Data: err.Error()}
	}
	return nil
}
