package rpc

import (
	"errors"
	"net/http"
	"strings"

	"proofcart/native/escrow"
)

type escrowCreateParams struct {
	Buyer   string `json:"buyer"`
	Seller  string `json:"seller"`
	OrderID string `json:"orderId"`
	Amount  string `json:"amount"`
}

type escrowActorParams struct {
	OrderID string `json:"orderId"`
	Caller  string `json:"caller"`
}

type escrowIDParams struct {
	OrderID string `json:"orderId"`
}

type escrowListParams struct {
	Participant string `json:"participant"`
}

type listEventsParams struct {
	Prefix string `json:"prefix,omitempty"`
	Limit  *int   `json:"limit,omitempty"`
}

type eventJSON struct {
	Sequence   int64             `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func (s *Server) handleEscrowCreate(w http.ResponseWriter, req *RPCRequest) {
	var params escrowCreateParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	esc, err := s.escrow.Create(buyer, params.OrderID, seller, amount)
	if err != nil {
		s.writeEscrowError(w, req.ID, "create", err)
		return
	}
	s.metrics.ObserveTransition("create")
	if esc.Status == escrow.StatusLocked {
		custodyHeld, _ := esc.Amount.Float64()
		s.metrics.AddCustodyHeld(custodyHeld)
	}
	writeResult(w, req.ID, s.formatEscrow(esc))
}

func (s *Server) handleEscrowConfirmRelease(w http.ResponseWriter, req *RPCRequest) {
	s.handleEscrowTransition(w, req, "confirm_release", s.escrow.ConfirmRelease)
}

func (s *Server) handleEscrowLock(w http.ResponseWriter, req *RPCRequest) {
	s.handleEscrowTransition(w, req, "lock_for_dispute", s.escrow.LockForDispute)
}

func (s *Server) handleEscrowFlagDispute(w http.ResponseWriter, req *RPCRequest) {
	s.handleEscrowTransition(w, req, "flag_dispute", s.escrow.FlagDispute)
}

func (s *Server) handleEscrowResolveRefund(w http.ResponseWriter, req *RPCRequest) {
	s.handleEscrowTransition(w, req, "resolve_refund", s.escrow.ResolveRefund)
}

func (s *Server) handleEscrowResolveRelease(w http.ResponseWriter, req *RPCRequest) {
	s.handleEscrowTransition(w, req, "resolve_release", s.escrow.ResolveRelease)
}

func (s *Server) handleEscrowTransition(w http.ResponseWriter, req *RPCRequest, op string, fn func(string, [20]byte) (*escrow.Escrow, error)) {
	var params escrowActorParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	orderID := strings.TrimSpace(params.OrderID)
	prior, _ := s.escrow.Get(orderID)
	esc, err := fn(orderID, caller)
	if err != nil {
		s.writeEscrowError(w, req.ID, op, err)
		return
	}
	s.metrics.ObserveTransition(op)
	s.observeDispute(prior, esc)
	s.observeSettlement(esc)
	writeResult(w, req.ID, s.formatEscrow(esc))
}

// observeDispute keeps the open-dispute gauge in step with transitions into
// and out of the disputed state.
func (s *Server) observeDispute(prior, current *escrow.Escrow) {
	if current == nil {
		return
	}
	wasDisputed := prior != nil && prior.Status == escrow.StatusDisputed
	isDisputed := current.Status == escrow.StatusDisputed
	switch {
	case isDisputed && !wasDisputed:
		s.metrics.AddOpenDisputes(1)
	case wasDisputed && !isDisputed:
		s.metrics.AddOpenDisputes(-1)
	}
}

// observeSettlement keeps the custody gauge in step with terminal transitions.
func (s *Server) observeSettlement(esc *escrow.Escrow) {
	if esc == nil || !esc.Status.Terminal() {
		return
	}
	released, _ := esc.Amount.Float64()
	s.metrics.AddCustodyHeld(-released)
}

func (s *Server) handleEscrowGet(w http.ResponseWriter, req *RPCRequest) {
	var params escrowIDParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	esc, err := s.escrow.Get(strings.TrimSpace(params.OrderID))
	if err != nil {
		s.writeEscrowError(w, req.ID, "get", err)
		return
	}
	writeResult(w, req.ID, s.formatEscrow(esc))
}

func (s *Server) handleEscrowList(w http.ResponseWriter, req *RPCRequest) {
	var params escrowListParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	participant, err := parseAddress(params.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	records, err := s.escrow.ListByParticipant(participant)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeInternal, err.Error(), nil)
		return
	}
	out := make([]*escrowJSON, 0, len(records))
	for _, esc := range records {
		out = append(out, s.formatEscrow(esc))
	}
	writeResult(w, req.ID, out)
}

// handleListEvents returns recently emitted events, optionally narrowed to a
// type prefix such as "escrow." or "registry.".
func (s *Server) handleListEvents(w http.ResponseWriter, req *RPCRequest) {
	var params listEventsParams
	if len(req.Params) > 0 {
		if rpcErr := singleParam(req, &params); rpcErr != nil {
			writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
			return
		}
	}
	prefix := "escrow."
	if trimmed := strings.TrimSpace(params.Prefix); trimmed != "" {
		prefix = trimmed
	}
	normalized := strings.ToLower(prefix)
	recorded := s.events.Events()
	results := make([]eventJSON, 0, len(recorded))
	for _, evt := range recorded {
		if !strings.HasPrefix(strings.ToLower(evt.Type), normalized) {
			continue
		}
		results = append(results, eventJSON{Type: evt.Type, Attributes: evt.Attributes})
	}
	if params.Limit != nil {
		limit := *params.Limit
		if limit < 0 {
			limit = 0
		}
		if limit < len(results) {
			results = results[:limit]
		}
	}
	for i := range results {
		results[i].Sequence = int64(i + 1)
	}
	writeResult(w, req.ID, results)
}

type ledgerBalanceParams struct {
	Address string `json:"address"`
}

type ledgerBalanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func (s *Server) handleLedgerBalance(w http.ResponseWriter, req *RPCRequest) {
	var params ledgerBalanceParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.ledger.BalanceOf(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeInternal, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, ledgerBalanceResult{Address: strings.TrimSpace(params.Address), Balance: balance.String()})
}

func (s *Server) writeEscrowError(w http.ResponseWriter, id interface{}, op string, err error) {
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		s.metrics.ObserveRejection(op, "not_found")
		writeError(w, http.StatusNotFound, id, codeNotFound, "not_found", err.Error())
	case errors.Is(err, escrow.ErrAlreadyExists):
		s.metrics.ObserveRejection(op, "already_exists")
		writeError(w, http.StatusConflict, id, codeConflict, "already_exists", err.Error())
	case errors.Is(err, escrow.ErrUnauthorized):
		s.metrics.ObserveRejection(op, "unauthorized")
		writeError(w, http.StatusForbidden, id, codeForbidden, "unauthorized", err.Error())
	case errors.Is(err, escrow.ErrInvalidState):
		s.metrics.ObserveRejection(op, "invalid_state")
		writeError(w, http.StatusConflict, id, codeConflict, "invalid_state", err.Error())
	case errors.Is(err, escrow.ErrTransferFailed):
		s.metrics.ObserveRejection(op, "transfer_failed")
		writeError(w, http.StatusInternalServerError, id, codeTransferFailed, "transfer_failed", err.Error())
	default:
		s.metrics.ObserveRejection(op, "internal")
		s.logger.Error("escrow rpc failure", "op", op, "err", err)
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, "invalid_params", err.Error())
	}
}
