package rpc

import (
	"errors"
	"net/http"

	"proofcart/native/registry"
)

type registryMintParams struct {
	Caller       string `json:"caller"`
	SerialNumber string `json:"serialNumber"`
	ProductName  string `json:"productName"`
	Manufacturer string `json:"manufacturer,omitempty"`
	MetadataURI  string `json:"metadataUri,omitempty"`
}

type registryTransferParams struct {
	ID       uint64 `json:"id"`
	Caller   string `json:"caller"`
	NewOwner string `json:"newOwner"`
}

type registryIDParams struct {
	ID uint64 `json:"id"`
}

type registrySerialParams struct {
	SerialNumber string `json:"serialNumber"`
}

type registryBatchParams struct {
	SerialNumbers []string `json:"serialNumbers"`
}

type registryOwnerParams struct {
	Owner string `json:"owner"`
}

type verifyResultJSON struct {
	SerialNumber string   `json:"serialNumber"`
	Token        *nftJSON `json:"token,omitempty"`
}

type registryTotalResult struct {
	Total uint64 `json:"total"`
}

func (s *Server) handleRegistryMint(w http.ResponseWriter, req *RPCRequest) {
	var params registryMintParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	nft, err := s.registry.Mint(caller, registry.MintRequest{
		SerialNumber: params.SerialNumber,
		ProductName:  params.ProductName,
		Manufacturer: params.Manufacturer,
		MetadataURI:  params.MetadataURI,
	})
	if err != nil {
		s.writeRegistryError(w, req.ID, err)
		return
	}
	s.metrics.ObserveMint()
	writeResult(w, req.ID, formatNFT(nft))
}

func (s *Server) handleRegistryTransfer(w http.ResponseWriter, req *RPCRequest) {
	var params registryTransferParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	newOwner, err := parseAddress(params.NewOwner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	nft, err := s.registry.Transfer(params.ID, caller, newOwner)
	if err != nil {
		s.writeRegistryError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatNFT(nft))
}

func (s *Server) handleRegistryGet(w http.ResponseWriter, req *RPCRequest) {
	var params registryIDParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	nft, err := s.registry.Get(params.ID)
	if err != nil {
		s.writeRegistryError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatNFT(nft))
}

func (s *Server) handleRegistryVerify(w http.ResponseWriter, req *RPCRequest) {
	var params registrySerialParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	nft, err := s.registry.Verify(params.SerialNumber)
	if err != nil {
		s.writeRegistryError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatNFT(nft))
}

func (s *Server) handleRegistryBatchVerify(w http.ResponseWriter, req *RPCRequest) {
	var params registryBatchParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	results := s.registry.BatchVerify(params.SerialNumbers)
	out := make([]verifyResultJSON, 0, len(results))
	for _, res := range results {
		out = append(out, verifyResultJSON{
			SerialNumber: res.SerialNumber,
			Token:        formatNFT(res.Token),
		})
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleRegistryTokensOf(w http.ResponseWriter, req *RPCRequest) {
	var params registryOwnerParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	tokens, err := s.registry.TokensOf(owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeInternal, err.Error(), nil)
		return
	}
	out := make([]*nftJSON, 0, len(tokens))
	for _, nft := range tokens {
		out = append(out, formatNFT(nft))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleRegistryHistory(w http.ResponseWriter, req *RPCRequest) {
	var params registryIDParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	history, err := s.registry.History(params.ID)
	if err != nil {
		s.writeRegistryError(w, req.ID, err)
		return
	}
	out := make([]transferJSON, 0, len(history))
	for _, rec := range history {
		out = append(out, transferJSON{
			From:      formatAddress(rec.From),
			To:        formatAddress(rec.To),
			Timestamp: rec.Timestamp,
		})
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleRegistryTotal(w http.ResponseWriter, req *RPCRequest) {
	total, err := s.registry.Total()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeInternal, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, registryTotalResult{Total: total})
}

func (s *Server) writeRegistryError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, id, codeNotFound, "not_found", err.Error())
	case errors.Is(err, registry.ErrSerialExists):
		writeError(w, http.StatusConflict, id, codeConflict, "already_exists", err.Error())
	case errors.Is(err, registry.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeForbidden, "unauthorized", err.Error())
	default:
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, "invalid_params", err.Error())
	}
}
