// Package handler exposes the request router over HTTP as a JSON-RPC 2.0
// endpoint, plus a health check.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/erc4337/aakeyring/internal/bundler"
	"github.com/erc4337/aakeyring/internal/keyring"
	"github.com/erc4337/aakeyring/internal/log"
	"github.com/erc4337/aakeyring/internal/router"
	"github.com/erc4337/aakeyring/internal/signing"
)

// RPCHandler serves the JSON-RPC endpoint. The caller origin is taken from
// the Origin header; requests without one are treated as an empty origin and
// fail authorization unless the permission table grants it.
type RPCHandler struct {
	router *router.Router
}

// NewRPCHandler creates a new RPCHandler.
func NewRPCHandler(r *router.Router) *RPCHandler {
	return &RPCHandler{router: r}
}

// ServeHTTP implements the http.Handler interface.
func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, RPCResponse{
			JSONRPC: "2.0",
			Error:   &RPCError{Code: CodeParseError, Message: "parse error"},
		})
		return
	}
	if req.Method == "" {
		writeResponse(w, RPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: CodeInvalidRequest, Message: "method required"},
		})
		return
	}

	origin := r.Header.Get("Origin")
	result, err := h.router.Handle(r.Context(), origin, req.Method, req.Params)
	if err != nil {
		writeResponse(w, RPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: errorCode(err), Message: err.Error()},
		})
		return
	}
	if result == nil {
		result = json.RawMessage(`null`)
	}
	writeResponse(w, RPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func writeResponse(w http.ResponseWriter, resp RPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Router.Error().Err(err).Msg("encode rpc response")
	}
}

// errorCode maps domain errors onto JSON-RPC error codes.
func errorCode(err error) int {
	switch {
	case errors.Is(err, router.ErrOriginDenied):
		return CodeUnauthorized
	case errors.Is(err, router.ErrMethodNotFound),
		errors.Is(err, signing.ErrMethodNotSupported):
		return CodeMethodNotFound
	case errors.Is(err, router.ErrMissingParam),
		errors.Is(err, keyring.ErrEmptyRequestID),
		errors.Is(err, keyring.ErrDuplicateRequest),
		errors.Is(err, keyring.ErrNameInUse):
		return CodeInvalidParams
	case errors.Is(err, keyring.ErrAccountNotFound),
		errors.Is(err, keyring.ErrRequestNotFound):
		return CodeNotFound
	case errors.Is(err, bundler.ErrChainNotSupported):
		return CodeServerError
	}
	return CodeServerError
}
