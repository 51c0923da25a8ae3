package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/btslabs/chain-gateway/internal/aggregate"
	"github.com/btslabs/chain-gateway/internal/cache"
	"github.com/btslabs/chain-gateway/internal/fetch"
	"github.com/btslabs/chain-gateway/internal/model"
	"github.com/btslabs/chain-gateway/internal/nodepool"
	"github.com/btslabs/chain-gateway/internal/rpc"
)

// successResponse is the envelope every successful request returns.
type successResponse struct {
	Message string `json:"message"`
	Result  any    `json:"result"`
}

// errorResponse carries a human-readable message plus a machine-readable
// error kind.
type errorResponse struct {
	Message string    `json:"message"`
	Error   errorBody `json:"error"`
}

type errorBody struct {
	Kind string `json:"kind"`
}

// Error kinds surfaced to callers.
const (
	kindValidation    = "validation"
	kindNotFound      = "not_found"
	kindConnection    = "connection"
	kindConfiguration = "configuration"
	kindInternal      = "internal"
)

func (s *Server) writeSuccess(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(successResponse{
		Message: "Success!",
		Result:  result,
	}); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)

	s.logger.Warn("request failed",
		"path", r.URL.Path,
		"status", status,
		"kind", kind,
		"error", err,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(errorResponse{
		Message: err.Error(),
		Error:   errorBody{Kind: kind},
	}); encErr != nil {
		s.logger.Error("encode error response", "error", encErr)
	}
}

// classify maps an internal error onto an HTTP status and error kind. Raw
// transport errors never reach this point untyped; anything unknown counts
// as internal.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidChain),
		errors.Is(err, errBadRequest),
		errors.Is(err, aggregate.ErrUnknownOperation):
		return http.StatusBadRequest, kindValidation
	case errors.Is(err, cache.ErrNotFound),
		errors.Is(err, aggregate.ErrNotFound),
		errors.Is(err, aggregate.ErrMissingRequired),
		errors.Is(err, fetch.ErrObjectsNotFound):
		return http.StatusNotFound, kindNotFound
	case errors.Is(err, rpc.ErrConnection),
		errors.Is(err, rpc.ErrTimeout),
		errors.Is(err, rpc.ErrClosed):
		return http.StatusBadGateway, kindConnection
	case errors.Is(err, nodepool.ErrEmptyPool),
		errors.Is(err, nodepool.ErrUnknownChain),
		errors.Is(err, cache.ErrUnknownChain):
		return http.StatusInternalServerError, kindConfiguration
	}
	return http.StatusInternalServerError, kindInternal
}

func httpStatusLabel(status int) string {
	return strconv.Itoa(status)
}
