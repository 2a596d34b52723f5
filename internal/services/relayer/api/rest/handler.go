// Package rest exposes the relayer HTTP API. Every response is JSON; domain
// error codes decide the HTTP status.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/rs/cors"

	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/bridge/domain"
	platformerrors "github.com/soljesty/solana-evm-nft-bridge-relayer/internal/platform/errors"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/storage"
)

// Service is the slice of the orchestrator the API depends on.
type Service interface {
	Create(ctx context.Context, input domain.TransferInput) (domain.Request, error)
	Get(ctx context.Context, requestID string) (domain.Request, error)
	ListPending(ctx context.Context) ([]domain.Request, error)
	ListCompleted(ctx context.Context) ([]domain.Request, error)
}

// Handler serves the relayer routes.
type Handler struct {
	service        Service
	blockExplorers map[string]string
}

// New builds a handler around service. blockExplorers maps chain names to
// explorer base URLs and is served verbatim.
func New(service Service, blockExplorers map[string]string) (*Handler, error) {
	if service == nil {
		return nil, errors.New("service is required")
	}
	if blockExplorers == nil {
		blockExplorers = map[string]string{}
	}
	return &Handler{service: service, blockExplorers: blockExplorers}, nil
}

// Handler returns the full route set behind a permissive CORS layer so
// browser frontends can call the API directly.
func (h *Handler) Handler() http.Handler {
	mux := http.NewServeMux()
	h.Routes(mux)
	return cors.AllowAll().Handler(mux)
}

// Routes registers every relayer route on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthcheck", h.healthcheck)
	mux.HandleFunc("POST /bridge/evm-to-solana", h.bridgeFrom(domain.ChainEVM))
	mux.HandleFunc("POST /bridge/solana-to-evm", h.bridgeFrom(domain.ChainSolana))
	mux.HandleFunc("GET /bridge/requests/{id}", h.getRequest)
	mux.HandleFunc("GET /bridge/pending-requests", h.pendingRequests)
	mux.HandleFunc("GET /bridge/completed-requests", h.completedRequests)
	mux.HandleFunc("GET /bridge/block_explorers", h.blockExplorerList)
}

func (h *Handler) healthcheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"running": true})
}

// bridgeFrom accepts a transfer whose origin must match the route. A body
// naming a different origin chain is rejected rather than silently
// rerouted.
func (h *Handler) bridgeFrom(origin domain.Chain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input domain.TransferInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeError(w, platformerrors.Wrap(platformerrors.CodeInvalidInput, fmt.Sprintf("decode request body: %v", err), err))
			return
		}
		if input.OriginChain == domain.ChainUnspecified {
			input.OriginChain = origin
		}
		if input.OriginChain != origin {
			writeError(w, platformerrors.New(platformerrors.CodeInvalidInput, fmt.Sprintf("origin network %s does not match route", input.OriginChain)))
			return
		}

		request, err := h.service.Create(r.Context(), input)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, request)
	}
}

func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request) {
	request, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (h *Handler) pendingRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ListPending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requestList{Requests: requests})
}

func (h *Handler) completedRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ListCompleted(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requestList{Requests: requests})
}

func (h *Handler) blockExplorerList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.blockExplorers)
}

// requestList keeps list responses an object so fields can be added later.
type requestList struct {
	Requests []domain.Request `json:"requests"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps domain errors to status codes. Raw storage sentinels from
// read paths map too; anything unrecognized is a 500 with a generic body so
// internals never leak.
func writeError(w http.ResponseWriter, err error) {
	var domainErr *platformerrors.Error
	if errors.As(err, &domainErr) {
		writeJSON(w, domainErr.Code.HTTPStatus(), errorBody{Error: errorDetail{
			Code:    string(domainErr.Code),
			Message: domainErr.Message,
		}})
		return
	}
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{
			Code:    string(platformerrors.CodeNotFound),
			Message: "request not found",
		}})
		return
	}

	log.Printf("unmapped api error err=%v", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
		Code:    string(platformerrors.CodeUnknown),
		Message: "internal error",
	}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response failed err=%v", err)
	}
}
