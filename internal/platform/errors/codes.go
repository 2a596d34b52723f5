package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Intake errors
	CodeInvalidInput      Code = "INVALID_INPUT"
	CodeDuplicateTransfer Code = "DUPLICATE_TRANSFER"

	// Lookup errors
	CodeNotFound Code = "NOT_FOUND"

	// Chain errors
	CodeChainUnavailable Code = "CHAIN_UNAVAILABLE"
	CodeTxRejected       Code = "TX_REJECTED"

	// Orchestration errors
	CodeStaleSignal       Code = "STALE_SIGNAL"
	CodeRecoveryAmbiguous Code = "RECOVERY_AMBIGUOUS"

	// Storage errors
	CodeStorage       Code = "STORAGE"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
)

// HTTPStatus maps domain codes to HTTP status codes for the API surface.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateTransfer, CodeAlreadyExists:
		return http.StatusConflict
	case CodeChainUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
