package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/apierr"
	"app/internal/repository"
)

// writeData encodes the success envelope.
func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dto.APIResponse{Success: true, Data: data})
}

// writeError encodes the failure envelope. Taxonomy errors keep their code and
// message; anything else is hidden behind a generic internal error.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *apierr.Error
	switch {
	case errors.As(err, &apiErr):
	case errors.Is(err, repository.ErrInsufficientCredits):
		apiErr = apierr.New(apierr.CodeInsufficientCredits, "Not enough credits for this operation")
	default:
		apiErr = apierr.New(apierr.CodeInternalError, "Internal server error")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apierr.HTTPStatus(apiErr.Code))
	_ = json.NewEncoder(w).Encode(dto.APIResponse{Success: false, Error: apiErr})
}

// writeValidationError maps a validator failure to the validation code.
func writeValidationError(w http.ResponseWriter, err error) {
	writeError(w, apierr.New(apierr.CodeValidation, err.Error()))
}

func writeInvalidJSON(w http.ResponseWriter) {
	writeError(w, apierr.New(apierr.CodeInvalidInput, "Invalid JSON payload"))
}
