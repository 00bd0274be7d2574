package httpx

import (
	"errors"
	"net/http"

	"github.com/meridian-retail/meridian-erp/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrAlreadyReviewed):
		Problem(w, http.StatusConflict, "Already Reviewed", err.Error())
	case errors.Is(err, shared.ErrNoOp):
		Problem(w, http.StatusUnprocessableEntity, "No-Op Adjustment", err.Error())
	case errors.Is(err, shared.ErrPermission):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case shared.IsValidation(err):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
