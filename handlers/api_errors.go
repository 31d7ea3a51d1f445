package handlers

import (
	"net/http"
	"strconv"
)

// Error codes carried in APIErrorDetail.Code.
const (
	codeInvalidID    = "invalid_id"
	codeInvalidBody  = "invalid_body"
	codeInvalidMerge = "invalid_merge"
	codeNoLinks      = "no_links"
	codeNotFound     = "not_found"
)

// APIErrorDetail is one rejected-request error. Failures of an operation that
// already ran use operationFailure instead.
type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

type APIErrorResponse struct {
	Errors []APIErrorDetail `json:"errors"`
}

// WriteAPIError writes a single-error APIErrorResponse with the given status.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	writeJSON(w, httpStatus, APIErrorResponse{
		Errors: []APIErrorDetail{{
			Code:   code,
			Status: strconv.Itoa(httpStatus),
			Detail: detail,
		}},
	})
}

// writeValidationError rejects a request whose ids or body could not be used.
// Nothing has been read or written when it is called.
func writeValidationError(w http.ResponseWriter, code string, err error) {
	WriteAPIError(w, http.StatusBadRequest, code, err.Error())
}

// writeNotFound reports a person id that does not resolve to an identity.
func writeNotFound(w http.ResponseWriter, err error) {
	WriteAPIError(w, http.StatusNotFound, codeNotFound, err.Error())
}
