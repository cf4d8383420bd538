// Package apierr provides a standardised error response format for
// cognidb's (out-of-scope, thin-shell) HTTP façade.
//
// Every error response returned over HTTP uses the same JSON envelope:
//
//	{
//	  "ok":       false,
//	  "error":    "human-readable description",
//	  "code":     "MACHINE_READABLE_CODE",
//	  "status":   400
//	}
//
// This makes error handling predictable for all API consumers — clients can
// branch on the "code" field for programmatic handling and show the "error"
// field to humans.
package apierr

import (
	"encoding/json"
	"net/http"

	"github.com/denizumutdereli/cognidb/pkg/cdberr"
)

// ---------------------------------------------------------------------------
// Error codes — stable, machine-readable identifiers.
//
// These codes form part of the public API contract. Removing or renaming a
// code is a breaking change; adding new codes is always safe.
// ---------------------------------------------------------------------------

const (
	CodeBadRequest       = "BAD_REQUEST"
	CodeInvalidJSON      = "INVALID_JSON"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeNotFound         = "NOT_FOUND"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeConflict         = "CONFLICT"

	// One code per cdberr.Kind, used by FromError.
	CodeStorage         = "STORAGE_ERROR"
	CodeQuery           = "QUERY_ERROR"
	CodeSerialization   = "SERIALIZATION_ERROR"
	CodeDeserialization = "DESERIALIZATION_ERROR"
	CodeRegistry        = "REGISTRY_ERROR"
	CodeTransport       = "TRANSPORT_ERROR"
	CodeInvalidResponse = "INVALID_RESPONSE"
	CodeTimeout         = "TIMEOUT"
)

// ---------------------------------------------------------------------------
// Response type
// ---------------------------------------------------------------------------

// Response is the standard error envelope returned to API clients.
type Response struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Code   string `json:"code"`
	Status int    `json:"status"`
}

// ---------------------------------------------------------------------------
// Writer helpers
// ---------------------------------------------------------------------------

// Write serialises an error Response and writes it to w with the appropriate
// HTTP status code. Content-Type is always set to application/json.
func Write(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		OK:     false,
		Error:  message,
		Code:   code,
		Status: status,
	})
}

// BadRequest writes a 400 response with the given code and message.
func BadRequest(w http.ResponseWriter, code, msg string) {
	Write(w, http.StatusBadRequest, code, msg)
}

// NotFound writes a 404 response.
func NotFound(w http.ResponseWriter, code, msg string) {
	Write(w, http.StatusNotFound, code, msg)
}

// MethodNotAllowed writes a 405 response.
func MethodNotAllowed(w http.ResponseWriter) {
	Write(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
}

// Unauthorized writes a 401 response.
func Unauthorized(w http.ResponseWriter, msg string) {
	Write(w, http.StatusUnauthorized, CodeUnauthorized, msg)
}

// TooManyRequests writes a 429 response.
func TooManyRequests(w http.ResponseWriter, msg string) {
	if msg == "" {
		msg = "too many requests"
	}
	Write(w, http.StatusTooManyRequests, CodeRateLimited, msg)
}

// Conflict writes a 409 response.
func Conflict(w http.ResponseWriter, code, msg string) {
	Write(w, http.StatusConflict, code, msg)
}

// Internal writes a 500 response.
func Internal(w http.ResponseWriter, msg string) {
	Write(w, http.StatusInternalServerError, CodeInternalError, msg)
}

// InvalidJSON writes a 400 response for malformed request bodies.
func InvalidJSON(w http.ResponseWriter) {
	BadRequest(w, CodeInvalidJSON, "invalid JSON in request body")
}

// PayloadTooLarge writes a 413 response when body/content exceeds configured bounds.
func PayloadTooLarge(w http.ResponseWriter, msg string) {
	if msg == "" {
		msg = "payload too large"
	}
	Write(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, msg)
}

// ---------------------------------------------------------------------------
// cdberr mapping
// ---------------------------------------------------------------------------

// kindTable maps every cdberr.Kind onto the status+code pair used by
// FromError. Authentication and RateLimited are handled separately by
// FromError since they need their own status codes that don't fit the
// general 400/500 split.
var kindTable = map[cdberr.Kind]struct {
	status int
	code   string
}{
	cdberr.Storage:         {http.StatusInternalServerError, CodeStorage},
	cdberr.Query:           {http.StatusBadRequest, CodeQuery},
	cdberr.Serialization:   {http.StatusInternalServerError, CodeSerialization},
	cdberr.Deserialization: {http.StatusBadRequest, CodeDeserialization},
	cdberr.Registry:        {http.StatusConflict, CodeRegistry},
	cdberr.Transport:       {http.StatusBadGateway, CodeTransport},
	cdberr.InvalidResponse: {http.StatusBadGateway, CodeInvalidResponse},
	cdberr.Timeout:         {http.StatusGatewayTimeout, CodeTimeout},
}

// FromError writes the HTTP response for err, mapping every cdberr.Kind
// onto a stable status+code pair. A plain (non-cdberr) error is treated
// as an opaque internal error so its text is never leaked to the client.
func FromError(w http.ResponseWriter, err error) {
	if cdberr.Is(err, cdberr.Authentication) {
		Unauthorized(w, "authentication failed")
		return
	}
	if cdberr.Is(err, cdberr.RateLimited) {
		TooManyRequests(w, "")
		return
	}
	for kind, mapping := range kindTable {
		if cdberr.Is(err, kind) {
			Write(w, mapping.status, mapping.code, err.Error())
			return
		}
	}
	Internal(w, "internal error")
}
