// Package handler exposes the wallet over HTTP for the local UI and the page bridge.
package handler

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/AlexZinkM/oasis-wallet/internal/model"
	"github.com/AlexZinkM/oasis-wallet/internal/wallet"
)

// statusFor maps a wallet error to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrAuthenticationFailed):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrNotUnlocked):
		return http.StatusLocked
	case errors.Is(err, model.ErrDAppsDisabled):
		return http.StatusForbidden
	case errors.Is(err, model.ErrWalletExists):
		return http.StatusConflict
	case errors.Is(err, model.ErrWalletNotFound),
		errors.Is(err, model.ErrRequestNotFound),
		errors.Is(err, model.ErrNoGasAccount):
		return http.StatusNotFound
	case errors.Is(err, model.ErrCooldownActive):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrInvalidMnemonic),
		errors.Is(err, model.ErrInvalidKeyFormat),
		errors.Is(err, model.ErrInvalidAddress),
		errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, model.ErrInsufficientBalance),
		errors.Is(err, model.ErrInsufficientFeeBalance),
		errors.Is(err, model.ErrUnknownNetwork),
		errors.Is(err, model.ErrNotConnected),
		errors.Is(err, wallet.ErrPasswordTooShort):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrSubmissionFailed),
		errors.Is(err, model.ErrBlockhashExpired):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrConfirmationTimeout),
		errors.Is(err, model.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), model.NewErrorResponse(err))
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: err.Error(), Code: "BAD_REQUEST"})
}

// allow answers 405 unless r uses method
func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed. Should be "+method, http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// decode reads a JSON body. Other content types are refused so that a page
// cannot reach the handler with a form or text/plain post.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != "application/json" {
		writeJSON(w, http.StatusUnsupportedMediaType, model.ErrorResponse{
			Error: "Content-Type must be application/json",
			Code:  "UNSUPPORTED_MEDIA_TYPE",
		})
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, err)
		return false
	}
	return true
}
