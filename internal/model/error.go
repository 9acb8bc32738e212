package model

import (
	"errors"
	"fmt"
)

// ErrorResponse is the consistent JSON structure for all API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Wallet core errors. Every failure that reaches a dApp or the UI wraps one of these.
var (
	ErrInvalidMnemonic        = errors.New("invalid mnemonic phrase")
	ErrAuthenticationFailed   = errors.New("invalid password")
	ErrInvalidKeyFormat       = errors.New("invalid private key format")
	ErrNotUnlocked            = errors.New("wallet not unlocked")
	ErrInsufficientBalance    = errors.New("insufficient SOL balance")
	ErrInsufficientFeeBalance = errors.New("insufficient SOL for transaction fee")
	ErrSubmissionFailed       = errors.New("transaction submission failed")
	ErrConfirmationTimeout    = errors.New("transaction confirmation timed out")
	ErrBlockhashExpired       = errors.New("blockhash expired, retry with a fresh blockhash")
	ErrRequestNotFound        = errors.New("request not found")
	ErrRequestRejected        = errors.New("request rejected by user")
	ErrTimeout                = errors.New("request timeout")

	ErrWalletExists   = errors.New("wallet already exists")
	ErrWalletNotFound = errors.New("no wallet found")
	ErrInvalidAddress = errors.New("invalid Solana address")
	ErrInvalidAmount  = errors.New("amount must be greater than zero")
	ErrNotConnected   = errors.New("Not connected. Call connect() first.")
	ErrDAppsDisabled  = errors.New("dApp connections are disabled")
	ErrCooldownActive = errors.New("cooldown active")
	ErrUnknownNetwork = errors.New("unknown network")
	ErrNoGasAccount   = errors.New("gas account not configured")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidMnemonic, "INVALID_MNEMONIC"},
	{ErrAuthenticationFailed, "AUTHENTICATION_FAILED"},
	{ErrInvalidKeyFormat, "INVALID_KEY_FORMAT"},
	{ErrNotUnlocked, "NOT_UNLOCKED"},
	{ErrInsufficientBalance, "INSUFFICIENT_BALANCE"},
	{ErrInsufficientFeeBalance, "INSUFFICIENT_FEE_BALANCE"},
	{ErrSubmissionFailed, "SUBMISSION_FAILED"},
	{ErrConfirmationTimeout, "CONFIRMATION_TIMEOUT"},
	{ErrBlockhashExpired, "BLOCKHASH_EXPIRED"},
	{ErrRequestNotFound, "REQUEST_NOT_FOUND"},
	{ErrRequestRejected, "REQUEST_REJECTED"},
	{ErrTimeout, "TIMEOUT"},
	{ErrWalletExists, "WALLET_EXISTS"},
	{ErrWalletNotFound, "WALLET_NOT_FOUND"},
	{ErrInvalidAddress, "INVALID_ADDRESS"},
	{ErrInvalidAmount, "INVALID_AMOUNT"},
	{ErrNotConnected, "NOT_CONNECTED"},
	{ErrDAppsDisabled, "DAPPS_DISABLED"},
	{ErrCooldownActive, "COOLDOWN_ACTIVE"},
	{ErrUnknownNetwork, "UNKNOWN_NETWORK"},
	{ErrNoGasAccount, "NO_GAS_ACCOUNT"},
}

// ErrorCode returns a stable code for err, or "INTERNAL" when err is not part of the taxonomy.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}

// Retryable reports whether the caller may retry the same operation unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrBlockhashExpired) || errors.Is(err, ErrConfirmationTimeout)
}

// NewErrorResponse builds an ErrorResponse for err.
func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{Error: err.Error(), Code: ErrorCode(err)}
}

// CooldownError carries the remaining wait of an active send cooldown.
type CooldownError struct {
	Remaining string
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active, please wait %s", e.Remaining)
}

func (e *CooldownError) Unwrap() error {
	return ErrCooldownActive
}
