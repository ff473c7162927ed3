package core

import (
	"errors"
	"fmt"
)

// Kind groups error codes into the taxonomy exposed to adapters
type Kind string

const (
	KindInitialization    Kind = "initialization"
	KindEncryption        Kind = "encryption"
	KindDecryption        Kind = "decryption"
	KindValidation        Kind = "validation"
	KindNetwork           Kind = "network"
	KindContractExecution Kind = "contract_execution"
)

// Stable machine-readable error codes
const (
	CodeInitialization    = "INITIALIZATION_ERROR"
	CodeNotInitialized    = "NOT_INITIALIZED"
	CodeLifecycleBusy     = "LIFECYCLE_IN_PROGRESS"
	CodeEncryption        = "ENCRYPTION_ERROR"
	CodeDecryption        = "DECRYPTION_ERROR"
	CodeDecryptionTimeout = "DECRYPTION_TIMEOUT"
	CodeUnknownRequest    = "UNKNOWN_DECRYPTION_REQUEST"
	CodeValidation        = "VALIDATION_ERROR"
	CodeNetwork           = "NETWORK_ERROR"
	CodeWalletRequired    = "WALLET_NOT_CONNECTED"
	CodeContractExecution = "CONTRACT_EXECUTION_ERROR"
	CodeTransactionRevert = "TRANSACTION_REVERTED"
)

// Error is the base kind of every error returned by the client core.
// Two errors match under errors.Is when their codes are equal.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks
var (
	ErrInitialization    = &Error{Kind: KindInitialization, Code: CodeInitialization, Message: "initialization failed"}
	ErrNotInitialized    = &Error{Kind: KindInitialization, Code: CodeNotInitialized, Message: "client not initialized"}
	ErrLifecycleBusy     = &Error{Kind: KindInitialization, Code: CodeLifecycleBusy, Message: "lifecycle operation already in progress"}
	ErrEncryption        = &Error{Kind: KindEncryption, Code: CodeEncryption, Message: "encryption failed"}
	ErrDecryption        = &Error{Kind: KindDecryption, Code: CodeDecryption, Message: "decryption failed"}
	ErrDecryptionTimeout = &Error{Kind: KindDecryption, Code: CodeDecryptionTimeout, Message: "decryption timed out"}
	ErrUnknownRequest    = &Error{Kind: KindDecryption, Code: CodeUnknownRequest, Message: "unknown decryption request"}
	ErrValidation        = &Error{Kind: KindValidation, Code: CodeValidation, Message: "validation failed"}
	ErrNetwork           = &Error{Kind: KindNetwork, Code: CodeNetwork, Message: "network error"}
	ErrWalletRequired    = &Error{Kind: KindNetwork, Code: CodeWalletRequired, Message: "wallet not connected"}
	ErrContractExecution = &Error{Kind: KindContractExecution, Code: CodeContractExecution, Message: "contract execution failed"}
	ErrTransactionRevert = &Error{Kind: KindContractExecution, Code: CodeTransactionRevert, Message: "transaction reverted"}
)

func NewInitializationError(message string, cause error) *Error {
	return &Error{Kind: KindInitialization, Code: CodeInitialization, Message: message, Err: cause}
}

func NewEncryptionError(message string, cause error) *Error {
	return &Error{Kind: KindEncryption, Code: CodeEncryption, Message: message, Err: cause}
}

func NewDecryptionError(message string, cause error) *Error {
	return &Error{Kind: KindDecryption, Code: CodeDecryption, Message: message, Err: cause}
}

// NewDecryptionTimeout returns the timeout variant of a decryption error
func NewDecryptionTimeout(requestID string, cause error) *Error {
	return &Error{
		Kind:    KindDecryption,
		Code:    CodeDecryptionTimeout,
		Message: fmt.Sprintf("decryption request %s timed out", requestID),
		Err:     cause,
	}
}

func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: message}
}

func NewNetworkError(message string, cause error) *Error {
	return &Error{Kind: KindNetwork, Code: CodeNetwork, Message: message, Err: cause}
}

func NewContractExecutionError(message string, cause error) *Error {
	return &Error{Kind: KindContractExecution, Code: CodeContractExecution, Message: message, Err: cause}
}

// KindOf returns the taxonomy kind of err, or "" if err is not a core error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the code of err, or "" if err is not a core error
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTimeout reports whether err is the timeout variant of a decryption error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrDecryptionTimeout)
}
