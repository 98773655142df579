package types

import (
	"errors"
	"net/http"
)

// ErrorCode is the stable, machine-branchable error identifier returned to
// callers. The accompanying message is for logs and diagnosis only and is not
// part of the contract.
type ErrorCode string

const (
	// Identity / ownership
	ErrUserNotFound   ErrorCode = "USER_NOT_FOUND"
	ErrWalletNotFound ErrorCode = "WALLET_NOT_FOUND"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrForbidden      ErrorCode = "FORBIDDEN"

	// Uniqueness
	ErrDuplicatePublicKey   ErrorCode = "DUPLICATE_PUBLIC_KEY"
	ErrWalletAlreadyExists  ErrorCode = "WALLET_ALREADY_EXISTS"
	ErrSessionAlreadyExists ErrorCode = "SESSION_ALREADY_EXISTS"

	// Protocol / curve
	ErrCurveTypeNotSupported ErrorCode = "CURVE_TYPE_NOT_SUPPORTED"
	ErrInvalidWalletType     ErrorCode = "INVALID_WALLET_TYPE"
	ErrInvalidTssSession     ErrorCode = "INVALID_TSS_SESSION"
	ErrInvalidTssStage       ErrorCode = "INVALID_TSS_STAGE"
	ErrCommitRevealExpired   ErrorCode = "COMMIT_REVEAL_EXPIRED"

	// Quorum
	ErrKeyshareNodeInsufficient ErrorCode = "KEYSHARE_NODE_INSUFFICIENT"
	ErrInsufficientShares       ErrorCode = "INSUFFICIENT_SHARES"
	ErrKsNodeNotFound           ErrorCode = "KS_NODE_NOT_FOUND"
	ErrKsNodeAlreadyActive      ErrorCode = "KS_NODE_ALREADY_ACTIVE"
	ErrKsNodeAlreadyInactive    ErrorCode = "KS_NODE_ALREADY_INACTIVE"
	ErrKsNodeAlreadyDeleted     ErrorCode = "KS_NODE_ALREADY_DELETED"

	// Integrity
	ErrReshareFailed    ErrorCode = "RESHARE_FAILED"
	ErrKeyShareNotFound ErrorCode = "KEY_SHARE_NOT_FOUND"
	ErrPublicKeyInvalid ErrorCode = "PUBLIC_KEY_INVALID"

	// Catch-all
	ErrBadRequest ErrorCode = "BAD_REQUEST"
	ErrUnknown    ErrorCode = "UNKNOWN_ERROR"
)

// AppError carries a stable code across component boundaries. The wrapped
// error, if any, is operator-facing context and never leaves the process as a
// contract.
type AppError struct {
	Code ErrorCode
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Msg + ": " + e.Err.Error()
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Msg
}

func (e *AppError) Unwrap() error { return e.Err }

// E builds a typed error with a stable code.
func E(code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Msg: msg}
}

// WrapE attaches a code to an underlying error. Data-layer errors are wrapped
// at each operation boundary so nothing untyped crosses a component seam.
func WrapE(code ErrorCode, msg string, err error) *AppError {
	return &AppError{Code: code, Msg: msg, Err: err}
}

// CodeOf extracts the stable code from any error, falling back to
// UNKNOWN_ERROR for plain errors.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrUnknown
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// HTTPStatus maps an error code to the HTTP status the handlers respond with.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrUserNotFound, ErrWalletNotFound, ErrKeyShareNotFound, ErrKsNodeNotFound:
		return http.StatusNotFound
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrDuplicatePublicKey, ErrWalletAlreadyExists, ErrSessionAlreadyExists,
		ErrKsNodeAlreadyActive, ErrKsNodeAlreadyInactive, ErrKsNodeAlreadyDeleted:
		return http.StatusConflict
	case ErrCurveTypeNotSupported, ErrInvalidWalletType, ErrInvalidTssSession,
		ErrInvalidTssStage, ErrPublicKeyInvalid, ErrReshareFailed,
		ErrCommitRevealExpired, ErrBadRequest:
		return http.StatusBadRequest
	case ErrKeyshareNodeInsufficient, ErrInsufficientShares:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
