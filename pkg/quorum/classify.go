package quorum

import "github.com/chainapsis/oko-tss/pkg/types"

// Classification says whether a per-node failure can be cured by trying a
// different node.
type Classification int

const (
	// Retryable failures (timeouts, 5xx, transport errors) are worth
	// retrying on a backup node.
	Retryable Classification = iota
	// Fatal failures are logical: the share does not exist anywhere, so no
	// amount of retrying elsewhere helps.
	Fatal
)

// Classify maps a per-node error to its classification. Every stable error
// code is matched explicitly; unknown codes and untyped errors (network,
// 5xx) default to retryable so a flaky node never sinks the quorum.
func Classify(err error) Classification {
	switch types.CodeOf(err) {
	case types.ErrWalletNotFound, types.ErrKeyShareNotFound:
		return Fatal
	case types.ErrUserNotFound,
		types.ErrUnauthorized,
		types.ErrForbidden,
		types.ErrDuplicatePublicKey,
		types.ErrWalletAlreadyExists,
		types.ErrSessionAlreadyExists,
		types.ErrCurveTypeNotSupported,
		types.ErrInvalidWalletType,
		types.ErrPublicKeyInvalid,
		types.ErrReshareFailed,
		types.ErrBadRequest,
		types.ErrUnknown:
		return Retryable
	default:
		return Retryable
	}
}
