package encryption

import "crypto/subtle"

// VerifyShare compares a stored plaintext share with a caller-provided one.
// Length is checked first; equal-length inputs are compared in constant time
// so the comparison duration does not reveal where a mismatch occurs.
func VerifyShare(stored, provided []byte) bool {
	if len(stored) != len(provided) {
		return false
	}
	return subtle.ConstantTimeCompare(stored, provided) == 1
}
