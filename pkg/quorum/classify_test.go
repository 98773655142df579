package quorum

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chainapsis/oko-tss/pkg/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Classification
	}{
		{"wallet not found", types.E(types.ErrWalletNotFound, "x"), Fatal},
		{"key share not found", types.E(types.ErrKeyShareNotFound, "x"), Fatal},
		{"user not found", types.E(types.ErrUserNotFound, "x"), Retryable},
		{"unauthorized", types.E(types.ErrUnauthorized, "x"), Retryable},
		{"duplicate public key", types.E(types.ErrDuplicatePublicKey, "x"), Retryable},
		{"untyped transport error", errors.New("connection refused"), Retryable},
		{"nil-ish unknown", types.E(types.ErrUnknown, "x"), Retryable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}
