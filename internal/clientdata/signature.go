package clientdata

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Signature identifies a cacheable upstream call: the endpoint name followed
// by its parameters, in order. Parts must be scalars (string, bool, numbers or nil).
type Signature []any

// NewSignature builds a signature from an endpoint and its ordered parameters.
func NewSignature(endpoint string, params ...any) Signature {
	return append(Signature{endpoint}, params...)
}

// Key returns the hex SHA-256 of the signature's JSON array encoding.
// The same parts in the same order always produce the same key.
func (s Signature) Key() (string, error) {
	for i, part := range s {
		if !isScalar(part) {
			return "", fmt.Errorf("signature part %d has non-scalar type %T", i, part)
		}
	}

	encoded, err := json.Marshal([]any(s))
	if err != nil {
		return "", fmt.Errorf("failed to encode signature: %w", err)
	}

	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}
