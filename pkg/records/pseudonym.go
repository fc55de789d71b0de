package records

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Pseudonymizer replaces raw patient identifiers with keyed BLAKE2b-256
// tokens so direct identifiers never reach the graph or the snapshot.
// The same key and input always produce the same token, which is all the
// builder needs to aggregate appointments per patient.
type Pseudonymizer struct {
	key []byte
}

// NewPseudonymizer creates a pseudonymizer from a secret key. BLAKE2b
// accepts keys up to 64 bytes.
func NewPseudonymizer(key []byte) (*Pseudonymizer, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("pseudonymizer key cannot be empty")
	}
	if len(key) > 64 {
		return nil, fmt.Errorf("pseudonymizer key exceeds 64 bytes")
	}
	// Construct once to surface key errors at startup rather than per row
	if _, err := blake2b.New256(key); err != nil {
		return nil, fmt.Errorf("invalid pseudonymizer key: %w", err)
	}
	return &Pseudonymizer{key: key}, nil
}

// Token returns the hex token for a raw identifier.
func (p *Pseudonymizer) Token(raw string) string {
	h, _ := blake2b.New256(p.key)
	h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil))
}
