package keys

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"histeeria-backend/pkg/apperr"
)

// curve25519KeySize is the expected length of an X3DH identity, signed
// pre-key, or one-time pre-key public key (Curve25519 point).
const curve25519KeySize = 32

// validatePublicKey checks that a base64-encoded public key decodes to
// a plausible Curve25519 point. The server never holds the matching
// private key, so this is a format check, not a cryptographic one.
func validatePublicKey(encoded string) error {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return apperr.Validation("public key must be base64-encoded")
	}
	if len(raw) != curve25519KeySize {
		return apperr.Validation(fmt.Sprintf("public key must be %d bytes", curve25519KeySize))
	}
	return nil
}

// fingerprint derives a Signal-style out-of-band verification string
// from an identity key: the first 30 hex characters of its SHA-256
// digest, grouped in 5s for manual comparison.
func fingerprint(identityKeyBase64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(identityKeyBase64)
	if err != nil {
		return "", apperr.Validation("invalid identity key encoding")
	}

	digest := sha256.Sum256(raw)
	hex := fmt.Sprintf("%x", digest)
	if len(hex) > 30 {
		hex = hex[:30]
	}

	formatted := ""
	for i, c := range hex {
		if i > 0 && i%5 == 0 {
			formatted += " "
		}
		formatted += string(c)
	}
	return formatted, nil
}
