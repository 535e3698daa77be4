package signing

import (
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/ed25519"
)

var (
	ErrSignatureMissing = errors.New("signature is missing")
	ErrSignatureInvalid = errors.New("signature is invalid")
	ErrInvalidPubkeyLen = errors.New("pubkey has invalid length")
)

const (
	PublicKeySize = ed25519.PublicKeySize
	SignatureSize = ed25519.SignatureSize
)

// HasKey reports whether pubkey holds a signing key.
// An all-zero key means the message is not signed.
func HasKey(pubkey []byte) bool {
	for _, b := range pubkey {
		if b != 0 {
			return true
		}
	}
	return false
}

// Verify checks a detached ed25519 signature over msg.
func Verify(pubkey, msg, signature []byte) error {
	if l := len(pubkey); l != PublicKeySize {
		return fmt.Errorf("%w: %d", ErrInvalidPubkeyLen, l)
	}
	if signature == nil {
		return ErrSignatureMissing
	}
	if len(signature) != SignatureSize {
		return fmt.Errorf("%w: signature length %d", ErrSignatureInvalid, len(signature))
	}
	if !ed25519.Verify(ed25519.PublicKey(pubkey), msg, signature) {
		return ErrSignatureInvalid
	}
	return nil
}

// Sign signs msg with a private key. Used to produce signed announcements.
func Sign(privKey ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(privKey, msg)
}
