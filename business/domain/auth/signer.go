package auth

import (
	"encoding/hex"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/pkg/errors"
	"github.com/tickboard/board/entities"
	"strings"
)

type Signer struct {
	key *secp256k1.PrivateKey
}

// NewSigner parses a hex encoded 32 byte secp256k1 secret key.
func NewSigner(hexKey string) (*Signer, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, errors.Wrap(err, "decoding secret key hex")
	}
	if len(raw) != secp256k1.PrivKeyBytesLen {
		return nil, errors.Errorf("invalid secret key length [%d]", len(raw))
	}

	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(raw); overflow || scalar.IsZero() {
		return nil, errors.New("secret key out of range")
	}

	return &Signer{key: secp256k1.NewPrivateKey(&scalar)}, nil
}

// Sign returns the hex encoded DER signature over the digest of payload at sequence.
// Nonces are deterministic (RFC6979).
func (s *Signer) Sign(payload entities.Mutation, sequence uint64) (string, error) {
	digest, err := Digest(sequence, payload)
	if err != nil {
		return "", errors.Wrap(err, "building digest")
	}
	sig := ecdsa.Sign(s.key, digest[:])
	return hex.EncodeToString(sig.Serialize()), nil
}

// PublicKey returns the compressed public key as hex.
func (s *Signer) PublicKey() string {
	return hex.EncodeToString(s.key.PubKey().SerializeCompressed())
}

// GenerateKey creates a new key pair and returns secret and compressed public key as hex.
func GenerateKey() (secretKey string, publicKey string, err error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return "", "", errors.Wrap(err, "generating private key")
	}
	return hex.EncodeToString(key.Serialize()), hex.EncodeToString(key.PubKey().SerializeCompressed()), nil
}
