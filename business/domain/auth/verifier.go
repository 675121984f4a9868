package auth

import (
	"encoding/hex"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/pkg/errors"
	"github.com/tickboard/board/entities"
	"strings"
)

var ErrUnauthorized = errors.New("unauthorized")
var ErrMalformedSignature = errors.Wrap(ErrUnauthorized, "malformed signature")

type SequenceStore interface {
	GetSequence() (uint64, error)
	// CommitMutation advances the sequence from expected to expected+1 and applies the
	// mutation atomically. It fails with entities.ErrSequenceConflict if the stored
	// sequence is no longer expected.
	CommitMutation(expected uint64, mutation entities.Mutation) (*entities.Commit, error)
}

type Verifier struct {
	store     SequenceStore
	publicKey *secp256k1.PublicKey
}

func NewVerifier(store SequenceStore, publicKey *secp256k1.PublicKey) *Verifier {
	return &Verifier{
		store:     store,
		publicKey: publicKey,
	}
}

// Evaluate checks that signature signs payload at the currently stored sequence. On
// success the sequence advances by one and the mutation is applied. Authentication
// failures match ErrUnauthorized; any other error is a storage fault.
func (v *Verifier) Evaluate(signature string, payload entities.Mutation) (*entities.Commit, error) {
	sequence, err := v.store.GetSequence()
	if err != nil {
		return nil, errors.Wrap(err, "reading sequence")
	}

	sig, err := ParseSignature(signature)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedSignature, "%v", err)
	}

	digest, err := Digest(sequence, payload)
	if err != nil {
		return nil, errors.Wrap(err, "building digest")
	}

	if !sig.Verify(digest[:], v.publicKey) {
		return nil, errors.Wrapf(ErrUnauthorized, "invalid signature for sequence [%d]", sequence)
	}

	commit, err := v.store.CommitMutation(sequence, payload)
	if errors.Is(err, entities.ErrSequenceConflict) {
		// a concurrent mutation consumed this sequence first
		return nil, errors.Wrapf(ErrUnauthorized, "sequence [%d] already used", sequence)
	}
	if err != nil {
		return nil, errors.Wrap(err, "committing mutation")
	}
	return commit, nil
}

// Verify reports whether signature is valid for payload at sequence. It has no side
// effects.
func Verify(publicKey *secp256k1.PublicKey, signature string, sequence uint64, payload entities.Mutation) bool {
	sig, err := ParseSignature(signature)
	if err != nil {
		return false
	}
	digest, err := Digest(sequence, payload)
	if err != nil {
		return false
	}
	return sig.Verify(digest[:], publicKey)
}

func ParseSignature(signature string) (*ecdsa.Signature, error) {
	der, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return nil, errors.Wrap(err, "decoding signature hex")
	}
	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return nil, errors.Wrap(err, "parsing der signature")
	}
	return sig, nil
}

// ParsePublicKey parses a hex encoded compressed or uncompressed public key.
func ParsePublicKey(hexKey string) (*secp256k1.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, errors.Wrap(err, "decoding public key hex")
	}
	key, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parsing public key")
	}
	return key, nil
}
