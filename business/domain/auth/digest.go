package auth

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"github.com/pkg/errors"
	"github.com/tickboard/board/entities"
)

// envelope is the signed structure. Field order is part of the wire format: signer and
// verifier hash the JSON text, not the value.
type envelope struct {
	Sequence uint64            `json:"sequence"`
	Message  entities.Mutation `json:"message"`
}

// CanonicalEnvelope returns the compact JSON encoding of {sequence, message} without
// HTML escaping and without a trailing newline.
func CanonicalEnvelope(sequence uint64, payload entities.Mutation) ([]byte, error) {
	if payload == nil {
		return nil, errors.New("nil payload")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(envelope{
		Sequence: sequence,
		Message:  payload,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encoding envelope")
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func Digest(sequence uint64, payload entities.Mutation) ([sha256.Size]byte, error) {
	data, err := CanonicalEnvelope(sequence, payload)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	return sha256.Sum256(data), nil
}
