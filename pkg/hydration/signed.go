package hydration

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/vango-dev/datarouter"
)

// ErrInvalidSignature is returned when a signed payload was altered or
// signed with another key.
var ErrInvalidSignature = errors.New("hydration: invalid signature")

// Signer embeds hydration state in documents as a signed string:
// base64(payload) + "." + base64(signature). The payload stays readable;
// tampering is detected on decode.
type Signer struct {
	codec Codec
	key   []byte
}

// NewSigner creates a signer over codec. Keys shorter than 32 bytes are
// stretched with SHA-256.
func NewSigner(codec Codec, key []byte) *Signer {
	if len(key) < 32 {
		h := sha256.Sum256(key)
		key = h[:]
	}
	return &Signer{codec: codec, key: key}
}

// EncodeString encodes and signs s.
func (s *Signer) EncodeString(st *datarouter.HydrationState) (string, error) {
	var buf bytes.Buffer
	if err := s.codec.Encode(&buf, st); err != nil {
		return "", err
	}
	payload := buf.Bytes()
	return base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(s.sum(payload)), nil
}

// DecodeString verifies and decodes a string made by EncodeString.
func (s *Signer) DecodeString(encoded string) (*datarouter.HydrationState, error) {
	b64, sig, ok := strings.Cut(encoded, ".")
	if !ok {
		return nil, errors.New("hydration: invalid format: missing signature")
	}
	payload, err := base64.RawURLEncoding.DecodeString(b64)
	if err != nil {
		return nil, errors.New("hydration: invalid payload encoding")
	}
	want, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil || !hmac.Equal(want, s.sum(payload)) {
		return nil, ErrInvalidSignature
	}
	return s.codec.Decode(bytes.NewReader(payload))
}

func (s *Signer) sum(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	return mac.Sum(nil)[:16]
}
