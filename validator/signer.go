package validator

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
)

// Signer signs and verifies module metadata with HMAC-SHA256.
type Signer struct {
	secret []byte
}

// NewSigner returns a signer using secret.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: append([]byte(nil), secret...)}
}

// Canonical returns the bytes that are signed: the JSON encoding of the
// metadata with the signature cleared. encoding/json sorts map keys, so
// equal metadata always yields equal bytes.
func Canonical(metadata modular.ModuleMetadata) ([]byte, error) {
	m := metadata.Clone()
	m.Signature = ""
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("canonicalize module %s: %w", metadata.ID, err)
	}
	return data, nil
}

// Sign returns the hex signature of metadata.
func (s *Signer) Sign(metadata modular.ModuleMetadata) (string, error) {
	data, err := Canonical(metadata)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether metadata.Signature matches. The comparison runs in
// constant time.
func (s *Signer) Verify(metadata modular.ModuleMetadata) (bool, error) {
	want, err := hex.DecodeString(metadata.Signature)
	if err != nil {
		return false, nil
	}
	got, err := s.Sign(metadata)
	if err != nil {
		return false, err
	}
	gotBytes, _ := hex.DecodeString(got)
	return hmac.Equal(want, gotBytes), nil
}
