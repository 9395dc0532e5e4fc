package gitvault

import (
	"bytes"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// Signer produces an armored signature over a commit's serialized
// headers and message. It is an explicit capability: nothing is looked
// up ambiently.
type Signer interface {
	Sign(payload []byte) ([]byte, error)
}

// SignerFunc adapts a plain function to the Signer capability.
type SignerFunc func(payload []byte) ([]byte, error)

// Sign implements Signer.
func (f SignerFunc) Sign(payload []byte) ([]byte, error) {
	return f(payload)
}

// OpenPGPSigner signs commit payloads with an OpenPGP entity.
type OpenPGPSigner struct {
	Entity *openpgp.Entity
}

// NewOpenPGPSigner wraps a private-key entity.
func NewOpenPGPSigner(e *openpgp.Entity) *OpenPGPSigner {
	return &OpenPGPSigner{Entity: e}
}

// Sign produces a detached armored signature.
func (s *OpenPGPSigner) Sign(payload []byte) ([]byte, error) {
	var out bytes.Buffer
	err := openpgp.ArmoredDetachSign(&out, s.Entity, bytes.NewReader(payload), nil)
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
