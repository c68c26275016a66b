// Package signingtest is test-only scaffolding that mirrors the
// client-side signing step — the server never signs anything itself, but
// exercising approve/distribute/checkin/cancel end to end requires
// producing valid signed requests. It lives outside internal/signing so
// the shipped binary never links a private-key holder.
package signingtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"

	"github.com/mr-tron/base58"

	"github.com/sentineld/guardian-core/internal/signing"
)

// Signer holds a generated Ed25519 keypair for use in tests.
type Signer struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// NewSigner generates a fresh Ed25519 keypair for use in tests.
func NewSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Signer{pub: pub, priv: priv}, nil
}

// PubkeyB58 is the base58-encoded public key.
func (s *Signer) PubkeyB58() string { return base58.Encode(s.pub) }

// Sign produces the base64 signature over the canonical challenge for
// action+params+timestampMs.
func (s *Signer) Sign(action string, timestampMs int64, params ...string) string {
	challenge := signing.Challenge(action, timestampMs, params...)
	sig := ed25519.Sign(s.priv, []byte(challenge))
	return base64.StdEncoding.EncodeToString(sig)
}
