// Package signing reconstructs the canonical challenge string, verifies a
// detached Ed25519 signature over it, and enforces the freshness window.
// It is the only authentication primitive in the system — there are no
// session cookies or bearer tokens.
package signing

import (
	"crypto/ed25519"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"github.com/sentineld/guardian-core/internal/errorx"
)

// Action strings, bit-exact with what the client signs.
const (
	ActionRecoveryDistribute = "recovery:distribute"
	ActionRecoveryRevoke     = "recovery:revoke"
	ActionRecoveryApprove    = "recovery:approve"
	ActionDMSCreate          = "dms:create"
	ActionDMSCheckin         = "dms:checkin"
	ActionDMSCancel          = "dms:cancel"
)

// Verifier verifies signed-request tuples against a freshness window.
type Verifier struct {
	skew time.Duration
	now  func() time.Time
}

// NewVerifier builds a Verifier with the configured skew (default 300s
// via config.Config.Skew()).
func NewVerifier(skew time.Duration) *Verifier {
	if skew <= 0 {
		skew = 5 * time.Minute
	}
	return &Verifier{skew: skew, now: time.Now}
}

// Challenge reconstructs the canonical string the client signed:
// action + ":" + params.join(":") + ":" + timestampMs.
func Challenge(action string, timestampMs int64, params ...string) string {
	parts := append([]string{action}, params...)
	parts = append(parts, strconv.FormatInt(timestampMs, 10))
	return strings.Join(parts, ":")
}

// Verify decodes pubkeyB58 (base58 Ed25519 public key) and sigB64 (base64
// detached signature), reconstructs the challenge for action+params+ts, and
// verifies the signature. It returns errorx.AuthInvalid() on any failure —
// malformed encoding, wrong length, bad timestamp, or signature mismatch —
// without distinguishing which.
func (v *Verifier) Verify(pubkeyB58, sigB64 string, timestampMs int64, action string, params ...string) error {
	now := v.now()
	ts := time.UnixMilli(timestampMs)
	if now.Sub(ts) > v.skew || ts.Sub(now) > v.skew {
		return errorx.AuthInvalid()
	}

	pubkey, err := base58.Decode(pubkeyB58)
	if err != nil || len(pubkey) != ed25519.PublicKeySize {
		return errorx.AuthInvalid()
	}

	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return errorx.AuthInvalid()
	}

	challenge := Challenge(action, timestampMs, params...)
	if !ed25519.Verify(ed25519.PublicKey(pubkey), []byte(challenge), sig) {
		return errorx.AuthInvalid()
	}
	return nil
}
