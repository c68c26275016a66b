package signing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineld/guardian-core/internal/signing"
	"github.com/sentineld/guardian-core/internal/signingtest"
)

func TestVerify_ValidSignature(t *testing.T) {
	signer, err := signingtest.NewSigner()
	require.NoError(t, err)

	ts := time.Now().UnixMilli()
	sig := signer.Sign(signing.ActionRecoveryRevoke, ts)

	v := signing.NewVerifier(5 * time.Minute)
	err = v.Verify(signer.PubkeyB58(), sig, ts, signing.ActionRecoveryRevoke)
	assert.NoError(t, err)
}

func TestVerify_WithParams(t *testing.T) {
	signer, err := signingtest.NewSigner()
	require.NoError(t, err)

	ts := time.Now().UnixMilli()
	sig := signer.Sign(signing.ActionRecoveryApprove, ts, "session-123")

	v := signing.NewVerifier(5 * time.Minute)
	assert.NoError(t, v.Verify(signer.PubkeyB58(), sig, ts, signing.ActionRecoveryApprove, "session-123"))
	// A mismatched param must fail — the challenge binds the operation-
	// specific identifier.
	assert.Error(t, v.Verify(signer.PubkeyB58(), sig, ts, signing.ActionRecoveryApprove, "session-999"))
}

func TestVerify_WrongSigner(t *testing.T) {
	signer, err := signingtest.NewSigner()
	require.NoError(t, err)
	other, err := signingtest.NewSigner()
	require.NoError(t, err)

	ts := time.Now().UnixMilli()
	sig := signer.Sign(signing.ActionRecoveryRevoke, ts)

	v := signing.NewVerifier(5 * time.Minute)
	assert.Error(t, v.Verify(other.PubkeyB58(), sig, ts, signing.ActionRecoveryRevoke))
}

func TestVerify_StaleTimestampRejected(t *testing.T) {
	signer, err := signingtest.NewSigner()
	require.NoError(t, err)

	ts := time.Now().Add(-10 * time.Minute).UnixMilli()
	sig := signer.Sign(signing.ActionRecoveryRevoke, ts)

	v := signing.NewVerifier(5 * time.Minute)
	assert.Error(t, v.Verify(signer.PubkeyB58(), sig, ts, signing.ActionRecoveryRevoke))
}

func TestVerify_FutureTimestampRejected(t *testing.T) {
	signer, err := signingtest.NewSigner()
	require.NoError(t, err)

	ts := time.Now().Add(10 * time.Minute).UnixMilli()
	sig := signer.Sign(signing.ActionRecoveryRevoke, ts)

	v := signing.NewVerifier(5 * time.Minute)
	assert.Error(t, v.Verify(signer.PubkeyB58(), sig, ts, signing.ActionRecoveryRevoke))
}

func TestVerify_MalformedEncoding(t *testing.T) {
	v := signing.NewVerifier(5 * time.Minute)
	ts := time.Now().UnixMilli()

	assert.Error(t, v.Verify("not-base58!!!", "not-base64!!!", ts, signing.ActionRecoveryRevoke))
}

func TestChallenge_CanonicalForm(t *testing.T) {
	got := signing.Challenge(signing.ActionDMSCreate, 1700000000000, "alice")
	assert.Equal(t, "dms:create:alice:1700000000000", got)
}
