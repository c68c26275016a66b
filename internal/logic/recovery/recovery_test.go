package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineld/guardian-core/internal/errorx"
	"github.com/sentineld/guardian-core/internal/kvstore"
	"github.com/sentineld/guardian-core/internal/signing"
	"github.com/sentineld/guardian-core/internal/signingtest"
	"github.com/sentineld/guardian-core/internal/types"
)

func newTestService() (*Service, *signingtest.Signer, []*signingtest.Signer) {
	kv := kvstore.NewMemStore()
	verifier := signing.NewVerifier(5 * time.Minute)
	owner, _ := signingtest.NewSigner()
	g1, _ := signingtest.NewSigner()
	g2, _ := signingtest.NewSigner()
	g3, _ := signingtest.NewSigner()
	return NewService(kv, verifier), owner, []*signingtest.Signer{g1, g2, g3}
}

func distribute(t *testing.T, svc *Service, owner *signingtest.Signer, threshold int, guardians []*signingtest.Signer) {
	t.Helper()
	ctx := context.Background()
	ts := time.Now().UnixMilli()
	sig := owner.Sign(signing.ActionRecoveryDistribute, ts)

	gs := make([]types.GuardianInput, len(guardians))
	for i, g := range guardians {
		gs[i] = types.GuardianInput{Pubkey: g.PubkeyB58(), EncryptedShare: "ct-" + g.PubkeyB58(), ShareIndex: i}
	}

	resp, err := svc.Distribute(ctx, &types.DistributeRequest{
		SenderPubkey: owner.PubkeyB58(),
		Threshold:    threshold,
		Guardians:    gs,
		Signature:    sig,
		Timestamp:    ts,
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, len(guardians), resp.GuardianCount)
}

// Scenario 1: 2-of-3 recovery happy path.
func TestScenario_TwoOfThreeHappyPath(t *testing.T) {
	svc, owner, guardians := newTestService()
	ctx := context.Background()
	distribute(t, svc, owner, 2, guardians)

	ephemeral, _ := signingtest.NewSigner()
	reqResp, err := svc.RequestSession(ctx, &types.RequestSessionRequest{
		OwnerPubkey:     owner.PubkeyB58(),
		EphemeralPubkey: ephemeral.PubkeyB58(),
		RequestedGuardians: []string{
			guardians[0].PubkeyB58(), guardians[1].PubkeyB58(), guardians[2].PubkeyB58(),
		},
	})
	require.NoError(t, err)
	sid := reqResp.SessionID
	assert.Equal(t, 2, reqResp.Threshold)

	status, err := svc.SessionStatus(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "pending", status.Status)

	approve := func(g *signingtest.Signer, share string) *types.ApproveResponse {
		ts := time.Now().UnixMilli()
		sig := g.Sign(signing.ActionRecoveryApprove, ts, sid)
		resp, err := svc.Approve(ctx, sid, &types.ApproveRequest{
			GuardianPubkey:   g.PubkeyB58(),
			ReEncryptedShare: share,
			Signature:        sig,
			Timestamp:        ts,
		})
		require.NoError(t, err)
		return resp
	}

	resp1 := approve(guardians[0], "r1")
	assert.Equal(t, 1, resp1.ApprovalsReceived)
	status, err = svc.SessionStatus(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "pending", status.Status)

	resp2 := approve(guardians[1], "r2")
	assert.Equal(t, 2, resp2.ApprovalsReceived)
	status, err = svc.SessionStatus(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "ready", status.Status)

	shares, err := svc.GetShares(ctx, sid)
	require.NoError(t, err)
	assert.Len(t, shares.Shares, 2)

	// Third guardian can still approve after ready.
	resp3 := approve(guardians[2], "r3")
	assert.Equal(t, 3, resp3.ApprovalsReceived)

	shares, err = svc.GetShares(ctx, sid)
	require.NoError(t, err)
	assert.Len(t, shares.Shares, 3)
}

// A second approval from the same guardian on the same session is a
// Conflict, and must not bump the approval counter.
func TestScenario_DoubleApprovalIsConflict(t *testing.T) {
	svc, owner, guardians := newTestService()
	ctx := context.Background()
	distribute(t, svc, owner, 2, guardians)

	ephemeral, _ := signingtest.NewSigner()
	reqResp, err := svc.RequestSession(ctx, &types.RequestSessionRequest{
		OwnerPubkey:        owner.PubkeyB58(),
		EphemeralPubkey:    ephemeral.PubkeyB58(),
		RequestedGuardians: []string{guardians[0].PubkeyB58(), guardians[1].PubkeyB58()},
	})
	require.NoError(t, err)
	sid := reqResp.SessionID

	ts := time.Now().UnixMilli()
	sig := guardians[0].Sign(signing.ActionRecoveryApprove, ts, sid)
	body := &types.ApproveRequest{GuardianPubkey: guardians[0].PubkeyB58(), ReEncryptedShare: "r1", Signature: sig, Timestamp: ts}

	first, err := svc.Approve(ctx, sid, body)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ApprovalsReceived)

	_, err = svc.Approve(ctx, sid, body)
	require.Error(t, err)
	ce, ok := err.(*errorx.CodeError)
	require.True(t, ok)
	assert.Equal(t, 409, ce.Code)

	status, err := svc.SessionStatus(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, 1, status.ApprovalsReceived, "the rejected duplicate must not bump the counter")
}

// B5: approve from a guardian not in requestedGuardians is rejected.
func TestApprove_GuardianNotRequested_Rejected(t *testing.T) {
	svc, owner, guardians := newTestService()
	ctx := context.Background()
	distribute(t, svc, owner, 2, guardians)

	outsider, _ := signingtest.NewSigner()
	ephemeral, _ := signingtest.NewSigner()
	reqResp, err := svc.RequestSession(ctx, &types.RequestSessionRequest{
		OwnerPubkey:        owner.PubkeyB58(),
		EphemeralPubkey:    ephemeral.PubkeyB58(),
		RequestedGuardians: []string{guardians[0].PubkeyB58(), guardians[1].PubkeyB58()},
	})
	require.NoError(t, err)

	ts := time.Now().UnixMilli()
	sig := outsider.Sign(signing.ActionRecoveryApprove, ts, reqResp.SessionID)
	_, err = svc.Approve(ctx, reqResp.SessionID, &types.ApproveRequest{
		GuardianPubkey: outsider.PubkeyB58(), ReEncryptedShare: "r", Signature: sig, Timestamp: ts,
	})
	require.Error(t, err)
	ce, ok := err.(*errorx.CodeError)
	require.True(t, ok)
	assert.Equal(t, 403, ce.Code)
}

// Empty reEncryptedShare is rejected rather than silently accepted.
func TestApprove_EmptyShareRejected(t *testing.T) {
	svc, owner, guardians := newTestService()
	ctx := context.Background()
	distribute(t, svc, owner, 2, guardians)

	ephemeral, _ := signingtest.NewSigner()
	reqResp, err := svc.RequestSession(ctx, &types.RequestSessionRequest{
		OwnerPubkey:        owner.PubkeyB58(),
		EphemeralPubkey:    ephemeral.PubkeyB58(),
		RequestedGuardians: []string{guardians[0].PubkeyB58(), guardians[1].PubkeyB58()},
	})
	require.NoError(t, err)

	ts := time.Now().UnixMilli()
	sig := guardians[0].Sign(signing.ActionRecoveryApprove, ts, reqResp.SessionID)
	_, err = svc.Approve(ctx, reqResp.SessionID, &types.ApproveRequest{
		GuardianPubkey: guardians[0].PubkeyB58(), ReEncryptedShare: "", Signature: sig, Timestamp: ts,
	})
	require.Error(t, err)
}

// B1: threshold=1 rejected, threshold=n accepted (2 of 2 guardians).
func TestDistribute_ThresholdBoundary(t *testing.T) {
	svc, owner, guardians := newTestService()
	ctx := context.Background()
	ts := time.Now().UnixMilli()
	sig := owner.Sign(signing.ActionRecoveryDistribute, ts)

	gs := []types.GuardianInput{
		{Pubkey: guardians[0].PubkeyB58(), EncryptedShare: "c0", ShareIndex: 0},
		{Pubkey: guardians[1].PubkeyB58(), EncryptedShare: "c1", ShareIndex: 1},
	}
	_, err := svc.Distribute(ctx, &types.DistributeRequest{
		SenderPubkey: owner.PubkeyB58(), Threshold: 1, Guardians: gs, Signature: sig, Timestamp: ts,
	})
	require.Error(t, err, "threshold=1 must be rejected")

	distribute(t, svc, owner, 2, guardians[:2])
}

// B2: 11 guardians rejected.
func TestDistribute_TooManyGuardiansRejected(t *testing.T) {
	svc, owner, _ := newTestService()
	ctx := context.Background()
	var signers []*signingtest.Signer
	for i := 0; i < 11; i++ {
		s, _ := signingtest.NewSigner()
		signers = append(signers, s)
	}
	gs := make([]types.GuardianInput, 11)
	for i, g := range signers {
		gs[i] = types.GuardianInput{Pubkey: g.PubkeyB58(), EncryptedShare: "c", ShareIndex: i}
	}
	ts := time.Now().UnixMilli()
	sig := owner.Sign(signing.ActionRecoveryDistribute, ts)
	_, err := svc.Distribute(ctx, &types.DistributeRequest{
		SenderPubkey: owner.PubkeyB58(), Threshold: 2, Guardians: gs, Signature: sig, Timestamp: ts,
	})
	require.Error(t, err)
}

// P1: distribute, then getRecoveryConfig matches, and exactly one share
// per guardian.
func TestDistribute_ConfigAndSharesMatch(t *testing.T) {
	svc, owner, guardians := newTestService()
	ctx := context.Background()
	distribute(t, svc, owner, 2, guardians)

	cfg, err := svc.GetGuardians(ctx, owner.PubkeyB58())
	require.NoError(t, err)
	assert.True(t, cfg.Configured)
	assert.Equal(t, 2, cfg.Threshold)
	assert.ElementsMatch(t, []string{guardians[0].PubkeyB58(), guardians[1].PubkeyB58(), guardians[2].PubkeyB58()}, cfg.Guardians)

	for _, g := range guardians {
		ships, err := svc.GetGuardianships(ctx, g.PubkeyB58())
		require.NoError(t, err)
		assert.Equal(t, []string{owner.PubkeyB58()}, ships.Guardianships)
	}
}

// R1: distribute then revoke yields no config and no shares.
func TestRoundTrip_DistributeThenRevoke(t *testing.T) {
	svc, owner, guardians := newTestService()
	ctx := context.Background()
	distribute(t, svc, owner, 2, guardians)

	ts := time.Now().UnixMilli()
	sig := owner.Sign(signing.ActionRecoveryRevoke, ts)
	_, err := svc.Revoke(ctx, &types.RevokeRequest{SenderPubkey: owner.PubkeyB58(), Signature: sig, Timestamp: ts})
	require.NoError(t, err)

	cfg, err := svc.GetGuardians(ctx, owner.PubkeyB58())
	require.NoError(t, err)
	assert.False(t, cfg.Configured)

	for _, g := range guardians {
		ships, err := svc.GetGuardianships(ctx, g.PubkeyB58())
		require.NoError(t, err)
		assert.Empty(t, ships.Guardianships)
	}

	// Idempotent: revoking again with no config is still a no-op success.
	ts2 := time.Now().UnixMilli()
	sig2 := owner.Sign(signing.ActionRecoveryRevoke, ts2)
	_, err = svc.Revoke(ctx, &types.RevokeRequest{SenderPubkey: owner.PubkeyB58(), Signature: sig2, Timestamp: ts2})
	require.NoError(t, err)
}

// request() requires requestedGuardians to be a subset of configured ones.
func TestRequestSession_RejectsGuardianOutsideConfig(t *testing.T) {
	svc, owner, guardians := newTestService()
	ctx := context.Background()
	distribute(t, svc, owner, 2, guardians[:2])

	ephemeral, _ := signingtest.NewSigner()
	_, err := svc.RequestSession(ctx, &types.RequestSessionRequest{
		OwnerPubkey:        owner.PubkeyB58(),
		EphemeralPubkey:    ephemeral.PubkeyB58(),
		RequestedGuardians: []string{guardians[2].PubkeyB58()},
	})
	require.Error(t, err)
}

// Shares are unavailable before the threshold is reached.
func TestGetShares_NotReadyBeforeThreshold(t *testing.T) {
	svc, owner, guardians := newTestService()
	ctx := context.Background()
	distribute(t, svc, owner, 2, guardians)

	ephemeral, _ := signingtest.NewSigner()
	reqResp, err := svc.RequestSession(ctx, &types.RequestSessionRequest{
		OwnerPubkey:        owner.PubkeyB58(),
		EphemeralPubkey:    ephemeral.PubkeyB58(),
		RequestedGuardians: []string{guardians[0].PubkeyB58(), guardians[1].PubkeyB58()},
	})
	require.NoError(t, err)

	_, err = svc.GetShares(ctx, reqResp.SessionID)
	require.Error(t, err)
}
