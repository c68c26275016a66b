// Package recovery is the Recovery Orchestrator: k-of-n
// guardian setup, the session approval state machine, and revocation.
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sentineld/guardian-core/internal/errorx"
	"github.com/sentineld/guardian-core/internal/kvstore"
	"github.com/sentineld/guardian-core/internal/models"
	"github.com/sentineld/guardian-core/internal/signing"
	"github.com/sentineld/guardian-core/internal/types"
)

// SessionTTL is the TTL assigned to RecoverySession and SessionShare
// records.
const SessionTTL = 24 * time.Hour

const maxGuardians = 10

// Service implements guardian configuration, the approval state machine,
// and revocation.
type Service struct {
	kv       kvstore.Store
	verifier *signing.Verifier
	now      func() time.Time
	newID    func() string
}

func NewService(kv kvstore.Store, verifier *signing.Verifier) *Service {
	return &Service{
		kv:       kv,
		verifier: verifier,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

func configKey(owner string) string           { return "recovery:config:" + owner }
func shareKey(guardian, owner string) string   { return "recovery:share:" + guardian + ":" + owner }
func shareScanPattern(guardian string) string  { return "recovery:share:" + guardian + ":*" }
func sessionKey(sid string) string             { return "recovery:session:" + sid }
func sessionShareKey(sid, guardian string) string {
	return "recovery:session:" + sid + ":share:" + guardian
}

// Distribute configures guardians and thresholds for an owner. Idempotent
// replacement: revoke then write.
func (s *Service) Distribute(ctx context.Context, req *types.DistributeRequest) (*types.DistributeResponse, error) {
	if err := s.verifier.Verify(req.SenderPubkey, req.Signature, req.Timestamp, signing.ActionRecoveryDistribute); err != nil {
		return nil, err
	}

	if req.Threshold < 2 {
		return nil, errorx.Validation("threshold must be at least 2")
	}
	n := len(req.Guardians)
	if n < req.Threshold {
		return nil, errorx.Validation("guardian count must be at least threshold")
	}
	if n > maxGuardians {
		return nil, errorx.Validation("at most 10 guardians are supported")
	}

	seenIdx := make(map[int]bool, n)
	guardianPubkeys := make([]string, n)
	for i, g := range req.Guardians {
		if g.Pubkey == "" || g.EncryptedShare == "" {
			return nil, errorx.Validation("guardian pubkey and encryptedShare are required")
		}
		if g.ShareIndex < 0 || g.ShareIndex >= n {
			return nil, errorx.Validation("shareIndex out of range")
		}
		if seenIdx[g.ShareIndex] {
			return nil, errorx.Validation("duplicate shareIndex")
		}
		seenIdx[g.ShareIndex] = true
		guardianPubkeys[i] = g.Pubkey
	}

	if err := s.revokeOwner(ctx, req.SenderPubkey); err != nil {
		return nil, err
	}

	now := s.now()
	cfg := models.RecoveryConfig{Threshold: req.Threshold, Guardians: guardianPubkeys, CreatedAt: now}
	if err := s.kv.HSet(ctx, configKey(req.SenderPubkey), models.EncodeRecoveryConfig(cfg)); err != nil {
		return nil, errorx.Internal("failed to write recovery config")
	}

	for _, g := range req.Guardians {
		share := models.GuardianShare{EncryptedShare: g.EncryptedShare, ShareIndex: g.ShareIndex, CreatedAt: now}
		if err := s.kv.HSet(ctx, shareKey(g.Pubkey, req.SenderPubkey), models.EncodeGuardianShare(share)); err != nil {
			return nil, errorx.Internal("failed to write guardian share")
		}
	}

	return &types.DistributeResponse{Success: true, GuardianCount: n, Threshold: req.Threshold}, nil
}

// GetGuardians is unauthenticated — guardian lists are not secret.
func (s *Service) GetGuardians(ctx context.Context, owner string) (*types.GuardiansResponse, error) {
	fields, ok, err := s.kv.HGetAll(ctx, configKey(owner))
	if err != nil {
		return nil, errorx.Internal("failed to read recovery config")
	}
	if !ok {
		return &types.GuardiansResponse{Configured: false}, nil
	}
	cfg, err := models.DecodeRecoveryConfig(fields)
	if err != nil {
		return nil, errorx.Internal("corrupt recovery config")
	}
	return &types.GuardiansResponse{
		Configured: true,
		Guardians:  cfg.Guardians,
		Threshold:  cfg.Threshold,
		CreatedAt:  cfg.CreatedAt.Format(time.RFC3339),
	}, nil
}

// GetGuardianships answers "whose recovery am I a guardian for" by
// scanning recovery:share:<guardian>:* rather than materializing a
// reverse index.
func (s *Service) GetGuardianships(ctx context.Context, guardian string) (*types.GuardianshipsResponse, error) {
	keys, err := s.kv.ScanKeys(ctx, shareScanPattern(guardian))
	if err != nil {
		return nil, errorx.Internal("failed to scan guardian shares")
	}
	owners := make([]string, 0, len(keys))
	prefix := "recovery:share:" + guardian + ":"
	for _, k := range keys {
		owners = append(owners, k[len(prefix):])
	}
	return &types.GuardianshipsResponse{Guardianships: owners}, nil
}

// RequestSession creates a pending recovery session — unauthenticated by
// design, since anyone who knows the owner's pubkey can initiate recovery.
func (s *Service) RequestSession(ctx context.Context, req *types.RequestSessionRequest) (*types.RequestSessionResponse, error) {
	if req.OwnerPubkey == "" || req.EphemeralPubkey == "" {
		return nil, errorx.Validation("ownerPubkey and ephemeralPubkey are required")
	}
	if len(req.RequestedGuardians) == 0 {
		return nil, errorx.Validation("requestedGuardians must be non-empty")
	}

	fields, ok, err := s.kv.HGetAll(ctx, configKey(req.OwnerPubkey))
	if err != nil {
		return nil, errorx.Internal("failed to read recovery config")
	}
	if !ok {
		return nil, errorx.NotFound("no recovery configuration for this owner")
	}
	cfg, err := models.DecodeRecoveryConfig(fields)
	if err != nil {
		return nil, errorx.Internal("corrupt recovery config")
	}

	configured := make(map[string]bool, len(cfg.Guardians))
	for _, g := range cfg.Guardians {
		configured[g] = true
	}
	for _, g := range req.RequestedGuardians {
		if !configured[g] {
			return nil, errorx.Validation("requestedGuardians must be a subset of the configured guardians")
		}
	}

	sid := s.newID()
	now := s.now()
	session := models.RecoverySession{
		OwnerPubkey:        req.OwnerPubkey,
		EphemeralPubkey:    req.EphemeralPubkey,
		RequestedGuardians: req.RequestedGuardians,
		Threshold:          cfg.Threshold,
		Approvals:          0,
		Status:             models.SessionPending,
		CreatedAt:          now,
	}
	key := sessionKey(sid)
	if err := s.kv.HSet(ctx, key, models.EncodeRecoverySession(session)); err != nil {
		return nil, errorx.Internal("failed to create session")
	}
	if err := s.kv.Expire(ctx, key, SessionTTL); err != nil {
		return nil, errorx.Internal("failed to set session ttl")
	}

	return &types.RequestSessionResponse{Success: true, SessionID: sid, Threshold: cfg.Threshold, ExpiresIn: "24h"}, nil
}

// SessionStatus is an unauthenticated status poll — the session UUID is
// the only guard.
func (s *Service) SessionStatus(ctx context.Context, sid string) (*types.SessionStatusResponse, error) {
	session, err := s.loadSession(ctx, sid)
	if err != nil {
		return nil, err
	}
	return &types.SessionStatusResponse{
		SessionID:         sid,
		Status:            string(session.Status),
		ApprovalsReceived: session.Approvals,
		ThresholdRequired: session.Threshold,
		OwnerPubkey:       session.OwnerPubkey,
		CreatedAt:         session.CreatedAt.Format(time.RFC3339),
	}, nil
}

// Approve records one guardian's signed approval. The SetNX on the
// session-share key is the atomic "write if absent" primitive that
// resolves a same-guardian race: the winner gets to bump the counter, the
// loser sees SetNX fail and gets Conflict.
func (s *Service) Approve(ctx context.Context, sid string, req *types.ApproveRequest) (*types.ApproveResponse, error) {
	if err := s.verifier.Verify(req.GuardianPubkey, req.Signature, req.Timestamp, signing.ActionRecoveryApprove, sid); err != nil {
		return nil, err
	}
	if req.ReEncryptedShare == "" {
		return nil, errorx.Validation("reEncryptedShare must not be empty")
	}

	session, err := s.loadSession(ctx, sid)
	if err != nil {
		return nil, err
	}
	// loadSession already rejects expired/missing sessions; pending and
	// ready both still accept approvals, since a guardian can approve
	// after the threshold is already met.
	if session.Status != models.SessionPending && session.Status != models.SessionReady {
		return nil, errorx.NotReady("session is not accepting approvals")
	}

	authorized := false
	for _, g := range session.RequestedGuardians {
		if g == req.GuardianPubkey {
			authorized = true
			break
		}
	}
	if !authorized {
		return nil, errorx.AuthInvalid()
	}

	shareKey := sessionShareKey(sid, req.GuardianPubkey)
	wrote, err := s.kv.SetNX(ctx, shareKey, req.ReEncryptedShare, SessionTTL)
	if err != nil {
		return nil, errorx.Internal("failed to write session share")
	}
	if !wrote {
		return nil, errorx.Conflict("guardian has already approved this session")
	}

	key := sessionKey(sid)
	approvals, err := s.kv.HIncrBy(ctx, key, "approvals", 1)
	if err != nil {
		return nil, errorx.Internal("failed to record approval")
	}

	if int(approvals) >= session.Threshold && session.Status == models.SessionPending {
		if err := s.kv.HSet(ctx, key, map[string]string{"status": string(models.SessionReady)}); err != nil {
			return nil, errorx.Internal("failed to transition session to ready")
		}
	}

	return &types.ApproveResponse{
		Approved:          true,
		ApprovalsReceived: int(approvals),
		ThresholdRequired: session.Threshold,
	}, nil
}

// GetShares releases the approved shares — unauthenticated because the
// shares are already sealed to the requester's ephemeral key.
func (s *Service) GetShares(ctx context.Context, sid string) (*types.SharesResponse, error) {
	session, err := s.loadSession(ctx, sid)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionReady {
		return nil, errorx.NotReady("not enough guardians have approved yet")
	}

	shares := make([]types.SessionShare, 0, session.Threshold)
	for _, g := range session.RequestedGuardians {
		value, ok, err := s.kv.Get(ctx, sessionShareKey(sid, g))
		if err != nil {
			return nil, errorx.Internal("failed to read session share")
		}
		if !ok {
			continue
		}
		shares = append(shares, types.SessionShare{GuardianPubkey: g, ReEncryptedShare: value})
	}
	return &types.SharesResponse{Shares: shares}, nil
}

// Revoke deletes an owner's recovery configuration and shares. Idempotent.
func (s *Service) Revoke(ctx context.Context, req *types.RevokeRequest) (*types.RevokeResponse, error) {
	if err := s.verifier.Verify(req.SenderPubkey, req.Signature, req.Timestamp, signing.ActionRecoveryRevoke); err != nil {
		return nil, err
	}
	if err := s.revokeOwner(ctx, req.SenderPubkey); err != nil {
		return nil, err
	}
	return &types.RevokeResponse{Success: true}, nil
}

func (s *Service) revokeOwner(ctx context.Context, owner string) error {
	fields, ok, err := s.kv.HGetAll(ctx, configKey(owner))
	if err != nil {
		return errorx.Internal("failed to read recovery config")
	}
	if !ok {
		return nil
	}
	cfg, err := models.DecodeRecoveryConfig(fields)
	if err != nil {
		return errorx.Internal("corrupt recovery config")
	}
	for _, g := range cfg.Guardians {
		if err := s.kv.Del(ctx, shareKey(g, owner)); err != nil {
			return errorx.Internal("failed to delete guardian share")
		}
	}
	if err := s.kv.Del(ctx, configKey(owner)); err != nil {
		return errorx.Internal("failed to delete recovery config")
	}
	return nil
}

func (s *Service) loadSession(ctx context.Context, sid string) (models.RecoverySession, error) {
	fields, ok, err := s.kv.HGetAll(ctx, sessionKey(sid))
	if err != nil {
		return models.RecoverySession{}, errorx.Internal("failed to read session")
	}
	if !ok {
		return models.RecoverySession{}, errorx.NotFound("recovery session not found or expired")
	}
	session, err := models.DecodeRecoverySession(fields)
	if err != nil {
		return models.RecoverySession{}, errorx.Internal(fmt.Sprintf("corrupt session: %v", err))
	}
	return session, nil
}
