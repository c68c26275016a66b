// Package dms implements the dead-man's switch lifecycle
// (create/checkin/cancel/list) and the periodic release-on-deadline
// sweep.
package dms

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/sentineld/guardian-core/internal/blobstore"
	"github.com/sentineld/guardian-core/internal/errorx"
	"github.com/sentineld/guardian-core/internal/identity"
	"github.com/sentineld/guardian-core/internal/kvstore"
	"github.com/sentineld/guardian-core/internal/models"
	"github.com/sentineld/guardian-core/internal/signing"
	"github.com/sentineld/guardian-core/internal/types"
)

// ReleaseTTL is the 90-day TTL on a released-message record.
const ReleaseTTL = 90 * 24 * time.Hour

const (
	minIntervalHours = 1
	maxIntervalHours = 8760
)

// Service implements switch creation, checkin, cancellation, listing, and
// the triggered-release sweep.
type Service struct {
	kv         kvstore.Store
	verifier   *signing.Verifier
	identity   identity.Resolver
	blobs      blobstore.Store
	cronSecret string
	now        func() time.Time
	newID      func() string
}

func NewService(kv kvstore.Store, verifier *signing.Verifier, resolver identity.Resolver, blobs blobstore.Store, cronSecret string) *Service {
	return &Service{
		kv:         kv,
		verifier:   verifier,
		identity:   resolver,
		blobs:      blobs,
		cronSecret: cronSecret,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
}

func switchKey(id string) string       { return "dms:switch:" + id }
func userIndexKey(pubkey string) string { return "dms:user:" + pubkey }
func activeIndexKey() string           { return "dms:active" }
func releaseKey(id string) string      { return "dms:release:" + id }

// Create registers a new switch, uploading the encrypted message and
// indexing the switch by sender and by active status.
func (s *Service) Create(ctx context.Context, req *types.CreateSwitchRequest) (*types.CreateSwitchResponse, error) {
	if err := s.verifier.Verify(req.SenderPubkey, req.Signature, req.Timestamp, signing.ActionDMSCreate, req.RecipientUsername); err != nil {
		return nil, err
	}
	if req.CheckInIntervalHours < minIntervalHours || req.CheckInIntervalHours > maxIntervalHours {
		return nil, errorx.Validation("checkInIntervalHours must be between 1 and 8760")
	}
	if req.RecipientUsername == "" || req.EncryptedMessage == "" {
		return nil, errorx.Validation("recipientUsername and encryptedMessage are required")
	}

	if _, err := s.identity.Resolve(ctx, req.RecipientUsername); err != nil {
		if err == identity.ErrNotFound {
			return nil, errorx.NotFound("recipient username not found")
		}
		return nil, errorx.Internal("failed to resolve recipient username")
	}

	handle, err := s.blobs.Upload(ctx, req.EncryptedMessage)
	if err != nil {
		return nil, errorx.Internal("failed to store encrypted message")
	}

	id := s.newID()
	now := s.now()
	deadline := now.Add(time.Duration(req.CheckInIntervalHours) * time.Hour)
	sw := models.DMSSwitch{
		SenderPubkey:      req.SenderPubkey,
		RecipientUsername: req.RecipientUsername,
		PayloadHandle:     handle,
		IntervalHours:     req.CheckInIntervalHours,
		NextDeadline:      deadline,
		Status:            models.SwitchActive,
		CreatedAt:         now,
	}
	if err := s.kv.HSet(ctx, switchKey(id), models.EncodeDMSSwitch(sw)); err != nil {
		return nil, errorx.Internal("failed to create switch")
	}
	if err := s.kv.SAdd(ctx, userIndexKey(req.SenderPubkey), id); err != nil {
		return nil, errorx.Internal("failed to index switch for user")
	}
	if err := s.kv.SAdd(ctx, activeIndexKey(), id); err != nil {
		return nil, errorx.Internal("failed to index active switch")
	}

	return &types.CreateSwitchResponse{Success: true, SwitchID: id, NextDeadline: deadline.Format(time.RFC3339)}, nil
}

// Checkin bumps every active switch owned by the signer by its own
// interval (per-switch, not a global deadline).
func (s *Service) Checkin(ctx context.Context, req *types.CheckinRequest) (*types.CheckinResponse, error) {
	if err := s.verifier.Verify(req.SenderPubkey, req.Signature, req.Timestamp, signing.ActionDMSCheckin); err != nil {
		return nil, err
	}

	ids, err := s.kv.SMembers(ctx, userIndexKey(req.SenderPubkey))
	if err != nil {
		return nil, errorx.Internal("failed to read user switches")
	}

	now := s.now()
	var (
		bumped  int
		latest  time.Time
	)
	for _, id := range ids {
		fields, ok, err := s.kv.HGetAll(ctx, switchKey(id))
		if err != nil {
			return nil, errorx.Internal("failed to read switch")
		}
		if !ok {
			continue
		}
		sw, err := models.DecodeDMSSwitch(fields)
		if err != nil {
			return nil, errorx.Internal("corrupt switch record")
		}
		if sw.Status != models.SwitchActive {
			continue
		}
		deadline := now.Add(time.Duration(sw.IntervalHours) * time.Hour)
		if err := s.kv.HSet(ctx, switchKey(id), map[string]string{"nextDeadline": deadline.Format(time.RFC3339)}); err != nil {
			return nil, errorx.Internal("failed to bump switch deadline")
		}
		bumped++
		if deadline.After(latest) {
			latest = deadline
		}
	}

	resp := &types.CheckinResponse{Success: true, CheckedIn: true, SwitchCount: bumped}
	if bumped > 0 {
		resp.NextDeadline = latest.Format(time.RFC3339)
	}
	return resp, nil
}

// Cancel marks a switch cancelled. Non-existent and not-yours are
// collapsed into the same 404 to avoid an existence oracle.
func (s *Service) Cancel(ctx context.Context, switchID string, req *types.CancelRequest) (*types.CancelResponse, error) {
	if err := s.verifier.Verify(req.SenderPubkey, req.Signature, req.Timestamp, signing.ActionDMSCancel, switchID); err != nil {
		return nil, err
	}

	fields, ok, err := s.kv.HGetAll(ctx, switchKey(switchID))
	if err != nil {
		return nil, errorx.Internal("failed to read switch")
	}
	if !ok {
		return nil, errorx.NotFound("switch not found")
	}
	sw, err := models.DecodeDMSSwitch(fields)
	if err != nil {
		return nil, errorx.Internal("corrupt switch record")
	}
	if sw.SenderPubkey != req.SenderPubkey {
		return nil, errorx.NotFound("switch not found")
	}

	if err := s.kv.HSet(ctx, switchKey(switchID), map[string]string{"status": string(models.SwitchCancelled)}); err != nil {
		return nil, errorx.Internal("failed to cancel switch")
	}
	// Stays in the user index so List still returns it (as history, not
	// active); only the active index drops it, same as markTriggered.
	if err := s.kv.SRem(ctx, activeIndexKey(), switchID); err != nil {
		return nil, errorx.Internal("failed to update active index")
	}

	return &types.CancelResponse{Success: true}, nil
}

// List returns switch metadata only — ciphertexts are never returned.
func (s *Service) List(ctx context.Context, pubkey string) (*types.ListSwitchesResponse, error) {
	ids, err := s.kv.SMembers(ctx, userIndexKey(pubkey))
	if err != nil {
		return nil, errorx.Internal("failed to read user switches")
	}

	out := make([]types.SwitchMeta, 0, len(ids))
	for _, id := range ids {
		fields, ok, err := s.kv.HGetAll(ctx, switchKey(id))
		if err != nil {
			return nil, errorx.Internal("failed to read switch")
		}
		if !ok {
			continue
		}
		sw, err := models.DecodeDMSSwitch(fields)
		if err != nil {
			return nil, errorx.Internal("corrupt switch record")
		}
		meta := types.SwitchMeta{
			SwitchID:          id,
			RecipientUsername: sw.RecipientUsername,
			IntervalHours:     sw.IntervalHours,
			NextDeadline:      sw.NextDeadline.Format(time.RFC3339),
			Status:            string(sw.Status),
			CreatedAt:         sw.CreatedAt.Format(time.RFC3339),
		}
		if sw.TriggeredAt != nil {
			meta.TriggeredAt = sw.TriggeredAt.Format(time.RFC3339)
		}
		out = append(out, meta)
	}
	return &types.ListSwitchesResponse{Switches: out}, nil
}

// VerifyCronSecret checks the X-Cron-Secret header required for
// /process, in constant time.
func (s *Service) VerifyCronSecret(provided string) bool {
	if s.cronSecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(s.cronSecret)) == 1
}

// Process is the periodic sweep over active switches. Per-switch
// failures are recorded and never abort the batch.
func (s *Service) Process(ctx context.Context) (*types.ProcessResponse, error) {
	ids, err := s.kv.SMembers(ctx, activeIndexKey())
	if err != nil {
		return nil, errorx.Internal("failed to read active index")
	}

	now := s.now()
	resp := &types.ProcessResponse{Total: len(ids)}

	for _, id := range ids {
		fields, ok, err := s.kv.HGetAll(ctx, switchKey(id))
		if err != nil {
			logx.WithContext(ctx).Errorf("dms sweep: read switch %s failed: %v", id, err)
			resp.Errors = append(resp.Errors, id+": "+err.Error())
			continue
		}
		if !ok {
			// Missing record: defensive cleanup, index self-heals.
			_ = s.kv.SRem(ctx, activeIndexKey(), id)
			continue
		}
		sw, err := models.DecodeDMSSwitch(fields)
		if err != nil || sw.Status != models.SwitchActive {
			// Corrupt or non-active but still indexed: defensive cleanup.
			_ = s.kv.SRem(ctx, activeIndexKey(), id)
			continue
		}
		if sw.NextDeadline.After(now) {
			continue
		}

		if err := s.release(ctx, id, sw, now); err != nil {
			logx.WithContext(ctx).Errorf("dms sweep: release switch %s failed: %v", id, err)
			resp.Errors = append(resp.Errors, id+": "+err.Error())
			continue
		}
		resp.Processed++
	}

	return resp, nil
}

func (s *Service) release(ctx context.Context, id string, sw models.DMSSwitch, now time.Time) error {
	// The release record is addressed by switch id, not by recipient
	// pubkey; this resolve just confirms the recipient still exists.
	if _, err := s.identity.Resolve(ctx, sw.RecipientUsername); err != nil {
		return err
	}

	ciphertext, err := s.blobs.Fetch(ctx, sw.PayloadHandle)
	if err != nil {
		return err
	}

	record := models.ReleaseRecord{
		Type:              "dms_release",
		SwitchID:          id,
		SenderPubkey:      sw.SenderPubkey,
		RecipientUsername: sw.RecipientUsername,
		EncryptedMessage:  ciphertext,
		TriggeredAt:       now,
	}
	payload, err := marshalRelease(record)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, releaseKey(id), payload, ReleaseTTL); err != nil {
		return err
	}

	return s.markTriggered(ctx, id, now)
}

// markTriggered sets status then removes from the active index. A crash
// between the two leaves a triggered switch in the active index, which
// the next sweep removes defensively.
func (s *Service) markTriggered(ctx context.Context, id string, now time.Time) error {
	if err := s.kv.HSet(ctx, switchKey(id), map[string]string{
		"status":      string(models.SwitchTriggered),
		"triggeredAt": now.Format(time.RFC3339),
	}); err != nil {
		return err
	}
	return s.kv.SRem(ctx, activeIndexKey(), id)
}

func marshalRelease(record models.ReleaseRecord) (string, error) {
	b, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
