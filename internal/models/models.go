// Package models defines the durable/transient record types stored in the
// shared key-value store, plus per-record-type encoders and decoders:
// hash values come out of the store as untyped map[string]string, so each
// record type gets a small decoder that coerces numeric fields and
// rejects missing required fields.
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const timeLayout = time.RFC3339

// RecoveryConfig is stored at key recovery:config:<owner>.
type RecoveryConfig struct {
	Threshold int
	Guardians []string
	CreatedAt time.Time
}

func EncodeRecoveryConfig(c RecoveryConfig) map[string]string {
	return map[string]string{
		"threshold": strconv.Itoa(c.Threshold),
		"guardians": strings.Join(c.Guardians, ","),
		"createdAt": c.CreatedAt.Format(timeLayout),
	}
}

func DecodeRecoveryConfig(fields map[string]string) (RecoveryConfig, error) {
	var c RecoveryConfig
	th, err := requireInt(fields, "threshold")
	if err != nil {
		return c, err
	}
	guardians, err := requireString(fields, "guardians")
	if err != nil {
		return c, err
	}
	createdAt, err := requireTime(fields, "createdAt")
	if err != nil {
		return c, err
	}
	c.Threshold = th
	c.Guardians = splitNonEmpty(guardians)
	c.CreatedAt = createdAt
	return c, nil
}

// GuardianShare is stored at key recovery:share:<guardian>:<owner>.
type GuardianShare struct {
	EncryptedShare string
	ShareIndex     int
	CreatedAt      time.Time
}

func EncodeGuardianShare(s GuardianShare) map[string]string {
	return map[string]string{
		"encryptedShare": s.EncryptedShare,
		"shareIndex":     strconv.Itoa(s.ShareIndex),
		"createdAt":      s.CreatedAt.Format(timeLayout),
	}
}

func DecodeGuardianShare(fields map[string]string) (GuardianShare, error) {
	var s GuardianShare
	enc, err := requireString(fields, "encryptedShare")
	if err != nil {
		return s, err
	}
	idx, err := requireInt(fields, "shareIndex")
	if err != nil {
		return s, err
	}
	createdAt, err := requireTime(fields, "createdAt")
	if err != nil {
		return s, err
	}
	s.EncryptedShare = enc
	s.ShareIndex = idx
	s.CreatedAt = createdAt
	return s, nil
}

// SessionStatus is RecoverySession.Status.
type SessionStatus string

const (
	SessionPending SessionStatus = "pending"
	SessionReady   SessionStatus = "ready"
	SessionExpired SessionStatus = "expired"
)

// RecoverySession is stored at key recovery:session:<sid>, TTL 24h.
type RecoverySession struct {
	OwnerPubkey        string
	EphemeralPubkey    string
	RequestedGuardians []string
	Threshold          int
	Approvals          int
	Status             SessionStatus
	CreatedAt          time.Time
}

func EncodeRecoverySession(s RecoverySession) map[string]string {
	return map[string]string{
		"ownerPubkey":        s.OwnerPubkey,
		"ephemeralPubkey":    s.EphemeralPubkey,
		"requestedGuardians": strings.Join(s.RequestedGuardians, ","),
		"threshold":          strconv.Itoa(s.Threshold),
		"approvals":          strconv.Itoa(s.Approvals),
		"status":             string(s.Status),
		"createdAt":          s.CreatedAt.Format(timeLayout),
	}
}

func DecodeRecoverySession(fields map[string]string) (RecoverySession, error) {
	var s RecoverySession
	owner, err := requireString(fields, "ownerPubkey")
	if err != nil {
		return s, err
	}
	ephemeral, err := requireString(fields, "ephemeralPubkey")
	if err != nil {
		return s, err
	}
	guardians := fields["requestedGuardians"]
	threshold, err := requireInt(fields, "threshold")
	if err != nil {
		return s, err
	}
	approvals, err := requireInt(fields, "approvals")
	if err != nil {
		return s, err
	}
	status, err := requireString(fields, "status")
	if err != nil {
		return s, err
	}
	createdAt, err := requireTime(fields, "createdAt")
	if err != nil {
		return s, err
	}
	s.OwnerPubkey = owner
	s.EphemeralPubkey = ephemeral
	s.RequestedGuardians = splitNonEmpty(guardians)
	s.Threshold = threshold
	s.Approvals = approvals
	s.Status = SessionStatus(status)
	s.CreatedAt = createdAt
	return s, nil
}

// SwitchStatus is DMSSwitch.Status.
type SwitchStatus string

const (
	SwitchActive    SwitchStatus = "active"
	SwitchTriggered SwitchStatus = "triggered"
	SwitchCancelled SwitchStatus = "cancelled"
)

// DMSSwitch is stored at key dms:switch:<switchId>.
type DMSSwitch struct {
	SenderPubkey      string
	RecipientUsername string
	PayloadHandle     string
	IntervalHours     int
	NextDeadline      time.Time
	Status            SwitchStatus
	CreatedAt         time.Time
	TriggeredAt       *time.Time
}

func EncodeDMSSwitch(w DMSSwitch) map[string]string {
	f := map[string]string{
		"senderPubkey":      w.SenderPubkey,
		"recipientUsername": w.RecipientUsername,
		"payloadHandle":     w.PayloadHandle,
		"intervalHours":     strconv.Itoa(w.IntervalHours),
		"nextDeadline":      w.NextDeadline.Format(timeLayout),
		"status":            string(w.Status),
		"createdAt":         w.CreatedAt.Format(timeLayout),
	}
	if w.TriggeredAt != nil {
		f["triggeredAt"] = w.TriggeredAt.Format(timeLayout)
	}
	return f
}

func DecodeDMSSwitch(fields map[string]string) (DMSSwitch, error) {
	var w DMSSwitch
	sender, err := requireString(fields, "senderPubkey")
	if err != nil {
		return w, err
	}
	recipient, err := requireString(fields, "recipientUsername")
	if err != nil {
		return w, err
	}
	handle, err := requireString(fields, "payloadHandle")
	if err != nil {
		return w, err
	}
	interval, err := requireInt(fields, "intervalHours")
	if err != nil {
		return w, err
	}
	deadline, err := requireTime(fields, "nextDeadline")
	if err != nil {
		return w, err
	}
	status, err := requireString(fields, "status")
	if err != nil {
		return w, err
	}
	createdAt, err := requireTime(fields, "createdAt")
	if err != nil {
		return w, err
	}
	w.SenderPubkey = sender
	w.RecipientUsername = recipient
	w.PayloadHandle = handle
	w.IntervalHours = interval
	w.NextDeadline = deadline
	w.Status = SwitchStatus(status)
	w.CreatedAt = createdAt
	if raw, ok := fields["triggeredAt"]; ok && raw != "" {
		t, err := time.Parse(timeLayout, raw)
		if err != nil {
			return w, fmt.Errorf("triggeredAt: %w", err)
		}
		w.TriggeredAt = &t
	}
	return w, nil
}

// ReleaseRecord is the JSON body written at dms:release:<switchId>.
type ReleaseRecord struct {
	Type              string    `json:"type"`
	SwitchID          string    `json:"switchId"`
	SenderPubkey      string    `json:"senderPubkey"`
	RecipientUsername string    `json:"recipientUsername"`
	EncryptedMessage  string    `json:"encryptedMessage"`
	TriggeredAt       time.Time `json:"triggeredAt"`
}

func requireString(fields map[string]string, key string) (string, error) {
	v, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%s: missing required field", key)
	}
	return v, nil
}

func requireInt(fields map[string]string, key string) (int, error) {
	raw, err := requireString(fields, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: not an integer: %w", key, err)
	}
	return n, nil
}

func requireTime(fields map[string]string, key string) (time.Time, error) {
	raw, err := requireString(fields, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: not a timestamp: %w", key, err)
	}
	return t, nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
