// Package blobstore is the external permanent-storage collaborator
// (Arweave or equivalent), plus the local fallback path used when the
// upload fails.
package blobstore

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/sentineld/guardian-core/internal/kvstore"
)

// LocalFallbackTTL is the TTL on a fallback payload stored in the shared
// KV store.
const LocalFallbackTTL = 365 * 24 * time.Hour

// LocalHandlePrefix marks a handle as a fallback payload rather than an
// external blob id.
const LocalHandlePrefix = "local:"

// Store uploads and fetches DMS ciphertexts.
type Store interface {
	Upload(ctx context.Context, ciphertext string) (handle string, err error)
	Fetch(ctx context.Context, handle string) (ciphertext string, err error)
}

// HTTPStore uploads to the external blob endpoint and falls back to the
// shared kvstore.Store when the upload fails, degrading gracefully
// without telling the caller.
type HTTPStore struct {
	endpoint string
	client   *http.Client
	kv       kvstore.Store
}

func NewHTTPStore(endpoint string, timeout time.Duration, kv kvstore.Store) *HTTPStore {
	return &HTTPStore{endpoint: endpoint, client: &http.Client{Timeout: timeout}, kv: kv}
}

func (s *HTTPStore) Upload(ctx context.Context, ciphertext string) (string, error) {
	handle, err := s.uploadExternal(ctx, ciphertext)
	if err == nil {
		return handle, nil
	}
	logx.WithContext(ctx).Errorf("blob upload to %s failed, degrading to local fallback: %v", s.endpoint, err)
	return s.uploadLocal(ctx, ciphertext)
}

func (s *HTTPStore) uploadExternal(ctx context.Context, ciphertext string) (string, error) {
	body, _ := json.Marshal(map[string]string{"ciphertext": ciphertext})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("blob upload failed: %d %s", resp.StatusCode, b)
	}

	var out struct {
		Handle string `json:"handle"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Handle == "" {
		return "", fmt.Errorf("blob upload returned no handle")
	}
	return out.Handle, nil
}

func (s *HTTPStore) uploadLocal(ctx context.Context, ciphertext string) (string, error) {
	id, err := randomID()
	if err != nil {
		return "", fmt.Errorf("generate fallback id: %w", err)
	}
	handle := LocalHandlePrefix + id
	key := "dms:" + id
	if err := s.kv.Set(ctx, key, ciphertext, LocalFallbackTTL); err != nil {
		return "", fmt.Errorf("store fallback payload: %w", err)
	}
	return handle, nil
}

func (s *HTTPStore) Fetch(ctx context.Context, handle string) (string, error) {
	if strings.HasPrefix(handle, LocalHandlePrefix) {
		id := strings.TrimPrefix(handle, LocalHandlePrefix)
		val, ok, err := s.kv.Get(ctx, "dms:"+id)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("fallback payload expired or missing: %s", handle)
		}
		return val, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/"+handle, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("blob fetch failed: %d %s", resp.StatusCode, b)
	}
	var out struct {
		Ciphertext string `json:"ciphertext"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode blob fetch response: %w", err)
	}
	return out.Ciphertext, nil
}

func randomID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
