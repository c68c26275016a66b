// Package identity is the external identity-registry collaborator:
// resolving a username to a recipient public key. The core has no
// opinion about the registry beyond this one call.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

// ErrNotFound is returned when the username does not resolve.
var ErrNotFound = fmt.Errorf("recipient username not found")

// Resolver resolves a username to a pubkey.
type Resolver interface {
	Resolve(ctx context.Context, username string) (pubkey string, err error)
}

// HTTPResolver calls an external username-registry HTTP endpoint with a
// bare net/http GET against IdentityLookupEndpoint.
type HTTPResolver struct {
	endpoint string
	client   *http.Client
}

func NewHTTPResolver(endpoint string, timeout time.Duration) *HTTPResolver {
	return &HTTPResolver{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

func (r *HTTPResolver) Resolve(ctx context.Context, username string) (string, error) {
	u := fmt.Sprintf("%s?username=%s", r.endpoint, url.QueryEscape(username))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		logx.WithContext(ctx).Errorf("identity lookup request to %s failed: %v", r.endpoint, err)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		logx.WithContext(ctx).Errorf("identity lookup failed: %d %s", resp.StatusCode, body)
		return "", fmt.Errorf("identity lookup failed: %d %s", resp.StatusCode, body)
	}

	var out struct {
		Pubkey string `json:"pubkey"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		logx.WithContext(ctx).Errorf("decode identity response from %s failed: %v", r.endpoint, err)
		return "", fmt.Errorf("decode identity response: %w", err)
	}
	if out.Pubkey == "" {
		return "", ErrNotFound
	}
	return out.Pubkey, nil
}
