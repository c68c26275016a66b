// Package config defines the process configuration, loaded from YAML via
// go-zero's conf.MustLoad.
package config

import (
	"time"

	"github.com/zeromicro/go-zero/rest"
)

// RedisConfig holds the connection fields the KV store adapter needs.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Config is the full process configuration.
type Config struct {
	rest.RestConf

	KV RedisConfig

	// BlobUploadEndpoint is the external permanent-storage collaborator
	// (Arweave or equivalent) that DMS ciphertexts are uploaded to.
	BlobUploadEndpoint string

	// IdentityLookupEndpoint resolves a recipientUsername to a pubkey.
	IdentityLookupEndpoint string

	// DMSCronSecret gates POST /api/dms/process.
	DMSCronSecret string

	// SignatureSkewSeconds bounds request freshness. Zero means "use the
	// default", applied by signing.NewVerifier.
	SignatureSkewSeconds int

	// HTTPClientTimeout bounds calls to the two external collaborators.
	HTTPClientTimeout time.Duration
}

// DefaultSkew is the default signature freshness window.
const DefaultSkew = 300 * time.Second

// Skew returns the configured signature freshness window, or DefaultSkew.
func (c Config) Skew() time.Duration {
	if c.SignatureSkewSeconds <= 0 {
		return DefaultSkew
	}
	return time.Duration(c.SignatureSkewSeconds) * time.Second
}

// ClientTimeout returns the configured external-call timeout, defaulting to
// a conservative 10s.
func (c Config) ClientTimeout() time.Duration {
	if c.HTTPClientTimeout <= 0 {
		return 10 * time.Second
	}
	return c.HTTPClientTimeout
}
