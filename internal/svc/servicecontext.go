// Package svc wires up the process-wide dependencies — the KV store
// connection and the config — and hands them to each service as an
// explicit dependency. No globals survive between tests.
package svc

import (
	"github.com/sentineld/guardian-core/internal/blobstore"
	"github.com/sentineld/guardian-core/internal/config"
	"github.com/sentineld/guardian-core/internal/identity"
	"github.com/sentineld/guardian-core/internal/kvstore"
	"github.com/sentineld/guardian-core/internal/logic/dms"
	"github.com/sentineld/guardian-core/internal/logic/recovery"
	"github.com/sentineld/guardian-core/internal/signing"
)

type ServiceContext struct {
	Config   config.Config
	Recovery *recovery.Service
	DMS      *dms.Service
}

// NewServiceContext dials the KV store and wires both domain services.
func NewServiceContext(c config.Config) *ServiceContext {
	kv, err := kvstore.New(c.KV.Host, c.KV.Port, c.KV.Password, c.KV.DB)
	if err != nil {
		panic(err)
	}

	verifier := signing.NewVerifier(c.Skew())
	resolver := identity.NewHTTPResolver(c.IdentityLookupEndpoint, c.ClientTimeout())
	blobs := blobstore.NewHTTPStore(c.BlobUploadEndpoint, c.ClientTimeout(), kv)

	return &ServiceContext{
		Config:   c,
		Recovery: recovery.NewService(kv, verifier),
		DMS:      dms.NewService(kv, verifier, resolver, blobs, c.DMSCronSecret),
	}
}
