package studio

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/rs/zerolog/log"
)

// DescriptorCache persists style descriptors keyed by the hash of the
// normalized reference image, so re-auditing an identical reference can
// skip the model call.
type DescriptorCache interface {
	GetDescriptor(imageHash string) (descriptor string, ok bool, err error)
	SetDescriptor(imageHash, descriptor string) error
}

// CachedGenerator wraps a Generator with descriptor caching. Synthesis
// is never cached; its output depends on the model.
type CachedGenerator struct {
	inner Generator
	store DescriptorCache
}

// NewCachedGenerator creates a cached generator. A nil store disables
// caching.
func NewCachedGenerator(inner Generator, store DescriptorCache) *CachedGenerator {
	return &CachedGenerator{inner: inner, store: store}
}

func hashImage(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// AuditStyle implements Generator with caching.
func (c *CachedGenerator) AuditStyle(ctx context.Context, referencePNG []byte) (string, error) {
	hash := hashImage(referencePNG)

	if c.store != nil {
		descriptor, ok, err := c.store.GetDescriptor(hash)
		if err != nil {
			log.Warn().Err(err).Msg("failed to check descriptor cache")
		} else if ok {
			log.Debug().Str("hash", hash[:16]).Msg("descriptor cache hit")
			return descriptor, nil
		}
	}

	descriptor, err := c.inner.AuditStyle(ctx, referencePNG)
	if err != nil {
		return "", err
	}

	if c.store != nil {
		if err := c.store.SetDescriptor(hash, descriptor); err != nil {
			log.Warn().Err(err).Msg("failed to cache descriptor")
		} else {
			log.Debug().Str("hash", hash[:16]).Msg("cached descriptor")
		}
	}

	return descriptor, nil
}

// Synthesize implements Generator by passing through to the inner
// generator.
func (c *CachedGenerator) Synthesize(ctx context.Context, spec RenderSpec) (*RenderResult, error) {
	return c.inner.Synthesize(ctx, spec)
}
