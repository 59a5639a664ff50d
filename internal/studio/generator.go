package studio

import (
	"context"
	"fmt"

	"github.com/okoskine/inkwash/internal/imaging"
)

// ResolutionTier is one of the fixed output size classes requested from
// the generation service. There is no continuous scaling.
type ResolutionTier string

const (
	TierLow    ResolutionTier = "low"
	TierMedium ResolutionTier = "medium"
	TierHigh   ResolutionTier = "high"
)

// ParseTier validates a user-supplied tier value.
func ParseTier(s string) (ResolutionTier, error) {
	switch ResolutionTier(s) {
	case TierLow, TierMedium, TierHigh:
		return ResolutionTier(s), nil
	default:
		return "", fmt.Errorf("unknown resolution tier %q", s)
	}
}

// RenderSpec is a synthesis request: the normalized line-art plus the
// constraints composed into the model instruction.
type RenderSpec struct {
	LineArtPNG []byte
	Descriptor string
	Ratio      imaging.RatioBucket
	Tier       ResolutionTier
	Strength   int // 0-100, embedded as a qualitative constraint
}

// RenderResult is an encoded output image returned by the model.
type RenderResult struct {
	Data     []byte
	MimeType string
}

// DataURI returns the result as a self-describing data URI for the
// presentation layer.
func (r *RenderResult) DataURI() string {
	return imaging.EncodeDataURI(r.Data, r.MimeType)
}

// Generator is the contract with the external generative model service.
// Implementations return the studio error taxonomy: *CredentialError,
// *TransportError or ErrEmptyResult.
type Generator interface {
	// AuditStyle submits a flattened reference image with a static
	// analysis instruction and returns the model's style descriptor
	// verbatim. An empty descriptor is a valid result, not a failure.
	AuditStyle(ctx context.Context, referencePNG []byte) (string, error)

	// Synthesize submits the line-art with a composed instruction and
	// returns the first inline image of the response.
	Synthesize(ctx context.Context, spec RenderSpec) (*RenderResult, error)
}

// CredentialProvider supplies the model service credential. It replaces
// ambient global credential lookup so the controller can detect the
// missing-credential condition before issuing a request.
type CredentialProvider interface {
	ActiveKey() (string, error)
}
