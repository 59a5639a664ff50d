package studio

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okoskine/inkwash/internal/imaging"
)

// SessionState is the controller's externally visible state. Exactly
// one state is active at any time; both busy states are transient and
// return to idle on completion, success or failure.
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateAnalyzing SessionState = "analyzing"
	StateRendering SessionState = "rendering"
)

const (
	// DefaultRequestTimeout bounds a single model call so a stuck
	// request cannot leave the session in a busy state forever.
	DefaultRequestTimeout = 4 * time.Minute

	DefaultStrength = 80
)

// Options configures a new session.
type Options struct {
	// RequestTimeout bounds each model call. Zero means
	// DefaultRequestTimeout.
	RequestTimeout time.Duration
	// Tier is the initial resolution tier. Empty means TierMedium.
	Tier ResolutionTier
	// Strength is the initial style-transfer strength, clamped to
	// 1-100. Zero means DefaultStrength.
	Strength int
}

// Session sequences the style-audit and synthesis requests for one user
// session. Entry to either busy state is gated on idle, so an audit and
// a synthesis are never concurrently in flight. All mutable state is
// guarded by the mutex; only the goroutine that entered a busy state
// writes the descriptor or the result, and only after its request
// settles.
type Session struct {
	gen     Generator
	timeout time.Duration

	mu         sync.Mutex
	state      SessionState
	reference  *imaging.Normalized
	lineArt    *imaging.Normalized
	descriptor string
	result     *RenderResult
	tier       ResolutionTier
	strength   int
}

// NewSession creates an idle session backed by the given generator.
func NewSession(gen Generator, opts Options) *Session {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	tier := opts.Tier
	if tier == "" {
		tier = TierMedium
	}
	strength := opts.Strength
	if strength == 0 {
		strength = DefaultStrength
	}
	return &Session{
		gen:      gen,
		timeout:  timeout,
		state:    StateIdle,
		tier:     tier,
		strength: clampStrength(strength),
	}
}

// Status is a read-only snapshot for the presentation layer.
type Status struct {
	State        SessionState        `json:"state"`
	HasReference bool                `json:"hasReference"`
	HasLineArt   bool                `json:"hasLineArt"`
	HasResult    bool                `json:"hasResult"`
	Descriptor   string              `json:"descriptor"`
	Bucket       imaging.RatioBucket `json:"bucket,omitempty"`
	Tier         ResolutionTier      `json:"tier"`
	Strength     int                 `json:"strength"`
}

// Snapshot returns the current session status.
func (s *Session) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:        s.state,
		HasReference: s.reference != nil,
		HasLineArt:   s.lineArt != nil,
		HasResult:    s.result != nil,
		Descriptor:   s.descriptor,
		Tier:         s.tier,
		Strength:     s.strength,
	}
	if s.lineArt != nil {
		st.Bucket = s.lineArt.Bucket
	}
	return st
}

// SetReference normalizes and stores a new reference image. Any
// previously derived style descriptor is cleared first, so a render can
// never combine a stale descriptor with the new reference. Rejected
// with ErrBusy while a request is in flight.
func (s *Session) SetReference(raw []byte) error {
	normalized, err := imaging.Normalize(raw)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrBusy
	}
	s.descriptor = ""
	s.reference = normalized
	log.Debug().Int("width", normalized.Width).Int("height", normalized.Height).
		Msg("reference image set, descriptor invalidated")
	return nil
}

// SetLineArt normalizes and stores a new line-art image and clears any
// previous render result, which was generated against the old geometry.
// Rejected with ErrBusy while a request is in flight.
func (s *Session) SetLineArt(raw []byte) error {
	normalized, err := imaging.Normalize(raw)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrBusy
	}
	s.result = nil
	s.lineArt = normalized
	log.Debug().Int("width", normalized.Width).Int("height", normalized.Height).
		Str("bucket", string(normalized.Bucket)).
		Msg("line-art image set, previous result cleared")
	return nil
}

// AuditStyle runs the style-audit request against the stored reference
// image. On success the descriptor is replaced with the model's text,
// which may be empty. On failure the descriptor keeps its previous
// value. The session always returns to idle.
func (s *Session) AuditStyle(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return "", ErrBusy
	}
	if s.reference == nil {
		s.mu.Unlock()
		return "", ErrNoReference
	}
	referencePNG := s.reference.PNG
	s.state = StateAnalyzing
	s.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	descriptor, err := s.gen.AuditStyle(reqCtx, referencePNG)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	if err != nil {
		log.Warn().Err(err).Msg("style audit failed")
		return s.descriptor, err
	}
	s.descriptor = descriptor
	log.Info().Int("descriptorLen", len(descriptor)).Msg("style audit complete")
	return descriptor, nil
}

// Synthesize runs the render request. When the session is busy or a
// required input is absent (line-art, or a non-empty descriptor under
// the strict-fidelity policy) the trigger is a no-op, not an error:
// issued is false and no request goes out. A response without an image
// part is the soft ErrEmptyResult; the result stays absent. The session
// always returns to idle.
func (s *Session) Synthesize(ctx context.Context) (issued bool, err error) {
	s.mu.Lock()
	if s.state != StateIdle || s.lineArt == nil || s.descriptor == "" {
		s.mu.Unlock()
		return false, nil
	}
	spec := RenderSpec{
		LineArtPNG: s.lineArt.PNG,
		Descriptor: s.descriptor,
		Ratio:      s.lineArt.Bucket,
		Tier:       s.tier,
		Strength:   s.strength,
	}
	s.state = StateRendering
	s.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.gen.Synthesize(reqCtx, spec)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	if err != nil {
		log.Warn().Err(err).Msg("synthesis failed")
		return true, err
	}
	s.result = result
	log.Info().Str("bucket", string(spec.Ratio)).Str("tier", string(spec.Tier)).
		Int("strength", spec.Strength).Int("bytes", len(result.Data)).
		Msg("synthesis complete")
	return true, nil
}

// Result returns the stored render result, if any.
func (s *Session) Result() (*RenderResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil, false
	}
	return s.result, true
}

// DiscardResult clears the stored render result.
func (s *Session) DiscardResult() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = nil
}

// Reset clears all session state for a fresh start. Rejected with
// ErrBusy while a request is in flight, since in-flight requests cannot
// be cancelled.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrBusy
	}
	s.reference = nil
	s.lineArt = nil
	s.descriptor = ""
	s.result = nil
	return nil
}

// SetTier updates the requested resolution tier.
func (s *Session) SetTier(tier ResolutionTier) error {
	if _, err := ParseTier(string(tier)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tier = tier
	return nil
}

// SetStrength updates the style-transfer strength, clamped to 0-100.
func (s *Session) SetStrength(strength int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strength = clampStrength(strength)
}

func clampStrength(strength int) int {
	if strength < 0 {
		return 0
	}
	if strength > 100 {
		return 100
	}
	return strength
}
