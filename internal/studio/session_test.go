package studio

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okoskine/inkwash/internal/imaging"
)

// mockGenerator records calls and serves canned responses. When block is
// set, calls park on it until release is closed, which lets tests observe
// the session mid-request.
type mockGenerator struct {
	mu              sync.Mutex
	auditCalls      int
	synthesizeCalls int
	lastSpec        RenderSpec

	descriptor string
	auditErr   error
	result     *RenderResult
	synthErr   error

	block   bool
	entered chan struct{}
	release chan struct{}
}

func newBlockingGenerator() *mockGenerator {
	return &mockGenerator{
		block:   true,
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
}

func (m *mockGenerator) AuditStyle(ctx context.Context, referencePNG []byte) (string, error) {
	m.mu.Lock()
	m.auditCalls++
	m.mu.Unlock()
	if m.block {
		m.entered <- struct{}{}
		<-m.release
	}
	return m.descriptor, m.auditErr
}

func (m *mockGenerator) Synthesize(ctx context.Context, spec RenderSpec) (*RenderResult, error) {
	m.mu.Lock()
	m.synthesizeCalls++
	m.lastSpec = spec
	m.mu.Unlock()
	if m.block {
		m.entered <- struct{}{}
		<-m.release
	}
	return m.result, m.synthErr
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))))
	return buf.Bytes()
}

func TestSession_StartsIdle(t *testing.T) {
	s := NewSession(&mockGenerator{}, Options{})

	st := s.Snapshot()
	assert.Equal(t, StateIdle, st.State)
	assert.False(t, st.HasReference)
	assert.False(t, st.HasLineArt)
	assert.False(t, st.HasResult)
	assert.Empty(t, st.Descriptor)
	assert.Equal(t, TierMedium, st.Tier)
	assert.Equal(t, DefaultStrength, st.Strength)
}

func TestSession_AuditStoresDescriptor(t *testing.T) {
	gen := &mockGenerator{descriptor: "warm watercolor palette"}
	s := NewSession(gen, Options{})
	require.NoError(t, s.SetReference(pngBytes(t, 100, 100)))

	descriptor, err := s.AuditStyle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "warm watercolor palette", descriptor)

	st := s.Snapshot()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, "warm watercolor palette", st.Descriptor)
	assert.Equal(t, 1, gen.auditCalls)
}

func TestSession_AuditWithoutReference(t *testing.T) {
	gen := &mockGenerator{}
	s := NewSession(gen, Options{})

	_, err := s.AuditStyle(context.Background())
	assert.ErrorIs(t, err, ErrNoReference)
	assert.Zero(t, gen.auditCalls)
	assert.Equal(t, StateIdle, s.Snapshot().State)
}

func TestSession_AuditFailureKeepsPreviousDescriptor(t *testing.T) {
	gen := &mockGenerator{descriptor: "first descriptor"}
	s := NewSession(gen, Options{})
	require.NoError(t, s.SetReference(pngBytes(t, 100, 100)))
	_, err := s.AuditStyle(context.Background())
	require.NoError(t, err)

	gen.auditErr = &CredentialError{Reason: "api key rejected"}
	_, err = s.AuditStyle(context.Background())

	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
	st := s.Snapshot()
	assert.Equal(t, StateIdle, st.State, "failed audit must still return to idle")
	assert.Equal(t, "first descriptor", st.Descriptor, "failed audit must not touch the descriptor")
}

func TestSession_AuditWhileBusy(t *testing.T) {
	gen := newBlockingGenerator()
	gen.descriptor = "descriptor"
	s := NewSession(gen, Options{})
	require.NoError(t, s.SetReference(pngBytes(t, 100, 100)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := s.AuditStyle(context.Background())
		assert.NoError(t, err)
	}()
	<-gen.entered

	assert.Equal(t, StateAnalyzing, s.Snapshot().State)
	_, err := s.AuditStyle(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, s.SetReference(pngBytes(t, 50, 50)), ErrBusy)
	assert.ErrorIs(t, s.SetLineArt(pngBytes(t, 50, 50)), ErrBusy)
	assert.ErrorIs(t, s.Reset(), ErrBusy)

	close(gen.release)
	<-done
	assert.Equal(t, StateIdle, s.Snapshot().State)
	assert.Equal(t, 1, gen.auditCalls)
}

func TestSession_SynthesizeIssuesRequest(t *testing.T) {
	gen := &mockGenerator{
		descriptor: "cool palette, flat shading",
		result:     &RenderResult{Data: []byte{1, 2, 3}, MimeType: "image/png"},
	}
	s := NewSession(gen, Options{Tier: TierHigh, Strength: 65})
	require.NoError(t, s.SetReference(pngBytes(t, 100, 100)))
	require.NoError(t, s.SetLineArt(pngBytes(t, 1600, 900)))
	_, err := s.AuditStyle(context.Background())
	require.NoError(t, err)

	issued, err := s.Synthesize(context.Background())
	require.NoError(t, err)
	assert.True(t, issued)

	assert.Equal(t, "cool palette, flat shading", gen.lastSpec.Descriptor)
	assert.Equal(t, imaging.RatioWide, gen.lastSpec.Ratio)
	assert.Equal(t, TierHigh, gen.lastSpec.Tier)
	assert.Equal(t, 65, gen.lastSpec.Strength)

	result, ok := s.Result()
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, result.Data)
	assert.Equal(t, StateIdle, s.Snapshot().State)
}

func TestSession_SynthesizeMissingInputsIsNoOp(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, s *Session, gen *mockGenerator)
	}{
		{
			name:  "nothing uploaded",
			setup: func(t *testing.T, s *Session, gen *mockGenerator) {},
		},
		{
			name: "line art without descriptor",
			setup: func(t *testing.T, s *Session, gen *mockGenerator) {
				require.NoError(t, s.SetLineArt(pngBytes(t, 100, 100)))
			},
		},
		{
			name: "descriptor without line art",
			setup: func(t *testing.T, s *Session, gen *mockGenerator) {
				gen.descriptor = "descriptor"
				require.NoError(t, s.SetReference(pngBytes(t, 100, 100)))
				_, err := s.AuditStyle(context.Background())
				require.NoError(t, err)
			},
		},
		{
			name: "audit produced empty descriptor",
			setup: func(t *testing.T, s *Session, gen *mockGenerator) {
				gen.descriptor = ""
				require.NoError(t, s.SetReference(pngBytes(t, 100, 100)))
				_, err := s.AuditStyle(context.Background())
				require.NoError(t, err)
				require.NoError(t, s.SetLineArt(pngBytes(t, 100, 100)))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{result: &RenderResult{Data: []byte{1}, MimeType: "image/png"}}
			s := NewSession(gen, Options{})
			tt.setup(t, s, gen)

			issued, err := s.Synthesize(context.Background())
			assert.NoError(t, err)
			assert.False(t, issued, "trigger without complete inputs must not issue a request")
			assert.Zero(t, gen.synthesizeCalls)
			assert.False(t, s.Snapshot().HasResult)
		})
	}
}

func TestSession_SynthesizeWhileBusyIsNoOp(t *testing.T) {
	gen := newBlockingGenerator()
	gen.descriptor = "descriptor"
	gen.result = &RenderResult{Data: []byte{1}, MimeType: "image/png"}
	s := NewSession(gen, Options{})
	require.NoError(t, s.SetReference(pngBytes(t, 100, 100)))
	require.NoError(t, s.SetLineArt(pngBytes(t, 100, 100)))
	_, err := s.AuditStyle(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		issued, err := s.Synthesize(context.Background())
		assert.True(t, issued)
		assert.NoError(t, err)
	}()
	<-gen.entered

	assert.Equal(t, StateRendering, s.Snapshot().State)
	issued, err := s.Synthesize(context.Background())
	assert.NoError(t, err)
	assert.False(t, issued)

	close(gen.release)
	<-done
	assert.Equal(t, 1, gen.synthesizeCalls)
}

func TestSession_SynthesizeEmptyResult(t *testing.T) {
	gen := &mockGenerator{descriptor: "descriptor", synthErr: ErrEmptyResult}
	s := NewSession(gen, Options{})
	require.NoError(t, s.SetReference(pngBytes(t, 100, 100)))
	require.NoError(t, s.SetLineArt(pngBytes(t, 100, 100)))
	_, err := s.AuditStyle(context.Background())
	require.NoError(t, err)

	issued, err := s.Synthesize(context.Background())
	assert.True(t, issued)
	assert.ErrorIs(t, err, ErrEmptyResult)

	st := s.Snapshot()
	assert.Equal(t, StateIdle, st.State)
	assert.False(t, st.HasResult, "a no-image response must leave the result absent")
}

func TestSession_SynthesizeTransportFailure(t *testing.T) {
	gen := &mockGenerator{descriptor: "descriptor", synthErr: &TransportError{Err: errors.New("connection reset")}}
	s := NewSession(gen, Options{})
	require.NoError(t, s.SetReference(pngBytes(t, 100, 100)))
	require.NoError(t, s.SetLineArt(pngBytes(t, 100, 100)))
	_, err := s.AuditStyle(context.Background())
	require.NoError(t, err)

	issued, err := s.Synthesize(context.Background())
	assert.True(t, issued)

	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
	assert.Equal(t, StateIdle, s.Snapshot().State)
	assert.False(t, s.Snapshot().HasResult)
}

func TestSession_NewReferenceInvalidatesDescriptor(t *testing.T) {
	gen := &mockGenerator{descriptor: "descriptor"}
	s := NewSession(gen, Options{})
	require.NoError(t, s.SetReference(pngBytes(t, 100, 100)))
	_, err := s.AuditStyle(context.Background())
	require.NoError(t, err)
	require.Equal(t, "descriptor", s.Snapshot().Descriptor)

	require.NoError(t, s.SetReference(pngBytes(t, 200, 200)))
	assert.Empty(t, s.Snapshot().Descriptor, "a new reference must clear the derived descriptor")
}

func TestSession_NewLineArtClearsResult(t *testing.T) {
	gen := &mockGenerator{
		descriptor: "descriptor",
		result:     &RenderResult{Data: []byte{1}, MimeType: "image/png"},
	}
	s := NewSession(gen, Options{})
	require.NoError(t, s.SetReference(pngBytes(t, 100, 100)))
	require.NoError(t, s.SetLineArt(pngBytes(t, 100, 100)))
	_, err := s.AuditStyle(context.Background())
	require.NoError(t, err)
	_, err = s.Synthesize(context.Background())
	require.NoError(t, err)
	require.True(t, s.Snapshot().HasResult)

	require.NoError(t, s.SetLineArt(pngBytes(t, 700, 1000)))
	st := s.Snapshot()
	assert.False(t, st.HasResult, "new line art must clear the previous result")
	assert.Equal(t, imaging.RatioPortrait, st.Bucket)
	assert.Equal(t, "descriptor", st.Descriptor, "new line art must not touch the descriptor")
}

func TestSession_DiscardResult(t *testing.T) {
	gen := &mockGenerator{
		descriptor: "descriptor",
		result:     &RenderResult{Data: []byte{1}, MimeType: "image/png"},
	}
	s := NewSession(gen, Options{})
	require.NoError(t, s.SetReference(pngBytes(t, 100, 100)))
	require.NoError(t, s.SetLineArt(pngBytes(t, 100, 100)))
	_, err := s.AuditStyle(context.Background())
	require.NoError(t, err)
	_, err = s.Synthesize(context.Background())
	require.NoError(t, err)

	s.DiscardResult()
	_, ok := s.Result()
	assert.False(t, ok)
	assert.True(t, s.Snapshot().HasLineArt, "discarding a result keeps the inputs")
}

func TestSession_Reset(t *testing.T) {
	gen := &mockGenerator{
		descriptor: "descriptor",
		result:     &RenderResult{Data: []byte{1}, MimeType: "image/png"},
	}
	s := NewSession(gen, Options{})
	require.NoError(t, s.SetReference(pngBytes(t, 100, 100)))
	require.NoError(t, s.SetLineArt(pngBytes(t, 100, 100)))
	_, err := s.AuditStyle(context.Background())
	require.NoError(t, err)
	_, err = s.Synthesize(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Reset())

	st := s.Snapshot()
	assert.Equal(t, StateIdle, st.State)
	assert.False(t, st.HasReference)
	assert.False(t, st.HasLineArt)
	assert.False(t, st.HasResult)
	assert.Empty(t, st.Descriptor)
}

func TestSession_RequestTimeoutBoundsModelCall(t *testing.T) {
	gen := newBlockingGenerator()
	s := NewSession(gen, Options{RequestTimeout: 50 * time.Millisecond})
	require.NoError(t, s.SetReference(pngBytes(t, 100, 100)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-gen.entered
		// Hold the mock until the session's deadline has long passed,
		// then let it return. The generator is expected to honor ctx;
		// the mock stands in for one that does not, so release it here.
		time.Sleep(100 * time.Millisecond)
		close(gen.release)
	}()

	_, err := s.AuditStyle(context.Background())
	<-done
	assert.NoError(t, err)
	assert.Equal(t, StateIdle, s.Snapshot().State, "session must return to idle after the call settles")
}

func TestSession_SetStrengthClamps(t *testing.T) {
	s := NewSession(&mockGenerator{}, Options{})

	s.SetStrength(150)
	assert.Equal(t, 100, s.Snapshot().Strength)

	s.SetStrength(-5)
	assert.Equal(t, 0, s.Snapshot().Strength)

	s.SetStrength(42)
	assert.Equal(t, 42, s.Snapshot().Strength)
}

func TestSession_SetTierValidates(t *testing.T) {
	s := NewSession(&mockGenerator{}, Options{})

	require.NoError(t, s.SetTier(TierLow))
	assert.Equal(t, TierLow, s.Snapshot().Tier)

	assert.Error(t, s.SetTier(ResolutionTier("ultra")))
	assert.Equal(t, TierLow, s.Snapshot().Tier, "an invalid tier must not change the setting")
}

func TestSession_RejectsCorruptUpload(t *testing.T) {
	s := NewSession(&mockGenerator{}, Options{})

	err := s.SetReference([]byte("not an image"))
	var decodeErr *imaging.DecodeError
	assert.ErrorAs(t, err, &decodeErr)
	assert.False(t, s.Snapshot().HasReference)
}
