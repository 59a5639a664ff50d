package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/okoskine/inkwash/internal/studio"
)

const (
	// DefaultAuditModel extracts the style descriptor from a reference
	// image.
	DefaultAuditModel = "gemini-3-flash-preview"
	// DefaultImageModel renders the colorized output.
	DefaultImageModel = "gemini-2.5-flash-image"

	// DefaultRequestsPerMinute caps outgoing model calls.
	DefaultRequestsPerMinute = 10
)

// Config holds optional model and rate-limit overrides.
type Config struct {
	AuditModel        string
	ImageModel        string
	RequestsPerMinute int
}

// Client implements studio.Generator against the Gemini API. The
// credential is resolved through the injected provider on every call,
// so a key replaced mid-session takes effect on the next request.
type Client struct {
	provider   studio.CredentialProvider
	limiter    *rate.Limiter
	auditModel string
	imageModel string

	mu        sync.Mutex
	activeKey string
	gc        *genai.Client
}

// New creates a Gemini-backed generator.
func New(provider studio.CredentialProvider, cfg Config) *Client {
	auditModel := cfg.AuditModel
	if auditModel == "" {
		auditModel = DefaultAuditModel
	}
	imageModel := cfg.ImageModel
	if imageModel == "" {
		imageModel = DefaultImageModel
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = DefaultRequestsPerMinute
	}
	return &Client{
		provider:   provider,
		limiter:    rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		auditModel: auditModel,
		imageModel: imageModel,
	}
}

// generativeClient resolves the active credential and returns a genai
// client for it, rebuilding the client when the key changes.
func (c *Client) generativeClient(ctx context.Context) (*genai.Client, error) {
	key, err := c.provider.ActiveKey()
	if err != nil {
		return nil, &studio.CredentialError{Reason: "credential provider failed", Err: err}
	}
	if key == "" {
		return nil, &studio.CredentialError{Reason: "no API key supplied"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gc != nil && c.activeKey == key {
		return c.gc, nil
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: key})
	if err != nil {
		return nil, &studio.TransportError{Err: fmt.Errorf("create gemini client: %w", err)}
	}
	c.gc = gc
	c.activeKey = key
	return gc, nil
}

// AuditStyle implements studio.Generator. The model's text is returned
// verbatim; a response without text is an empty descriptor, not a
// failure.
func (c *Client) AuditStyle(ctx context.Context, referencePNG []byte) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", &studio.TransportError{Err: err}
	}

	gc, err := c.generativeClient(ctx)
	if err != nil {
		return "", err
	}

	parts := []*genai.Part{
		genai.NewPartFromText(auditInstruction),
		{InlineData: &genai.Blob{Data: referencePNG, MIMEType: "image/png"}},
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := gc.Models.GenerateContent(ctx, c.auditModel, contents, nil)
	if err != nil {
		return "", classifyError(err)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", nil
	}

	text := result.Text()
	log.Info().Str("model", c.auditModel).Int("descriptorLen", len(text)).Msg("style audit call")
	return text, nil
}

// Synthesize implements studio.Generator. The first inline image part
// of the response is selected; text commentary and other parts are
// discarded. A response without an image part yields
// studio.ErrEmptyResult.
func (c *Client) Synthesize(ctx context.Context, spec studio.RenderSpec) (*studio.RenderResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &studio.TransportError{Err: err}
	}

	gc, err := c.generativeClient(ctx)
	if err != nil {
		return nil, err
	}

	parts := []*genai.Part{
		genai.NewPartFromText(synthesisPrompt(spec)),
		{InlineData: &genai.Blob{Data: spec.LineArtPNG, MIMEType: "image/png"}},
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
		ImageConfig: &genai.ImageConfig{
			AspectRatio: string(spec.Ratio),
			ImageSize:   tierImageSize(spec.Tier),
		},
	}

	result, err := gc.Models.GenerateContent(ctx, c.imageModel, contents, config)
	if err != nil {
		return nil, classifyError(err)
	}

	render, ok := firstImagePart(result)
	if !ok {
		return nil, studio.ErrEmptyResult
	}

	log.Info().Str("model", c.imageModel).Str("aspectRatio", string(spec.Ratio)).
		Str("imageSize", tierImageSize(spec.Tier)).Int("bytes", len(render.Data)).
		Msg("synthesis call")
	return render, nil
}

// firstImagePart selects the first inline image payload from the
// response, skipping text commentary and any other parts.
func firstImagePart(result *genai.GenerateContentResponse) (*studio.RenderResult, bool) {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return nil, false
	}
	for _, part := range result.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		mimeType := part.InlineData.MIMEType
		if mimeType == "" {
			mimeType = "image/png"
		}
		return &studio.RenderResult{Data: part.InlineData.Data, MimeType: mimeType}, true
	}
	return nil, false
}

// classifyError maps a Gemini API failure onto the studio error
// taxonomy. Invalid, unauthorized and rate-limited credentials are
// surfaced as credential errors so the caller can prompt for a new key
// instead of retrying.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 401 || apiErr.Status == "UNAUTHENTICATED":
			return &studio.CredentialError{Reason: "API key not authorized", Err: err}
		case apiErr.Code == 403 || apiErr.Status == "PERMISSION_DENIED":
			return &studio.CredentialError{Reason: "API key lacks permission", Err: err}
		case apiErr.Code == 429 || apiErr.Status == "RESOURCE_EXHAUSTED":
			return &studio.CredentialError{Reason: "rate limited or quota exhausted", Err: err}
		case apiErr.Code == 400 && mentionsAPIKey(apiErr.Message):
			return &studio.CredentialError{Reason: "API key not valid", Err: err}
		case apiErr.Code == 404 && mentionsAPIKey(apiErr.Message):
			return &studio.CredentialError{Reason: "API key not found", Err: err}
		}
	}
	return &studio.TransportError{Err: err}
}

func mentionsAPIKey(message string) bool {
	return strings.Contains(strings.ToLower(message), "api key")
}
