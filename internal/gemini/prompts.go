package gemini

import (
	"fmt"
	"strings"

	"github.com/lithammer/dedent"

	"github.com/okoskine/inkwash/internal/studio"
)

// auditInstruction is the static style-audit template. It is not
// user-editable; the contract is only that it requests a structured
// color/material/lighting description.
var auditInstruction = strings.TrimSpace(dedent.Dedent(`
	Analyze this reference image and extract its visual style as a structured description.

	Describe, in order:
	- Color palette: the dominant colors and accent colors, with approximate hue names
	- Materials and surface finishes: matte, glossy, metallic, textured, and where they appear
	- Lighting: direction, softness, color temperature, and shadow character
	- Overall rendering style: e.g. flat illustration, photorealistic, watercolor, technical render

	Be deterministic and factual. Describe only what is visible. Do not mention
	the subject matter of the image beyond what is needed to locate the attributes.
	Respond with the description only, no preamble or markdown headings.`))

var synthesisTemplate = strings.TrimSpace(dedent.Dedent(`
	Colorize this line-art drawing. The attached image is a structural line drawing
	whose geometry must be preserved exactly: do not move, add, remove or reshape
	any lines or contours. Apply color, materials and lighting only.

	Apply the following style, extracted from a reference image:

	%s

	Constraints:
	- Style fidelity: follow the style description at roughly %d%% strength; at lower
	  strengths keep colors more neutral and closer to the plain drawing
	- Output aspect ratio: %s
	- Output detail level: %s

	Return only the rendered image.`))

func tierDetail(tier studio.ResolutionTier) string {
	switch tier {
	case studio.TierLow:
		return "draft quality, low resolution"
	case studio.TierHigh:
		return "maximum detail, high resolution"
	default:
		return "balanced detail, medium resolution"
	}
}

// tierImageSize maps a resolution tier to the discrete output size
// classes the image model accepts.
func tierImageSize(tier studio.ResolutionTier) string {
	switch tier {
	case studio.TierLow:
		return "1K"
	case studio.TierHigh:
		return "4K"
	default:
		return "2K"
	}
}

func synthesisPrompt(spec studio.RenderSpec) string {
	return fmt.Sprintf(synthesisTemplate, spec.Descriptor, spec.Strength, spec.Ratio, tierDetail(spec.Tier))
}
