package service

import (
	"encoding/base64"
	"fmt"
	"html"
	"strings"
	"unicode"
	"unicode/utf8"
)

// fallbackPalette is indexed by the byte length of the domain
var fallbackPalette = [...]string{
	"#4F46E5",
	"#0891B2",
	"#059669",
	"#CA8A04",
	"#DC2626",
	"#DB2777",
	"#7C3AED",
	"#475569",
}

const placeholderGlyph = "?"

// FallbackAssetGenerator synthesizes placeholder icons. Output depends only
// on the domain string.
type FallbackAssetGenerator struct{}

// Generate returns a 64x64 SVG badge as a data URL
func (FallbackAssetGenerator) Generate(domain string) string {
	color := fallbackPalette[len(domain)%len(fallbackPalette)]

	svg := fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="64" height="64" viewBox="0 0 64 64">`+
			`<rect width="64" height="64" rx="12" ry="12" fill="%s"/>`+
			`<text x="32" y="42" font-family="Arial,Helvetica,sans-serif" font-size="30" font-weight="bold" fill="#FFFFFF" text-anchor="middle">%s</text>`+
			`</svg>`,
		color, html.EscapeString(glyphFor(domain)))

	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}

func glyphFor(domain string) string {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return placeholderGlyph
	}
	r, _ := utf8.DecodeRuneInString(domain)
	if r == utf8.RuneError {
		return placeholderGlyph
	}
	return string(unicode.ToUpper(r))
}
