package gateway

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Shaper applies the outgoing-text policy: normalization, a hard character
// budget, and an optional signature suffix. It is a pure transform and is
// applied to every reply, fallback included.
type Shaper struct {
	MaxChars  int
	Signature string
}

// Apply shapes text for delivery.
func (s Shaper) Apply(text string) string {
	out := Clean(text)

	if s.MaxChars > 1 {
		runes := []rune(out)
		if len(runes) > s.MaxChars {
			out = strings.TrimRight(string(runes[:s.MaxChars-1]), " \t\n") + "…"
		}
	}

	if s.Signature != "" && !strings.HasSuffix(out, s.Signature) {
		if !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
		out += s.Signature
	}
	return out
}

// Clean normalizes text to NFC and replaces the exotic spaces (narrow
// no-break, NBSP) that break some messaging clients.
func Clean(text string) string {
	out := norm.NFC.String(text)
	out = strings.NewReplacer("\u202f", " ", "\u00a0", " ").Replace(out)
	return strings.TrimSpace(out)
}
