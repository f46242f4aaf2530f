// Package prompt turns quiz answers into the text sent to image providers.
package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIncomplete is returned when a mandatory field is blank.
var ErrIncomplete = errors.New("prompt is missing required fields")

// StructuredPrompt is the set of quiz answers describing one cat portrait.
type StructuredPrompt struct {
	Breed       string `json:"breed"`
	Style       string `json:"style"`
	Pose        string `json:"pose"`
	Expression  string `json:"expression"`
	Personality string `json:"personality"`
	Environment string `json:"environment,omitempty"`
	Mood        string `json:"mood,omitempty"`
	Color       string `json:"color,omitempty"`
	Accessory   string `json:"accessory,omitempty"`
}

// Validate checks that every mandatory field is present.
func (p StructuredPrompt) Validate() error {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"breed", p.Breed},
		{"style", p.Style},
		{"pose", p.Pose},
		{"expression", p.Expression},
		{"personality", p.Personality},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	return nil
}

// Render produces the natural-language prompt. All providers use it so a
// fallback describes the same subject.
func Render(p StructuredPrompt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A %s style portrait of a %s cat, %s, with a %s expression, radiating a %s personality.",
		clean(p.Style), clean(p.Breed), clean(p.Pose), clean(p.Expression), clean(p.Personality))

	if v := clean(p.Environment); v != "" {
		fmt.Fprintf(&b, " The scene is set in %s.", v)
	}
	if v := clean(p.Mood); v != "" {
		fmt.Fprintf(&b, " The overall mood is %s.", v)
	}
	if v := clean(p.Color); v != "" {
		fmt.Fprintf(&b, " The color palette is dominated by %s.", v)
	}
	if v := clean(p.Accessory); v != "" {
		fmt.Fprintf(&b, " The cat is wearing %s.", v)
	}
	b.WriteString(" High quality, detailed, centered composition, no text.")
	return b.String()
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
