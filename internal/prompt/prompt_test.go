package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func basePrompt() StructuredPrompt {
	return StructuredPrompt{
		Breed:       "Maine Coon",
		Style:       "watercolor",
		Pose:        "sitting on a windowsill",
		Expression:  "curious",
		Personality: "playful",
	}
}

func TestRenderMandatoryFields(t *testing.T) {
	got := Render(basePrompt())
	assert.Equal(t,
		"A watercolor style portrait of a Maine Coon cat, sitting on a windowsill, with a curious expression, radiating a playful personality. High quality, detailed, centered composition, no text.",
		got)
}

func TestRenderOptionalClauses(t *testing.T) {
	p := basePrompt()
	p.Environment = "a cozy library"
	p.Accessory = "a tiny  red scarf"

	got := Render(p)
	assert.Contains(t, got, " The scene is set in a cozy library.")
	assert.Contains(t, got, " The cat is wearing a tiny red scarf.")
	assert.NotContains(t, got, "mood")
	assert.NotContains(t, got, "color palette")
	assert.Less(t, strings.Index(got, "scene"), strings.Index(got, "wearing"))
}

func TestRenderIsDeterministic(t *testing.T) {
	p := basePrompt()
	p.Mood = "serene"
	p.Color = "pastel blue"

	first := Render(p)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Render(p))
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, basePrompt().Validate())

	p := basePrompt()
	p.Breed = "  "
	p.Pose = ""
	err := p.Validate()
	require.ErrorIs(t, err, ErrIncomplete)
	assert.Contains(t, err.Error(), "breed, pose")
}
