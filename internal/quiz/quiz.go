// Package quiz holds the question bank that collects portrait attributes.
package quiz

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

const (
	FirstStage = 1
	LastStage  = 4
)

var ErrInvalidStage = errors.New("stage must be between 1 and 4")

type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Question asks for one StructuredPrompt field.
type Question struct {
	ID      string   `json:"id"`
	Stage   int      `json:"stage"`
	Field   string   `json:"field"`
	Text    string   `json:"text"`
	Options []Option `json:"options"`
}

type Bank struct {
	stages map[int][]Question
	intn   func(n int) int
}

// NewBank returns the built-in question bank.
func NewBank() *Bank {
	return NewBankWith(defaultQuestions, rand.IntN)
}

// NewBankWith builds a bank from questions; intn picks an index in [0, n).
func NewBankWith(questions []Question, intn func(n int) int) *Bank {
	stages := make(map[int][]Question)
	for _, q := range questions {
		stages[q.Stage] = append(stages[q.Stage], q)
	}
	return &Bank{stages: stages, intn: intn}
}

// Pick returns a random question for stage.
func (b *Bank) Pick(stage int) (Question, error) {
	if stage < FirstStage || stage > LastStage {
		return Question{}, fmt.Errorf("%w: got %d", ErrInvalidStage, stage)
	}
	questions := b.stages[stage]
	if len(questions) == 0 {
		return Question{}, fmt.Errorf("no questions for stage %d", stage)
	}
	return questions[b.intn(len(questions))], nil
}

func opts(values ...string) []Option {
	out := make([]Option, 0, len(values))
	for _, v := range values {
		out = append(out, Option{Label: v, Value: v})
	}
	return out
}

var defaultQuestions = []Question{
	{ID: "breed-1", Stage: 1, Field: "breed", Text: "Which cat would you bring home?",
		Options: opts("British Shorthair", "Maine Coon", "Siamese", "Scottish Fold", "Ragdoll", "Bengal")},
	{ID: "breed-2", Stage: 1, Field: "breed", Text: "Pick the coat that catches your eye.",
		Options: opts("Persian", "Sphynx", "Russian Blue", "Abyssinian", "Norwegian Forest", "tabby")},
	{ID: "style-1", Stage: 1, Field: "style", Text: "How should the portrait be painted?",
		Options: opts("watercolor", "oil painting", "anime", "pixel art", "3D render", "pencil sketch")},

	{ID: "pose-1", Stage: 2, Field: "pose", Text: "What is your cat doing?",
		Options: opts("sitting proudly", "curled up asleep", "stretching lazily", "pouncing mid-air", "peeking around a corner")},
	{ID: "expression-1", Stage: 2, Field: "expression", Text: "What face is your cat making?",
		Options: opts("curious", "smug", "sleepy", "surprised", "grumpy", "blissful")},

	{ID: "personality-1", Stage: 3, Field: "personality", Text: "Describe your ideal weekend.",
		Options: opts("adventurous", "cozy", "mischievous", "regal", "playful", "philosophical")},
	{ID: "environment-1", Stage: 3, Field: "environment", Text: "Where does the portrait take place?",
		Options: opts("a sunlit windowsill", "a misty forest", "a neon city rooftop", "a library full of old books", "outer space")},

	{ID: "mood-1", Stage: 4, Field: "mood", Text: "Choose the mood of the scene.",
		Options: opts("warm and nostalgic", "dreamy", "dramatic", "whimsical", "serene")},
	{ID: "color-1", Stage: 4, Field: "color", Text: "Which palette fits best?",
		Options: opts("pastel pinks", "deep blues", "golden autumn tones", "black and white", "vibrant rainbow")},
	{ID: "accessory-1", Stage: 4, Field: "accessory", Text: "Add a finishing touch.",
		Options: opts("a tiny crown", "round glasses", "a knitted scarf", "a bow tie", "a wizard hat")},
}
