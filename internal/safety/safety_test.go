package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	e := NewEvaluator([]string{"self-harm", "Suicide"}, 0.5, 0.95)

	tests := []struct {
		name string
		text string
		want float64
	}{
		{"clean text", "# Sleep hygiene\nKeep a regular bedtime.", 0.95},
		{"empty text", "", 0.95},
		{"exact term", "Screen for self-harm risk.", 0.5},
		{"case insensitive", "Ask about SUICIDE ideation.", 0.5},
		{"substring match", "suicidal thoughts are out of scope... suicide", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Evaluate(tt.text))
		})
	}
}

func TestEvaluate_IsDeterministic(t *testing.T) {
	e := NewEvaluator([]string{"self-harm"}, 0.5, 0.95)
	text := "mentions self-harm once"
	first := e.Evaluate(text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.Evaluate(text))
	}
}

func TestEvaluate_EmptyDenylist(t *testing.T) {
	e := NewEvaluator(nil, 0.5, 0.95)
	assert.Equal(t, 0.95, e.Evaluate("self-harm"))

	// Blank terms are ignored rather than matching everything
	e = NewEvaluator([]string{"  "}, 0.5, 0.95)
	assert.Equal(t, 0.95, e.Evaluate("anything"))
}
