package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Keerthana203/cerina-foundry/internal/llm"
	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

const draftInstruction = `You are a licensed clinical psychologist writing a structured CBT exercise protocol for patients.

Output ONLY the protocol document in Markdown, using exactly these sections in this order:
## Title
## Purpose
## Preparation
## Steps
## Safety Notes
## When to Seek Professional Help

Rules:
- Do not greet, address the requester, ask questions or sign off.
- Do not mention yourself, an AI, a model or an assistant, and do not describe how you wrote the document.
- Do not add any text before the first heading or after the last section.
- Use plain, warm, non-judgemental clinical language.`

// BuildPrompt renders the fixed drafting instruction with the revision context.
func BuildPrompt(userIntent, previousDraft string, notes []blackboard.Note) string {
	var b strings.Builder
	b.WriteString(draftInstruction)
	b.WriteString("\n\nProtocol request:\n")
	b.WriteString(strings.TrimSpace(userIntent))
	b.WriteString("\n")

	if strings.TrimSpace(previousDraft) != "" {
		b.WriteString("\nPrevious draft (revise and improve it, keeping the same sections):\n")
		b.WriteString(previousDraft)
		b.WriteString("\n")
	}

	if len(notes) > 0 {
		b.WriteString("\nReview notes so far:\n")
		for _, n := range notes {
			b.WriteString("- " + n.Agent + ": " + n.Message + "\n")
		}
	}

	return b.String()
}

// Drafter produces or revises the draft using the text-generation service.
type Drafter struct {
	gen  llm.Generator
	opts llm.Options
}

// NewDrafter creates a drafter.
func NewDrafter(gen llm.Generator, opts llm.Options) *Drafter {
	return &Drafter{gen: gen, opts: opts}
}

// Draft runs one drafting pass: it increments the iteration, replaces the draft
// and appends a note. On error the state is left untouched.
func (d *Drafter) Draft(ctx context.Context, s *State) error {
	iteration := s.Iteration + 1

	text, err := d.gen.Generate(ctx, BuildPrompt(s.UserIntent, s.DraftText, s.Notes), d.opts)
	if err != nil {
		return fmt.Errorf("drafting iteration %d: %w", iteration, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("drafting iteration %d: %w: empty draft", iteration, llm.ErrUpstream)
	}

	s.Iteration = iteration
	s.DraftText = text
	s.AddNote(AgentDrafter, fmt.Sprintf("Draft revision iteration %d", iteration))
	return nil
}

// Scorer scores draft text for safety. *safety.Evaluator satisfies it.
type Scorer interface {
	Evaluate(text string) float64
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(text string) float64

// Evaluate calls f.
func (f ScorerFunc) Evaluate(text string) float64 {
	return f(text)
}

// CheckSafety scores the current draft and records the score.
func CheckSafety(scorer Scorer, s *State) {
	s.SafetyScore = scorer.Evaluate(s.DraftText)
	s.AddNote(AgentSafety, "Safety score evaluated at "+formatScore(s.SafetyScore))
}

// Critic reviews a draft and returns an empathy score in [0,1] plus one note.
type Critic interface {
	Critique(ctx context.Context, draft string) (score float64, note string, err error)
}

// StubCritic accepts every draft with a fixed empathy score.
type StubCritic struct {
	Score float64
}

// Critique implements Critic.
func (c StubCritic) Critique(ctx context.Context, draft string) (float64, string, error) {
	return c.Score, "Clinical tone and empathy acceptable", nil
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
