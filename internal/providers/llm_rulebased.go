package providers

import (
	"context"
	"fmt"
	"strings"
)

// ruleBasedTargetParagraphWords approximates one template paragraph when
// sizing output against the requested word budget.
const ruleBasedTargetParagraphWords = 45

// RuleBasedLLM is the terminal script fallback: deterministic template
// expansion with no model behind it. Always available, never fails.
type RuleBasedLLM struct{}

// NewRuleBasedLLM creates the fallback script provider.
func NewRuleBasedLLM() *RuleBasedLLM { return &RuleBasedLLM{} }

func (p *RuleBasedLLM) Name() string                     { return NameRuleBased }
func (p *RuleBasedLLM) Available(_ context.Context) bool { return true }
func (p *RuleBasedLLM) RequiresNetwork() bool            { return false }

// bodyTemplates are cycled to fill the word budget. Each expands with the
// topic and stays generic enough to read sensibly for any subject.
var bodyTemplates = []string{
	"To understand %s, it helps to start with the basics. At its core, this topic touches everyday life in ways that are easy to overlook, and taking a moment to slow down reveals the details that matter most.",
	"One thing that surprises most people about %s is how much depth hides beneath the surface. The closer you look, the more connections appear, and each one adds a new layer to the overall picture.",
	"Experts who study %s often point out that context is everything. What looks simple in isolation becomes far more interesting once you see how the pieces fit together and influence one another.",
	"There are a few common misconceptions about %s worth clearing up. Popular summaries tend to flatten the nuance, and the reality is usually more balanced than the headlines suggest.",
	"Looking ahead, %s continues to evolve. New developments arrive steadily, and staying curious is the best way to keep up with where things are heading next.",
}

// Generate expands fixed templates around the topic until the target word
// budget is met. Output is deterministic for identical inputs.
func (p *RuleBasedLLM) Generate(_ context.Context, _ string, _ string, params GenerateParams) (string, error) {
	topic := strings.TrimSpace(params.Topic)
	if topic == "" {
		return "", fmt.Errorf("rulebased: empty topic")
	}

	targetWords := params.TargetWords
	if targetWords <= 0 {
		targetWords = 150
	}

	var paragraphs []string
	paragraphs = append(paragraphs,
		fmt.Sprintf("Today we are taking a closer look at %s. In the next few minutes we will walk through what it is, why it matters, and what most people get wrong about it.", topic))

	words := countWords(paragraphs[0])
	for i := 0; words < targetWords-ruleBasedTargetParagraphWords; i++ {
		para := fmt.Sprintf(bodyTemplates[i%len(bodyTemplates)], topic)
		paragraphs = append(paragraphs, para)
		words += countWords(para)
	}

	paragraphs = append(paragraphs,
		fmt.Sprintf("That wraps up our look at %s. If you found this useful, there is plenty more to explore. Thanks for watching.", topic))

	return strings.Join(paragraphs, "\n\n"), nil
}

func countWords(s string) int {
	return len(strings.Fields(s))
}
