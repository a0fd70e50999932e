package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func TestEstimate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcdefgh", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		if got := Estimate(tt.in); got != tt.want {
			t.Errorf("Estimate(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTrimHistory_DropsOldestFirst(t *testing.T) {
	t.Parallel()

	fixed := []*schema.Message{
		schema.SystemMessage(strings.Repeat("s", 400)), // ~100 tokens
		schema.UserMessage("what is a collection?"),
	}
	history := []*schema.Message{
		schema.UserMessage(strings.Repeat("a", 400)),
		schema.AssistantMessage(strings.Repeat("b", 400), nil),
		schema.UserMessage(strings.Repeat("c", 400)),
		schema.AssistantMessage(strings.Repeat("d", 400), nil),
	}

	// Budget fits fixed plus roughly two history messages.
	trimmed := TrimHistory(fixed, history, 340)

	if len(trimmed) >= len(history) {
		t.Fatalf("expected trimming, kept %d of %d", len(trimmed), len(history))
	}
	// The newest messages must survive.
	if trimmed[len(trimmed)-1] != history[len(history)-1] {
		t.Error("newest message must be retained")
	}
	if EstimateMessages(fixed)+EstimateMessages(trimmed) > 340 {
		t.Error("trimmed history still exceeds the budget")
	}
}

func TestTrimHistory_EmptyWhenBudgetTiny(t *testing.T) {
	t.Parallel()

	fixed := []*schema.Message{schema.SystemMessage(strings.Repeat("s", 4000))}
	history := []*schema.Message{schema.UserMessage("hi")}

	if got := TrimHistory(fixed, history, 10); len(got) != 0 {
		t.Errorf("expected empty history, got %d messages", len(got))
	}
}

func TestTrimHistory_NoopWhenWithinBudget(t *testing.T) {
	t.Parallel()

	fixed := []*schema.Message{schema.SystemMessage("short")}
	history := []*schema.Message{schema.UserMessage("hi"), schema.AssistantMessage("hello", nil)}

	if got := TrimHistory(fixed, history, DefaultMaxContextTokens); len(got) != 2 {
		t.Errorf("expected untouched history, got %d messages", len(got))
	}
}
