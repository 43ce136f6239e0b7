package promptgen

import (
	"testing"

	"pgregory.net/rapid"
)

func TestEnrollmentPromptsShape(t *testing.T) {
	prompts, err := EnrollmentPrompts()
	if err != nil {
		t.Fatalf("EnrollmentPrompts() error = %v", err)
	}
	if len(prompts) != EnrollmentSets {
		t.Fatalf("len(prompts) = %d, want %d", len(prompts), EnrollmentSets)
	}
	for i, p := range prompts {
		if len(p) != EnrollmentSetLength {
			t.Errorf("len(prompts[%d]) = %d, want %d", i, len(p), EnrollmentSetLength)
		}
	}
}

func TestEnrollmentPromptsBalanced(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prompts, err := EnrollmentPrompts()
		if err != nil {
			t.Fatalf("EnrollmentPrompts() error = %v", err)
		}

		counts := make(map[byte]int)
		for _, p := range prompts {
			for i := range len(p) {
				c := p[i]
				if c < '0' || c > '9' {
					t.Fatalf("prompt %q contains non-digit %q", p, c)
				}
				counts[c]++
				if i > 0 && p[i] == p[i-1] {
					t.Fatalf("prompt %q has adjacent duplicate at %d", p, i)
				}
			}
		}
		for d := byte('0'); d <= '9'; d++ {
			if counts[d] != 2 {
				t.Fatalf("digit %q occurs %d times, want 2", d, counts[d])
			}
		}
	})
}

func TestChallengePromptLengthRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		minLen := rapid.IntRange(1, 6).Draw(t, "min")
		maxLen := rapid.IntRange(minLen, 10).Draw(t, "max")

		p, err := ChallengePrompt(minLen, maxLen)
		if err != nil {
			t.Fatalf("ChallengePrompt(%d, %d) error = %v", minLen, maxLen, err)
		}
		if len(p) < minLen || len(p) > maxLen {
			t.Fatalf("len(%q) = %d, want in [%d, %d]", p, len(p), minLen, maxLen)
		}
		for i := range len(p) {
			if p[i] < '0' || p[i] > '9' {
				t.Fatalf("prompt %q contains non-digit at %d", p, i)
			}
		}
	})
}

func TestChallengePromptInvalidRange(t *testing.T) {
	tests := []struct {
		name           string
		minLen, maxLen int
	}{
		{"zero min", 0, 6},
		{"inverted", 6, 4},
		{"negative", -1, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ChallengePrompt(tt.minLen, tt.maxLen); err == nil {
				t.Errorf("ChallengePrompt(%d, %d) error = nil, want error", tt.minLen, tt.maxLen)
			}
		})
	}
}

func TestChallengePromptsDiffer(t *testing.T) {
	// With L in [4,6] a collision across 20 draws is possible but a full
	// 20-way tie is not credible for a working RNG.
	seen := make(map[string]bool)
	for range 20 {
		p, err := ChallengePrompt(4, 6)
		if err != nil {
			t.Fatalf("ChallengePrompt error = %v", err)
		}
		seen[p] = true
	}
	if len(seen) < 2 {
		t.Errorf("20 challenge prompts produced %d distinct values, want >= 2", len(seen))
	}
}
