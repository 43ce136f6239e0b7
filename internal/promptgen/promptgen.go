// Package promptgen generates the digit prompts spoken during enrollment
// and verification. All randomness comes from crypto/rand so prompts cannot
// be predicted by observing earlier sessions.
package promptgen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	// EnrollmentSets is the number of prompts issued during enrollment.
	EnrollmentSets = 5

	// EnrollmentSetLength is the number of digits in each enrollment prompt.
	EnrollmentSetLength = 4

	// maxRedraws bounds the rejection-sampling loop in [EnrollmentPrompts].
	// The adjacency constraint rejects only a small fraction of the
	// permutations of the balanced multiset, so this is never reached in
	// practice.
	maxRedraws = 1000
)

// ErrExhausted is returned when a balanced digit layout satisfying the
// adjacency constraint could not be drawn within the redraw budget.
var ErrExhausted = errors.New("promptgen: redraw budget exhausted")

// EnrollmentPrompts returns five 4-digit prompts covering every digit 0-9
// exactly twice, with no prompt containing the same digit in adjacent
// positions. The layout is drawn as a uniform random permutation of the
// balanced multiset and redrawn until the adjacency constraint holds.
func EnrollmentPrompts() ([]string, error) {
	digits := make([]byte, 0, EnrollmentSets*EnrollmentSetLength)
	for d := byte('0'); d <= '9'; d++ {
		digits = append(digits, d, d)
	}

	for range maxRedraws {
		if err := shuffle(digits); err != nil {
			return nil, err
		}
		prompts, ok := partition(digits)
		if ok {
			return prompts, nil
		}
	}
	return nil, ErrExhausted
}

// partition splits the shuffled multiset into five groups of four and
// reports whether every group is free of adjacent duplicates.
func partition(digits []byte) ([]string, bool) {
	prompts := make([]string, 0, EnrollmentSets)
	for i := 0; i < len(digits); i += EnrollmentSetLength {
		group := digits[i : i+EnrollmentSetLength]
		for j := 1; j < len(group); j++ {
			if group[j] == group[j-1] {
				return nil, false
			}
		}
		prompts = append(prompts, string(group))
	}
	return prompts, true
}

// ChallengePrompt returns a single verification prompt whose length is
// drawn uniformly from [minLen, maxLen] and whose digits are independent
// uniform draws from 0-9. Repeated and adjacent digits are allowed.
func ChallengePrompt(minLen, maxLen int) (string, error) {
	if minLen < 1 || maxLen < minLen {
		return "", fmt.Errorf("promptgen: invalid length range [%d, %d]", minLen, maxLen)
	}
	span, err := randInt(maxLen - minLen + 1)
	if err != nil {
		return "", err
	}
	length := minLen + span

	var b strings.Builder
	b.Grow(length)
	for range length {
		d, err := randInt(10)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d))
	}
	return b.String(), nil
}

// shuffle performs a Fisher-Yates shuffle driven by crypto/rand.
func shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		j, err := randInt(i + 1)
		if err != nil {
			return err
		}
		b[i], b[j] = b[j], b[i]
	}
	return nil
}

// randInt returns a uniform random int in [0, n) from crypto/rand.
func randInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("promptgen: read random: %w", err)
	}
	return int(v.Int64()), nil
}
