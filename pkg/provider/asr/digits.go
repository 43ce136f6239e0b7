package asr

import (
	"sort"
	"strings"
)

// digitReadings maps spoken digit readings to their numeric character.
// Covers Japanese kana/kanji readings and English words; ASCII digits in
// the raw text pass through unchanged.
var digitReadings = map[string]string{
	"ゼロ": "0",
	"れい": "0",
	"レイ": "0",
	"零":  "0",
	"まる": "0",
	"マル": "0",
	"いち": "1",
	"イチ": "1",
	"一":  "1",
	"に":  "2",
	"ニ":  "2",
	"二":  "2",
	"さん": "3",
	"サン": "3",
	"三":  "3",
	"よん": "4",
	"ヨン": "4",
	"し":  "4",
	"シ":  "4",
	"四":  "4",
	"ご":  "5",
	"ゴ":  "5",
	"五":  "5",
	"ろく": "6",
	"ロク": "6",
	"六":  "6",
	"なな": "7",
	"ナナ": "7",
	"しち": "7",
	"シチ": "7",
	"七":  "7",
	"はち": "8",
	"ハチ": "8",
	"八":  "8",
	"きゅう": "9",
	"キュウ": "9",
	"く":  "9",
	"ク":  "9",
	"九":  "9",
	"zero":  "0",
	"one":   "1",
	"two":   "2",
	"three": "3",
	"four":  "4",
	"five":  "5",
	"six":   "6",
	"seven": "7",
	"eight": "8",
	"nine":  "9",
}

// readingsByLength holds the reading keys sorted longest-first so that
// multi-rune readings like きゅう win over their substrings (く).
var readingsByLength = func() []string {
	keys := make([]string, 0, len(digitReadings))
	for k := range digitReadings {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// NormalizeDigits reduces raw recognized text to the digit string it
// spells out. Known readings are replaced longest-first, then every
// non-digit character is dropped. "さんいちゼロご" becomes "3105";
// text with no digit content becomes "".
func NormalizeDigits(text string) string {
	for _, reading := range readingsByLength {
		text = strings.ReplaceAll(text, reading, digitReadings[reading])
	}
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DigitSpan is one spoken digit with its time span in seconds.
type DigitSpan struct {
	Digit byte
	Start float64
	End   float64
}

// estimatedDigitDuration is used when a digit cannot be anchored to a
// recognized token.
const estimatedDigitDuration = 0.3

// DigitSpans matches the digits spelled out by res.Text against the token
// timestamps and returns one span per digit, in spoken order. Digits that
// cannot be anchored to a token (missing or unmatched timestamps) are
// estimated at 0.3s each, continuing from the last anchored span.
// Returns nil when the text contains no digits.
func DigitSpans(res *Result) []DigitSpan {
	digits := NormalizeDigits(res.Text)
	if digits == "" {
		return nil
	}

	if len(res.Tokens) == 0 {
		spans := make([]DigitSpan, len(digits))
		for i := range digits {
			spans[i] = DigitSpan{
				Digit: digits[i],
				Start: float64(i) * estimatedDigitDuration,
				End:   float64(i+1) * estimatedDigitDuration,
			}
		}
		return spans
	}

	spans := make([]DigitSpan, 0, len(digits))
	idx := 0
	for _, tok := range res.Tokens {
		for _, d := range tokenDigits(tok.Text) {
			if idx >= len(digits) {
				break
			}
			if d == digits[idx] {
				spans = append(spans, DigitSpan{Digit: d, Start: tok.Start, End: tok.End})
				idx++
			}
		}
	}

	// Estimate any tail the token alignment missed.
	if len(spans) < len(digits) {
		lastEnd := 0.0
		if len(spans) > 0 {
			lastEnd = spans[len(spans)-1].End
		}
		matched := len(spans)
		for i := matched; i < len(digits); i++ {
			start := lastEnd + float64(i-matched)*estimatedDigitDuration
			spans = append(spans, DigitSpan{
				Digit: digits[i],
				Start: start,
				End:   start + estimatedDigitDuration,
			})
		}
	}
	return spans
}

// tokenDigits returns the digit characters a single token contributes.
// The first matching reading wins; a token with no reading contributes
// any literal ASCII digits it contains.
func tokenDigits(token string) []byte {
	for _, reading := range readingsByLength {
		if strings.Contains(token, reading) {
			return []byte(digitReadings[reading])
		}
	}
	var out []byte
	for i := 0; i < len(token); i++ {
		if token[i] >= '0' && token[i] <= '9' {
			out = append(out, token[i])
		}
	}
	return out
}
