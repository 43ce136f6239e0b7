package asr

import (
	"reflect"
	"testing"
)

func TestNormalizeDigits(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"ascii digits", "1234", "1234"},
		{"hiragana", "いちにさんよん", "1234"},
		{"katakana", "イチニサンヨン", "1234"},
		{"kanji", "一二三四", "1234"},
		{"zero readings", "ゼロれいまる零", "0000"},
		{"kyuu before ku", "きゅう", "9"},
		{"shichi before shi", "しち", "7"},
		{"mixed with noise", "えーと、さん。いち！5", "315"},
		{"english words", "three one zero five", "3105"},
		{"no digits", "はい、どうも", ""},
		{"reading inside word", "こんにちは", "2"}, // に matches; mirrors plain substring replacement
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDigits(tt.text); got != tt.want {
				t.Errorf("NormalizeDigits(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestDigitSpansAnchored(t *testing.T) {
	res := &Result{
		Text: "さんいちご",
		Tokens: []Token{
			{Text: "さん", Start: 0.10, End: 0.55},
			{Text: "いち", Start: 0.55, End: 1.00},
			{Text: "ご", Start: 1.00, End: 1.30},
		},
	}
	got := DigitSpans(res)
	want := []DigitSpan{
		{Digit: '3', Start: 0.10, End: 0.55},
		{Digit: '1', Start: 0.55, End: 1.00},
		{Digit: '5', Start: 1.00, End: 1.30},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DigitSpans() = %v, want %v", got, want)
	}
}

func TestDigitSpansNoTokens(t *testing.T) {
	got := DigitSpans(&Result{Text: "12"})
	want := []DigitSpan{
		{Digit: '1', Start: 0.0, End: 0.3},
		{Digit: '2', Start: 0.3, End: 0.6},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DigitSpans() = %v, want %v", got, want)
	}
}

func TestDigitSpansPartialAlignment(t *testing.T) {
	// Only the first digit has a matching token; the rest are estimated
	// continuing from its end.
	res := &Result{
		Text:   "さんいち",
		Tokens: []Token{{Text: "さん", Start: 0.2, End: 0.6}},
	}
	got := DigitSpans(res)
	if len(got) != 2 {
		t.Fatalf("len(spans) = %d, want 2", len(got))
	}
	if got[0].Digit != '3' || got[0].Start != 0.2 || got[0].End != 0.6 {
		t.Errorf("spans[0] = %v, want anchored {3 0.2 0.6}", got[0])
	}
	if got[1].Digit != '1' || got[1].Start != 0.6 || got[1].End != 0.9 {
		t.Errorf("spans[1] = %v, want estimated {1 0.6 0.9}", got[1])
	}
}

func TestDigitSpansEmpty(t *testing.T) {
	if got := DigitSpans(&Result{Text: "hello"}); got != nil {
		t.Errorf("DigitSpans(no digits) = %v, want nil", got)
	}
}
