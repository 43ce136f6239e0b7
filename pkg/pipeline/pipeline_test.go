package pipeline_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/voxauth/internal/infer"
	"github.com/MrWong99/voxauth/pkg/pipeline"
	"github.com/MrWong99/voxauth/pkg/provider/asr"
	asrmock "github.com/MrWong99/voxauth/pkg/provider/asr/mock"
	"github.com/MrWong99/voxauth/pkg/provider/embedding"
	embmock "github.com/MrWong99/voxauth/pkg/provider/embedding/mock"
	"github.com/MrWong99/voxauth/pkg/provider/vad"
	vadmock "github.com/MrWong99/voxauth/pkg/provider/vad/mock"
)

const testRate = 16000

// makeWAV builds a minimal 16-bit PCM mono WAV payload in memory.
func makeWAV(t *testing.T, seconds float64) []byte {
	t.Helper()
	n := int(seconds * testRate)
	var data bytes.Buffer
	for i := range n {
		s := int16(12000 * math.Sin(2*math.Pi*440*float64(i)/testRate))
		if err := binary.Write(&data, binary.LittleEndian, s); err != nil {
			t.Fatalf("write sample: %v", err)
		}
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(testRate))
	binary.Write(&buf, binary.LittleEndian, uint32(testRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())
	return buf.Bytes()
}

// resultFor scripts a transcript where each digit is its own token with
// plausible timestamps inside a 2-second clip.
func resultFor(digits string) *asr.Result {
	res := &asr.Result{Text: digits}
	for i := range digits {
		start := 0.2 + 0.35*float64(i)
		res.Tokens = append(res.Tokens, asr.Token{
			Text:  digits[i : i+1],
			Start: start,
			End:   start + 0.3,
		})
	}
	return res
}

// speech is a single span covering most of a 2-second clip.
var speech = []vad.Span{{Start: 0.1, End: 1.9}}

// newPipeline wires a Pipeline over single-handle pools holding the mocks.
func newPipeline(t *testing.T, eng *asrmock.Engine, det *vadmock.Detector, ex *embmock.Extractor) *pipeline.Pipeline {
	t.Helper()
	asrPool, err := infer.NewPool(1, func() (asr.Engine, error) { return eng, nil }, nil)
	if err != nil {
		t.Fatalf("asr pool: %v", err)
	}
	t.Cleanup(func() { _ = asrPool.Close() })

	vadPool, err := infer.NewPool(1, func() (vad.Detector, error) { return det, nil }, nil)
	if err != nil {
		t.Fatalf("vad pool: %v", err)
	}
	t.Cleanup(func() { _ = vadPool.Close() })

	embPool, err := infer.NewPool(1, func() (embedding.Extractor, error) { return ex, nil }, nil)
	if err != nil {
		t.Fatalf("embedding pool: %v", err)
	}
	t.Cleanup(func() { _ = embPool.Close() })

	return pipeline.New(pipeline.DefaultConfig(), asrPool, vadPool, embPool, nil)
}

func TestProcessEnrollment(t *testing.T) {
	eng := &asrmock.Engine{Results: []*asr.Result{resultFor("3105")}}
	det := &vadmock.Detector{Spans: speech}
	ex := &embmock.Extractor{}
	p := newPipeline(t, eng, det, ex)

	res, err := p.ProcessEnrollment(context.Background(), makeWAV(t, 2), "3105")
	if err != nil {
		t.Fatalf("ProcessEnrollment error = %v", err)
	}
	if !res.Matched {
		t.Fatalf("Matched = false, digits %q", res.Digits)
	}
	if res.Digits != "3105" {
		t.Errorf("Digits = %q, want %q", res.Digits, "3105")
	}
	if len(res.Embeddings) != 4 {
		t.Fatalf("len(Embeddings) = %d, want 4", len(res.Embeddings))
	}
	for i, want := range []byte{'3', '1', '0', '5'} {
		if res.Embeddings[i].Digit != want {
			t.Errorf("Embeddings[%d].Digit = %c, want %c", i, res.Embeddings[i].Digit, want)
		}
		if len(res.Embeddings[i].Vector) == 0 {
			t.Errorf("Embeddings[%d].Vector is empty", i)
		}
	}
}

func TestProcessEnrollmentRepeatedDigit(t *testing.T) {
	// A balanced prompt may repeat a digit non-adjacently.
	eng := &asrmock.Engine{Results: []*asr.Result{resultFor("1213")}}
	det := &vadmock.Detector{Spans: speech}
	ex := &embmock.Extractor{}
	p := newPipeline(t, eng, det, ex)

	res, err := p.ProcessEnrollment(context.Background(), makeWAV(t, 2), "1213")
	if err != nil {
		t.Fatalf("ProcessEnrollment error = %v", err)
	}
	got := make([]byte, 0, 4)
	for _, de := range res.Embeddings {
		got = append(got, de.Digit)
	}
	if string(got) != "1213" {
		t.Errorf("embedding digit order = %q, want %q", got, "1213")
	}
}

func TestProcessEnrollmentMismatch(t *testing.T) {
	eng := &asrmock.Engine{Results: []*asr.Result{resultFor("9999")}}
	det := &vadmock.Detector{Spans: speech}
	ex := &embmock.Extractor{}
	p := newPipeline(t, eng, det, ex)

	res, err := p.ProcessEnrollment(context.Background(), makeWAV(t, 2), "3105")
	if err != nil {
		t.Fatalf("ProcessEnrollment error = %v", err)
	}
	if res.Matched {
		t.Error("Matched = true for wrong digits")
	}
	if len(res.Embeddings) != 0 {
		t.Errorf("len(Embeddings) = %d, want 0", len(res.Embeddings))
	}
	if len(ex.EmbedCalls) != 0 {
		t.Errorf("extractor called %d times on a mismatch", len(ex.EmbedCalls))
	}
}

func TestProcessEnrollmentErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload func(t *testing.T) []byte
		engine  *asrmock.Engine
		spans   []vad.Span
		wantErr error
	}{
		{
			name:    "undecodable payload",
			payload: func(t *testing.T) []byte { return []byte("not audio at all") },
			engine:  &asrmock.Engine{},
			spans:   speech,
			wantErr: pipeline.ErrDecode,
		},
		{
			name:    "too short",
			payload: func(t *testing.T) []byte { return makeWAV(t, 0.5) },
			engine:  &asrmock.Engine{},
			spans:   speech,
			wantErr: pipeline.ErrInvalidAudio,
		},
		{
			name:    "too long",
			payload: func(t *testing.T) []byte { return makeWAV(t, 11) },
			engine:  &asrmock.Engine{},
			spans:   speech,
			wantErr: pipeline.ErrInvalidAudio,
		},
		{
			name:    "silent clip",
			payload: func(t *testing.T) []byte { return makeWAV(t, 2) },
			engine:  &asrmock.Engine{},
			spans:   nil,
			wantErr: pipeline.ErrNoSpeech,
		},
		{
			name:    "recognizer failure",
			payload: func(t *testing.T) []byte { return makeWAV(t, 2) },
			engine:  &asrmock.Engine{TranscribeErr: errors.New("model crashed")},
			spans:   speech,
			wantErr: pipeline.ErrASRFailed,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			det := &vadmock.Detector{Spans: tc.spans}
			p := newPipeline(t, tc.engine, det, &embmock.Extractor{})

			_, err := p.ProcessEnrollment(context.Background(), tc.payload(t), "3105")
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestProcessEnrollmentSegmentationFailure(t *testing.T) {
	// Digits match the prompt but the token timestamps point past the end
	// of the clip, so every slice is empty.
	res := &asr.Result{
		Text: "3105",
		Tokens: []asr.Token{
			{Text: "3", Start: 50.0, End: 50.3},
			{Text: "1", Start: 50.4, End: 50.7},
			{Text: "0", Start: 50.8, End: 51.1},
			{Text: "5", Start: 51.2, End: 51.5},
		},
	}
	eng := &asrmock.Engine{Results: []*asr.Result{res}}
	det := &vadmock.Detector{Spans: speech}
	p := newPipeline(t, eng, det, &embmock.Extractor{})

	_, err := p.ProcessEnrollment(context.Background(), makeWAV(t, 2), "3105")
	if !errors.Is(err, pipeline.ErrSegmentation) {
		t.Errorf("error = %v, want ErrSegmentation", err)
	}
}

// axisEmbedder returns the same fixed vector for every slice.
func axisEmbedder(vec []float32) func([]float32, int) ([]float32, error) {
	return func([]float32, int) ([]float32, error) {
		cp := make([]float32, len(vec))
		copy(cp, vec)
		return cp, nil
	}
}

// fullCentroids maps every digit to the same unit vector.
func fullCentroids(vec []float32) map[string][]float32 {
	out := make(map[string][]float32, 10)
	for d := '0'; d <= '9'; d++ {
		cp := make([]float32, len(vec))
		copy(cp, vec)
		out[string(d)] = cp
	}
	return out
}

func TestProcessVerificationAuthenticated(t *testing.T) {
	eng := &asrmock.Engine{Results: []*asr.Result{resultFor("31055")}}
	det := &vadmock.Detector{Spans: speech}
	ex := &embmock.Extractor{EmbedFunc: axisEmbedder([]float32{1, 0, 0})}
	p := newPipeline(t, eng, det, ex)

	res, err := p.ProcessVerification(context.Background(), makeWAV(t, 2), "31055",
		fullCentroids([]float32{1, 0, 0}), 0.75)
	if err != nil {
		t.Fatalf("ProcessVerification error = %v", err)
	}
	if !res.Matched {
		t.Fatalf("Matched = false, digits %q", res.Digits)
	}
	if !res.Authenticated {
		t.Errorf("Authenticated = false, score %v", res.Score)
	}
	if res.Score < 0.999 {
		t.Errorf("Score = %v, want ~1", res.Score)
	}
	if len(res.DigitScores) != 4 { // "3", "1", "0", "5"
		t.Errorf("len(DigitScores) = %d, want 4", len(res.DigitScores))
	}
}

func TestProcessVerificationLowScore(t *testing.T) {
	eng := &asrmock.Engine{Results: []*asr.Result{resultFor("3105")}}
	det := &vadmock.Detector{Spans: speech}
	// Clip embeddings are orthogonal to every enrolled centroid.
	ex := &embmock.Extractor{EmbedFunc: axisEmbedder([]float32{0, 1, 0})}
	p := newPipeline(t, eng, det, ex)

	res, err := p.ProcessVerification(context.Background(), makeWAV(t, 2), "3105",
		fullCentroids([]float32{1, 0, 0}), 0.75)
	if err != nil {
		t.Fatalf("ProcessVerification error = %v", err)
	}
	if !res.Matched {
		t.Fatal("Matched = false")
	}
	if res.Authenticated {
		t.Errorf("Authenticated = true with score %v", res.Score)
	}
	if res.Score > 0.001 {
		t.Errorf("Score = %v, want ~0", res.Score)
	}
}

func TestProcessVerificationDigitMismatch(t *testing.T) {
	eng := &asrmock.Engine{Results: []*asr.Result{resultFor("1234")}}
	det := &vadmock.Detector{Spans: speech}
	ex := &embmock.Extractor{}
	p := newPipeline(t, eng, det, ex)

	res, err := p.ProcessVerification(context.Background(), makeWAV(t, 2), "9876",
		fullCentroids([]float32{1, 0, 0}), 0.75)
	if err != nil {
		t.Fatalf("ProcessVerification error = %v", err)
	}
	if res.Matched || res.Authenticated {
		t.Errorf("Matched = %v, Authenticated = %v for wrong digits", res.Matched, res.Authenticated)
	}
	if len(ex.EmbedCalls) != 0 {
		t.Errorf("extractor called %d times on a mismatch", len(ex.EmbedCalls))
	}
}

func TestProcessVerificationDegenerateEmbedding(t *testing.T) {
	eng := &asrmock.Engine{Results: []*asr.Result{resultFor("3105")}}
	det := &vadmock.Detector{Spans: speech}
	nan := float32(math.NaN())
	ex := &embmock.Extractor{EmbedFunc: axisEmbedder([]float32{nan, 0, 0})}
	p := newPipeline(t, eng, det, ex)

	// Threshold -1 would pass any finite mean; the degenerate embedding
	// must still force failure.
	res, err := p.ProcessVerification(context.Background(), makeWAV(t, 2), "3105",
		fullCentroids([]float32{1, 0, 0}), -1)
	if err != nil {
		t.Fatalf("ProcessVerification error = %v", err)
	}
	if res.Authenticated {
		t.Error("Authenticated = true with non-finite embeddings")
	}
	if res.Score != 0 {
		t.Errorf("Score = %v, want 0", res.Score)
	}
}

func TestProcessVerificationRepeatedDigitScores(t *testing.T) {
	eng := &asrmock.Engine{Results: []*asr.Result{resultFor("1212")}}
	det := &vadmock.Detector{Spans: speech}

	// Each successive slice embeds a little further from the centroid, so
	// every position gets a distinct score.
	call := 0
	ex := &embmock.Extractor{EmbedFunc: func([]float32, int) ([]float32, error) {
		call++
		return []float32{1, float32(call), 0}, nil
	}}
	p := newPipeline(t, eng, det, ex)

	res, err := p.ProcessVerification(context.Background(), makeWAV(t, 2), "1212",
		fullCentroids([]float32{1, 0, 0}), 0.75)
	if err != nil {
		t.Fatalf("ProcessVerification error = %v", err)
	}
	// Position scores are cos_i = 1/sqrt(1+i^2) for calls i=1..4; the
	// reported per-digit score is the later position's.
	want1 := float32(1 / math.Sqrt(1+9))  // "1" again at position 3 (call 3)
	want2 := float32(1 / math.Sqrt(1+16)) // "2" again at position 4 (call 4)
	if got := res.DigitScores["1"]; math.Abs(float64(got-want1)) > 1e-5 {
		t.Errorf("DigitScores[1] = %v, want %v", got, want1)
	}
	if got := res.DigitScores["2"]; math.Abs(float64(got-want2)) > 1e-5 {
		t.Errorf("DigitScores[2] = %v, want %v", got, want2)
	}
}
