package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxauth/internal/app"
	"github.com/MrWong99/voxauth/internal/config"
	"github.com/MrWong99/voxauth/internal/health"
	"github.com/MrWong99/voxauth/pkg/gallery"
	"github.com/MrWong99/voxauth/pkg/gallery/memory"
	"github.com/MrWong99/voxauth/pkg/pipeline"
)

// stubProcessor satisfies the session runtime; these tests never get far
// enough to process audio.
type stubProcessor struct{}

func (stubProcessor) ProcessEnrollment(ctx context.Context, data []byte, prompt string) (*pipeline.EnrollmentResult, error) {
	return &pipeline.EnrollmentResult{Text: prompt, Digits: prompt}, nil
}

func (stubProcessor) ProcessVerification(ctx context.Context, data []byte, prompt string, centroids map[string][]float32, threshold float32) (*pipeline.VerificationResult, error) {
	return &pipeline.VerificationResult{}, nil
}

// testConfig returns a minimal config backed by the in-memory gallery.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
	}
}

func newTestApp(t *testing.T, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{app.WithStore(memory.New())}, opts...)
	a, err := app.New(context.Background(), testConfig(), stubProcessor{}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestHealthz(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestReadyzFailingChecker(t *testing.T) {
	failing := health.Checker{
		Name:  "database",
		Check: func(context.Context) error { return context.DeadlineExceeded },
	}
	a := newTestApp(t, app.WithChecker(failing))
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func wsURL(httpURL, path string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + path
}

func TestEnrollmentEndpointSendsPrompts(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, wsURL(srv.URL, "/ws/enroll"), nil)
	if err != nil {
		t.Fatalf("dial /ws/enroll: %v", err)
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	start, _ := json.Marshal(map[string]string{
		"type":       "start_enrollment",
		"speaker_id": "u1",
	})
	if err := c.Write(ctx, websocket.MessageText, start); err != nil {
		t.Fatalf("write start_enrollment: %v", err)
	}

	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read prompts frame: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame["type"] != "prompts" {
		t.Errorf("frame type = %v, want prompts", frame["type"])
	}
	if n := len(frame["prompts"].([]any)); n != 5 {
		t.Errorf("prompts = %d, want 5", n)
	}
}

func TestVerifyEndpointUnknownSpeaker(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, wsURL(srv.URL, "/ws/verify"), nil)
	if err != nil {
		t.Fatalf("dial /ws/verify: %v", err)
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	start, _ := json.Marshal(map[string]string{
		"type":       "start_verify",
		"speaker_id": "nobody",
	})
	if err := c.Write(ctx, websocket.MessageText, start); err != nil {
		t.Fatalf("write start_verify: %v", err)
	}

	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame["type"] != "error" || frame["code"] != "SPEAKER_NOT_FOUND" {
		t.Errorf("frame = %v, want SPEAKER_NOT_FOUND error", frame)
	}
}

// ApplyAuthPolicy must steer sessions opened after the reload: a
// challenge-length change shows up in the next verification prompt.
func TestApplyAuthPolicyAffectsNewSessions(t *testing.T) {
	store := memory.New()
	centroids := make(map[string][]float32, len(gallery.Digits))
	for i := range len(gallery.Digits) {
		vec := make([]float32, 10)
		vec[i] = 1
		centroids[gallery.Digits[i:i+1]] = vec
	}
	if err := store.Commit(context.Background(), gallery.Speaker{ID: "u1"}, centroids); err != nil {
		t.Fatalf("seed speaker: %v", err)
	}

	a := newTestApp(t, app.WithStore(store))
	a.ApplyAuthPolicy(config.AuthConfig{
		SimilarityThreshold: 0.75,
		MaxRetries:          5,
		ChallengeMinLength:  8,
		ChallengeMaxLength:  8,
	})

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, wsURL(srv.URL, "/ws/verify"), nil)
	if err != nil {
		t.Fatalf("dial /ws/verify: %v", err)
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	start, _ := json.Marshal(map[string]string{
		"type":       "start_verify",
		"speaker_id": "u1",
	})
	if err := c.Write(ctx, websocket.MessageText, start); err != nil {
		t.Fatalf("write start_verify: %v", err)
	}

	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read prompt frame: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame["type"] != "prompt" {
		t.Fatalf("frame = %v, want prompt", frame)
	}
	if n := len(frame["prompt"].(string)); n != 8 {
		t.Errorf("challenge length = %d, want 8", n)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}
