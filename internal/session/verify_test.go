package session

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/voxauth/internal/auth"
	"github.com/MrWong99/voxauth/pkg/gallery"
	"github.com/MrWong99/voxauth/pkg/gallery/memory"
	"github.com/MrWong99/voxauth/pkg/pipeline"
)

// verifyOutcome scripts a verification result for the given challenge.
func verifyOutcome(prompt string, score float32, authenticated bool) *pipeline.VerificationResult {
	scores := make(map[string]float32, len(prompt))
	for i := range prompt {
		scores[prompt[i:i+1]] = score
	}
	return &pipeline.VerificationResult{
		Text:          prompt,
		Digits:        prompt,
		Matched:       true,
		DigitScores:   scores,
		Score:         score,
		Authenticated: authenticated,
	}
}

func mustDigest(t *testing.T, pin string) []byte {
	t.Helper()
	digest, err := auth.HashPIN(pin)
	if err != nil {
		t.Fatalf("HashPIN: %v", err)
	}
	return digest
}

// startVerify opens a verification session and returns the challenge.
func startVerify(t *testing.T, conn *scriptConn, speakerID string) string {
	t.Helper()
	conn.sendJSON(t, clientMessage{Type: "start_verify", SpeakerID: speakerID})
	prompt := conn.recvJSON(t)
	if prompt["type"] != "prompt" {
		t.Fatalf("first frame = %v, want prompt", prompt)
	}
	challenge := prompt["prompt"].(string)
	if got := int(prompt["length"].(float64)); got != len(challenge) {
		t.Errorf("length = %d, want %d", got, len(challenge))
	}
	if len(challenge) < 4 || len(challenge) > 6 {
		t.Errorf("challenge %q length outside [4, 6]", challenge)
	}
	return challenge
}

func TestVerificationVoiceSuccess(t *testing.T) {
	store := memory.New()
	seedSpeaker(t, store, "u1", mustDigest(t, "1234"))

	proc := &stubProcessor{
		verifyFn: func(_ int, prompt string) (*pipeline.VerificationResult, error) {
			return verifyOutcome(prompt, 0.91, true), nil
		},
	}
	rt := newRuntime(proc, store, Config{})
	conn := newScriptConn()
	done := startSession(t, conn, rt.HandleVerification)

	challenge := startVerify(t, conn, "u1")
	conn.sendAudio()

	res := conn.recvJSON(t)
	if res["type"] != "verify_result" || res["authenticated"] != true {
		t.Fatalf("frame = %v, want authenticated verify_result", res)
	}
	if res["auth_method"] != "voice" || res["asr_matched"] != true {
		t.Errorf("frame = %v, want voice method with asr_matched", res)
	}
	if sim := res["voice_similarity"].(float64); sim < 0.75 {
		t.Errorf("voice_similarity = %v, want >= 0.75", sim)
	}
	scores := res["digit_scores"].(map[string]any)
	for i := range challenge {
		if _, ok := scores[challenge[i:i+1]]; !ok {
			t.Errorf("digit_scores missing %q", challenge[i:i+1])
		}
	}
	if res["message"] != "認証成功" {
		t.Errorf("message = %v, want 認証成功", res["message"])
	}
	<-done
}

func TestVerificationFallbackToPIN(t *testing.T) {
	store := memory.New()
	seedSpeaker(t, store, "u1", mustDigest(t, "1234"))

	proc := &stubProcessor{
		verifyFn: func(_ int, prompt string) (*pipeline.VerificationResult, error) {
			return verifyOutcome(prompt, 0.41, false), nil
		},
	}
	rt := newRuntime(proc, store, Config{})
	conn := newScriptConn()
	done := startSession(t, conn, rt.HandleVerification)

	startVerify(t, conn, "u1")
	conn.sendAudio()

	res := conn.recvJSON(t)
	if res["authenticated"] != false || res["asr_matched"] != true {
		t.Fatalf("voice frame = %v, want mismatch with asr_matched", res)
	}
	if res["can_fallback_to_pin"] != true {
		t.Fatalf("voice frame = %v, want can_fallback_to_pin", res)
	}
	if res["message"] != "声紋が一致しません" {
		t.Errorf("message = %v, want 声紋が一致しません", res["message"])
	}

	// Wrong PIN re-prompts.
	conn.sendJSON(t, clientMessage{Type: "verify_pin", PIN: "9999"})
	wrong := conn.recvJSON(t)
	if wrong["authenticated"] != false || wrong["can_fallback_to_pin"] != true {
		t.Fatalf("wrong-pin frame = %v", wrong)
	}
	if wrong["message"] != "PINが一致しません" {
		t.Errorf("message = %v, want PINが一致しません", wrong["message"])
	}

	// Correct PIN authenticates.
	conn.sendJSON(t, clientMessage{Type: "verify_pin", PIN: "1234"})
	okFrame := conn.recvJSON(t)
	if okFrame["authenticated"] != true || okFrame["auth_method"] != "pin" {
		t.Fatalf("pin frame = %v, want pin authentication", okFrame)
	}
	if okFrame["message"] != "PIN認証成功" {
		t.Errorf("message = %v, want PIN認証成功", okFrame["message"])
	}
	<-done
}

func TestVerificationPromptMismatch(t *testing.T) {
	store := memory.New()
	seedSpeaker(t, store, "u1", mustDigest(t, "1234"))

	proc := &stubProcessor{
		verifyFn: func(int, string) (*pipeline.VerificationResult, error) {
			return &pipeline.VerificationResult{Text: "9876", Digits: "9876"}, nil
		},
	}
	rt := newRuntime(proc, store, Config{})
	conn := newScriptConn()
	startSession(t, conn, rt.HandleVerification)

	startVerify(t, conn, "u1")
	conn.sendAudio()

	res := conn.recvJSON(t)
	if res["authenticated"] != false || res["asr_matched"] != false {
		t.Fatalf("frame = %v, want asr mismatch", res)
	}
	if res["message"] != "発話内容がプロンプトと一致しません" {
		t.Errorf("message = %v", res["message"])
	}
	if res["can_fallback_to_pin"] != true {
		t.Errorf("frame = %v, want can_fallback_to_pin", res)
	}
}

func TestVerificationSpeakerNotFound(t *testing.T) {
	rt := newRuntime(&stubProcessor{}, memory.New(), Config{})
	conn := newScriptConn()
	done := startSession(t, conn, rt.HandleVerification)

	conn.sendJSON(t, clientMessage{Type: "start_verify", SpeakerID: "nobody"})
	msg := conn.recvJSON(t)
	if msg["type"] != "error" || msg["code"] != string(CodeSpeakerNotFound) {
		t.Errorf("frame = %v, want SPEAKER_NOT_FOUND", msg)
	}
	<-done
}

// A failed voice attempt with no enrolled PIN is terminal: the session
// closes right after the verify_result instead of waiting for a
// verify_pin that cannot succeed.
func TestVerificationNoFallbackClosesSession(t *testing.T) {
	store := memory.New()
	seedSpeaker(t, store, "u1", nil)

	proc := &stubProcessor{
		verifyFn: func(_ int, prompt string) (*pipeline.VerificationResult, error) {
			return verifyOutcome(prompt, 0.2, false), nil
		},
	}
	rt := newRuntime(proc, store, Config{})
	conn := newScriptConn()
	done := startSession(t, conn, rt.HandleVerification)

	startVerify(t, conn, "u1")
	conn.sendAudio()

	res := conn.recvJSON(t)
	if res["authenticated"] != false {
		t.Fatalf("voice frame = %v, want failure", res)
	}
	if _, present := res["can_fallback_to_pin"]; present {
		t.Errorf("voice frame advertises PIN fallback without a PIN: %v", res)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session still open after terminal verify_result")
	}
	conn.expectNoFrame(t)
}

// The PIN loop re-checks the stored digest, so a verify_pin against a
// PIN-less record answers PIN_NOT_SET rather than comparing hashes.
func TestVerifyPINLoopWithoutDigest(t *testing.T) {
	rt := newRuntime(&stubProcessor{}, memory.New(), Config{})
	conn := newScriptConn()
	s := rt.newSession(conn, "verification")

	conn.sendJSON(t, clientMessage{Type: "verify_pin", PIN: "1234"})

	errCh := make(chan error, 1)
	go func() {
		errCh <- rt.verifyPINLoop(context.Background(), s, &gallery.Speaker{ID: "u1"})
	}()

	msg := conn.recvJSON(t)
	if msg["type"] != "error" || msg["code"] != string(CodePINNotSet) {
		t.Errorf("frame = %v, want PIN_NOT_SET", msg)
	}
	if err := <-errCh; err != nil {
		t.Errorf("verifyPINLoop error = %v", err)
	}
}

func TestVerificationPipelineErrorAllowsFallback(t *testing.T) {
	store := memory.New()
	seedSpeaker(t, store, "u1", mustDigest(t, "1234"))

	proc := &stubProcessor{
		verifyFn: func(int, string) (*pipeline.VerificationResult, error) {
			return nil, pipeline.ErrInvalidAudio
		},
	}
	rt := newRuntime(proc, store, Config{})
	conn := newScriptConn()
	startSession(t, conn, rt.HandleVerification)

	startVerify(t, conn, "u1")
	conn.sendAudio()

	res := conn.recvJSON(t)
	if res["type"] != "verify_result" || res["authenticated"] != false {
		t.Fatalf("frame = %v, want failed verify_result", res)
	}
	if res["can_fallback_to_pin"] != true {
		t.Fatalf("frame = %v, want can_fallback_to_pin", res)
	}

	conn.sendJSON(t, clientMessage{Type: "verify_pin", PIN: "1234"})
	okFrame := conn.recvJSON(t)
	if okFrame["authenticated"] != true || okFrame["auth_method"] != "pin" {
		t.Errorf("pin frame = %v, want pin authentication", okFrame)
	}
}
