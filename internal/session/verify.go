package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/voxauth/internal/auth"
	"github.com/MrWong99/voxauth/internal/promptgen"
	"github.com/MrWong99/voxauth/pkg/gallery"
)

// runVerification drives the verification state machine: start message,
// challenge prompt, one voice attempt, then optional PIN fallback with
// unlimited retries until timeout or disconnect.
func (r *Runtime) runVerification(ctx context.Context, s *session) error {
	msg, err := s.recvControl(ctx)
	if err != nil {
		return err
	}
	if msg == nil || msg.Type != "start_verify" || msg.SpeakerID == "" {
		s.fail(ctx, CodeInvalidMessage, msgExpectStartVerify)
		return nil
	}
	speakerID := msg.SpeakerID
	s.log = s.log.With("speaker_id", speakerID)

	speaker, centroids, err := r.store.Load(ctx, speakerID)
	if err != nil {
		if errors.Is(err, gallery.ErrSpeakerNotFound) {
			s.fail(ctx, CodeSpeakerNotFound, msgSpeakerNotFound(speakerID))
			return nil
		}
		return fmt.Errorf("session: load speaker: %w", err)
	}
	canFallback := len(speaker.PINDigest) > 0

	prompt, err := promptgen.ChallengePrompt(s.pol.ChallengeMinLength, s.pol.ChallengeMaxLength)
	if err != nil {
		return fmt.Errorf("session: generate challenge: %w", err)
	}
	if err := s.send(ctx, promptMessage{Type: "prompt", Prompt: prompt, Length: len(prompt)}); err != nil {
		return err
	}

	kind, data, err := s.recv(ctx)
	if err != nil {
		return err
	}
	if kind != FrameBinary {
		s.fail(ctx, CodeInvalidMessage, msgExpectBinaryAudio)
		return nil
	}

	authenticated, err := r.verifyVoice(ctx, s, speakerID, prompt, data, centroids, canFallback)
	if err != nil {
		return err
	}
	if authenticated {
		return nil
	}
	if !canFallback {
		// The verify_result already told the client no fallback exists;
		// the failure is terminal, so close instead of waiting for a
		// verify_pin that can never succeed.
		return nil
	}
	return r.verifyPINLoop(ctx, s, speaker)
}

// verifyVoice runs the voice attempt and emits its verify_result.
func (r *Runtime) verifyVoice(ctx context.Context, s *session, speakerID, prompt string, data []byte, centroids map[string][]float32, canFallback bool) (bool, error) {
	res, err := r.proc.ProcessVerification(ctx, data, prompt, centroids, s.pol.SimilarityThreshold)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if !recoverable(err) {
			return false, fmt.Errorf("session: process verification: %w", err)
		}
		code := codeFor(err)
		r.metrics.RecordPipelineError(ctx, "verification", string(code))
		r.metrics.RecordAuthAttempt(ctx, "voice", "error")
		s.log.Info("voice attempt failed", "code", code)
		return false, s.send(ctx, verifyResultMessage{
			Type:             "verify_result",
			SpeakerID:        speakerID,
			CanFallbackToPIN: canFallback,
			Message:          msgVerifyError,
		})
	}

	if !res.Matched {
		r.metrics.RecordAuthAttempt(ctx, "voice", "prompt_mismatch")
		return false, s.send(ctx, verifyResultMessage{
			Type:             "verify_result",
			SpeakerID:        speakerID,
			ASRResult:        res.Digits,
			CanFallbackToPIN: canFallback,
			Message:          msgPromptMismatch,
		})
	}

	similarity := res.Score
	if res.Authenticated {
		r.metrics.RecordAuthAttempt(ctx, "voice", "success")
		s.log.Info("voice authentication succeeded", "similarity", similarity)
		return true, s.send(ctx, verifyResultMessage{
			Type:            "verify_result",
			Authenticated:   true,
			SpeakerID:       speakerID,
			ASRResult:       res.Digits,
			ASRMatched:      true,
			VoiceSimilarity: &similarity,
			DigitScores:     res.DigitScores,
			AuthMethod:      "voice",
			Message:         msgAuthSuccess,
		})
	}

	r.metrics.RecordAuthAttempt(ctx, "voice", "failure")
	s.log.Info("voice authentication failed", "similarity", similarity)
	return false, s.send(ctx, verifyResultMessage{
		Type:             "verify_result",
		SpeakerID:        speakerID,
		ASRResult:        res.Digits,
		ASRMatched:       true,
		VoiceSimilarity:  &similarity,
		DigitScores:      res.DigitScores,
		CanFallbackToPIN: canFallback,
		Message:          msgVoiceMismatch,
	})
}

// verifyPINLoop handles verify_pin attempts until one succeeds or the
// session ends. Wrong PINs re-prompt; the idle timer bounds the loop.
// Callers only reach the loop when a PIN is enrolled, but the digest is
// re-checked so a verify_pin against a PIN-less record still terminates
// with PIN_NOT_SET instead of failing the hash comparison.
func (r *Runtime) verifyPINLoop(ctx context.Context, s *session, speaker *gallery.Speaker) error {
	for {
		msg, err := s.recvControl(ctx)
		if err != nil {
			return err
		}
		if msg == nil || msg.Type != "verify_pin" {
			if err := s.sendError(ctx, CodeInvalidMessage, msgExpectVerifyPIN); err != nil {
				return err
			}
			continue
		}
		if len(speaker.PINDigest) == 0 {
			r.metrics.RecordAuthAttempt(ctx, "pin", "not_set")
			s.fail(ctx, CodePINNotSet, msgPINNotSet)
			return nil
		}

		if auth.VerifyPIN(speaker.PINDigest, msg.PIN) {
			r.metrics.RecordAuthAttempt(ctx, "pin", "success")
			s.log.Info("pin authentication succeeded")
			return s.send(ctx, verifyResultMessage{
				Type:          "verify_result",
				Authenticated: true,
				SpeakerID:     speaker.ID,
				AuthMethod:    "pin",
				Message:       msgPINAuthSuccess,
			})
		}

		r.metrics.RecordAuthAttempt(ctx, "pin", "failure")
		if err := s.send(ctx, verifyResultMessage{
			Type:             "verify_result",
			SpeakerID:        speaker.ID,
			CanFallbackToPIN: true,
			Message:          msgPINMismatch,
		}); err != nil {
			return err
		}
	}
}
