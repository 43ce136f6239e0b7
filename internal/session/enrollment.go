package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/voxauth/internal/auth"
	"github.com/MrWong99/voxauth/internal/promptgen"
	"github.com/MrWong99/voxauth/pkg/gallery"
	"github.com/MrWong99/voxauth/pkg/provider/embedding"
)

// embeddingsPerDigit is how many samples of each digit the balanced
// prompt schedule collects across the five sets.
const embeddingsPerDigit = 2

// runEnrollment drives the enrollment state machine: start message,
// prompt schedule, five audio sets with per-set retries, PIN
// registration, and the atomic gallery commit.
func (r *Runtime) runEnrollment(ctx context.Context, s *session) error {
	msg, err := s.recvControl(ctx)
	if err != nil {
		return err
	}
	if msg == nil || msg.Type != "start_enrollment" || msg.SpeakerID == "" {
		s.fail(ctx, CodeInvalidMessage, msgExpectStartEnroll)
		return nil
	}
	speakerID := msg.SpeakerID
	speakerName := msg.SpeakerName
	s.log = s.log.With("speaker_id", speakerID)

	exists, err := r.store.Exists(ctx, speakerID)
	if err != nil {
		return fmt.Errorf("session: check speaker: %w", err)
	}
	if exists {
		s.fail(ctx, CodeSpeakerAlreadyExists, msgSpeakerExists(speakerID))
		return nil
	}

	prompts, err := promptgen.EnrollmentPrompts()
	if err != nil {
		return fmt.Errorf("session: generate prompts: %w", err)
	}
	if err := s.send(ctx, promptsMessage{
		Type:       "prompts",
		SpeakerID:  speakerID,
		Prompts:    prompts,
		TotalSets:  len(prompts),
		CurrentSet: 0,
	}); err != nil {
		return err
	}

	accumulated := make(map[byte][][]float32, len(gallery.Digits))
	if err := r.collectSets(ctx, s, prompts, accumulated); err != nil {
		return err
	}
	if len(accumulated) == 0 {
		// Terminal failure already reported (retries exhausted).
		r.metrics.RecordEnrollment(ctx, "max_retries")
		return nil
	}

	digest, err := r.collectPIN(ctx, s)
	if err != nil {
		return err
	}

	centroids, err := computeCentroids(accumulated)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	sp := gallery.Speaker{ID: speakerID, Name: speakerName, PINDigest: digest}
	if err := r.store.Commit(ctx, sp, centroids); err != nil {
		if errors.Is(err, gallery.ErrSpeakerExists) {
			s.fail(ctx, CodeSpeakerAlreadyExists, msgSpeakerExists(speakerID))
			return nil
		}
		return fmt.Errorf("session: commit enrollment: %w", err)
	}

	registered := make([]string, 0, len(gallery.Digits))
	for i := range len(gallery.Digits) {
		registered = append(registered, gallery.Digits[i:i+1])
	}
	r.metrics.RecordEnrollment(ctx, "success")
	s.log.Info("enrollment complete", "has_pin", digest != nil)
	return s.send(ctx, enrollmentCompleteMessage{
		Type:             "enrollment_complete",
		SpeakerID:        speakerID,
		RegisteredDigits: registered,
		HasPIN:           digest != nil,
		Status:           "registered",
	})
}

// collectSets runs the five audio sets. On success accumulated holds the
// per-digit embeddings; on retry exhaustion it is emptied and the
// terminal error frame has already been sent.
func (r *Runtime) collectSets(ctx context.Context, s *session, prompts []string, accumulated map[byte][][]float32) error {
	for set, retries := 0, 0; set < len(prompts); {
		kind, data, err := s.recv(ctx)
		if err != nil {
			return err
		}
		if kind != FrameBinary {
			if err := s.sendError(ctx, CodeInvalidMessage, msgExpectBinaryAudio); err != nil {
				return err
			}
			continue
		}

		res, err := r.proc.ProcessEnrollment(ctx, data, prompts[set])
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !recoverable(err) {
				return fmt.Errorf("session: process set %d: %w", set, err)
			}
			code := codeFor(err)
			r.metrics.RecordPipelineError(ctx, "enrollment", string(code))
			s.log.Info("set attempt failed", "set", set, "code", code)
		}
		matched := err == nil && res.Matched

		if !matched {
			retries++
			if retries >= s.pol.MaxRetries {
				s.fail(ctx, CodeMaxRetriesExceeded, msgMaxRetries(s.pol.MaxRetries))
				clear(accumulated)
				return nil
			}
			heard := ""
			if res != nil {
				heard = res.Digits
			}
			if err := s.send(ctx, asrResultMessage{
				Type:          "asr_result",
				Success:       false,
				ASRResult:     heard,
				SetIndex:      set,
				RemainingSets: len(prompts) - set,
				RetryCount:    retries,
				MaxRetries:    s.pol.MaxRetries,
				Message:       msgRetryPrompt,
			}); err != nil {
				return err
			}
			continue
		}

		for _, de := range res.Embeddings {
			accumulated[de.Digit] = append(accumulated[de.Digit], de.Vector)
		}
		remaining := len(prompts) - set - 1
		message := msgSetAccepted
		if remaining == 0 {
			message = msgVoiceEnrollDone
		}
		if err := s.send(ctx, asrResultMessage{
			Type:          "asr_result",
			Success:       true,
			ASRResult:     res.Digits,
			SetIndex:      set,
			RemainingSets: remaining,
			Message:       message,
		}); err != nil {
			return err
		}
		set++
		retries = 0
	}
	return nil
}

// collectPIN waits for register_pin and returns the salted digest, or
// nil when the client opts out with an empty PIN. Invalid submissions
// re-prompt without closing the session.
func (r *Runtime) collectPIN(ctx context.Context, s *session) ([]byte, error) {
	for {
		msg, err := s.recvControl(ctx)
		if err != nil {
			return nil, err
		}
		if msg == nil || msg.Type != "register_pin" {
			if err := s.sendError(ctx, CodeInvalidMessage, msgExpectRegisterPIN); err != nil {
				return nil, err
			}
			continue
		}
		if msg.PIN == "" {
			return nil, nil
		}
		digest, err := auth.HashPIN(msg.PIN)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidPIN) {
				if err := s.sendError(ctx, CodeInvalidPIN, msgInvalidPIN); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("session: hash pin: %w", err)
		}
		return digest, nil
	}
}

// computeCentroids folds the accumulated per-digit embeddings into unit
// centroids, requiring exactly two samples per digit.
func computeCentroids(accumulated map[byte][][]float32) (map[string][]float32, error) {
	centroids := make(map[string][]float32, len(gallery.Digits))
	for i := range len(gallery.Digits) {
		digit := gallery.Digits[i]
		vectors := accumulated[digit]
		if len(vectors) != embeddingsPerDigit {
			return nil, fmt.Errorf("digit %c has %d embeddings at commit, want %d",
				digit, len(vectors), embeddingsPerDigit)
		}
		c, err := embedding.Centroid(vectors)
		if err != nil {
			return nil, fmt.Errorf("centroid for digit %c: %w", digit, err)
		}
		centroids[string(digit)] = c
	}
	return centroids, nil
}
