// Package session implements the WebSocket enrollment and verification
// state machines: inbound frame demultiplexing, the message grammar,
// idle timeouts, and the error taxonomy. Audio processing is delegated
// to a [Processor]; persistence to a [gallery.Store].
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voxauth/internal/observe"
	"github.com/MrWong99/voxauth/pkg/gallery"
	"github.com/MrWong99/voxauth/pkg/pipeline"
)

// Processor runs the audio pipeline for one clip. Implemented by
// [pipeline.Pipeline]; tests substitute stubs.
type Processor interface {
	ProcessEnrollment(ctx context.Context, data []byte, prompt string) (*pipeline.EnrollmentResult, error)
	ProcessVerification(ctx context.Context, data []byte, prompt string, centroids map[string][]float32, threshold float32) (*pipeline.VerificationResult, error)
}

// Config holds the session-level policy knobs.
type Config struct {
	// IdleTimeout closes the session when no inbound frame arrives for
	// this long. Zero means 60 seconds.
	IdleTimeout time.Duration

	// MaxRetries is the per-set retry cap during enrollment. Zero means 5.
	MaxRetries int

	// SimilarityThreshold is the minimum mean cosine score for voice
	// authentication. Zero means 0.75.
	SimilarityThreshold float32

	// ChallengeMinLength and ChallengeMaxLength bound the verification
	// prompt length. Zero means [4, 6].
	ChallengeMinLength int
	ChallengeMaxLength int
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.75
	}
	if c.ChallengeMinLength <= 0 {
		c.ChallengeMinLength = 4
	}
	if c.ChallengeMaxLength < c.ChallengeMinLength {
		c.ChallengeMaxLength = max(6, c.ChallengeMinLength)
	}
	return c
}

// Runtime spawns independent sessions over accepted connections. Safe
// for concurrent use; sessions share only the processor pools and the
// gallery store.
type Runtime struct {
	mu      sync.RWMutex
	cfg     Config
	proc    Processor
	store   gallery.Store
	metrics *observe.Metrics
}

// NewRuntime builds a Runtime. A nil metrics falls back to
// [observe.DefaultMetrics].
func NewRuntime(cfg Config, proc Processor, store gallery.Store, metrics *observe.Metrics) *Runtime {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Runtime{
		cfg:     cfg.withDefaults(),
		proc:    proc,
		store:   store,
		metrics: metrics,
	}
}

// SetPolicy swaps the policy knobs at runtime. Sessions snapshot the
// policy when they start, so in-flight sessions keep the knobs they
// began with and new connections pick up the change.
func (r *Runtime) SetPolicy(cfg Config) {
	cfg = cfg.withDefaults()
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
}

// policy returns the current policy snapshot.
func (r *Runtime) policy() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// errIdleTimeout marks an idle-timer expiry internally.
var errIdleTimeout = errors.New("session: idle timeout")

// errRead marks a transport read failure (usually a client disconnect).
var errRead = errors.New("session: read frame")

// session is the per-connection state shared by both flows. pol is the
// policy snapshot taken when the connection was accepted.
type session struct {
	conn Conn
	pol  Config
	idle time.Duration
	log  *slog.Logger
}

// recv waits for the next inbound frame, bounded by the idle timer.
func (s *session) recv(ctx context.Context) (FrameKind, []byte, error) {
	idleCtx, cancel := context.WithTimeout(ctx, s.idle)
	defer cancel()

	kind, data, err := s.conn.Read(idleCtx)
	if err != nil {
		// Distinguish the idle timer from caller cancellation.
		if idleCtx.Err() != nil && ctx.Err() == nil {
			return 0, nil, errIdleTimeout
		}
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		return 0, nil, fmt.Errorf("%w: %w", errRead, err)
	}
	return kind, data, nil
}

// send serializes v as a JSON text frame. A cancelled session emits
// nothing.
func (s *session) send(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session: marshal %T: %w", v, err)
	}
	return s.conn.Write(ctx, FrameText, data)
}

// sendError emits an error frame. Whether it is terminal is up to the
// caller; INVALID_MESSAGE and INVALID_PIN frames leave the session open.
func (s *session) sendError(ctx context.Context, code Code, message string) error {
	return s.send(ctx, errorMessage{Type: "error", Code: code, Message: message})
}

// fail emits a terminal error frame, best effort, and logs the cause.
func (s *session) fail(ctx context.Context, code Code, message string) {
	if err := s.sendError(ctx, code, message); err != nil {
		s.log.Debug("terminal error frame not delivered", "code", code, "error", err)
		return
	}
	s.log.Info("session failed", "code", code)
}

// newSession wraps a connection for one of the two flows.
func (r *Runtime) newSession(conn Conn, flow string) *session {
	pol := r.policy()
	return &session{
		conn: conn,
		pol:  pol,
		idle: pol.IdleTimeout,
		log:  slog.Default().With("flow", flow),
	}
}

// handle runs fn with active-session accounting and converts the
// internal timeout marker into the TIMEOUT wire error.
func (r *Runtime) handle(ctx context.Context, s *session, fn func(context.Context, *session) error) {
	r.metrics.ActiveSessions.Add(ctx, 1)
	defer r.metrics.ActiveSessions.Add(ctx, -1)
	defer s.conn.Close()

	err := fn(ctx, s)
	switch {
	case err == nil:
	case errors.Is(err, errIdleTimeout):
		s.fail(ctx, CodeTimeout, msgTimeout)
	case errors.Is(err, errRead):
		s.log.Debug("connection lost", "error", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.log.Debug("session cancelled")
	default:
		s.log.Error("session error", "error", err)
		s.fail(ctx, CodeInternalError, msgInternalError)
	}
}

// HandleEnrollment runs one enrollment session over conn and blocks
// until it terminates.
func (r *Runtime) HandleEnrollment(ctx context.Context, conn Conn) {
	r.handle(ctx, r.newSession(conn, "enrollment"), r.runEnrollment)
}

// HandleVerification runs one verification session over conn and blocks
// until it terminates.
func (r *Runtime) HandleVerification(ctx context.Context, conn Conn) {
	r.handle(ctx, r.newSession(conn, "verification"), r.runVerification)
}

// recvControl waits for a text frame and decodes it. Binary frames in a
// control position are a protocol violation.
func (s *session) recvControl(ctx context.Context) (*clientMessage, error) {
	kind, data, err := s.recv(ctx)
	if err != nil {
		return nil, err
	}
	if kind != FrameText {
		return nil, nil
	}
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, nil
	}
	return &msg, nil
}
