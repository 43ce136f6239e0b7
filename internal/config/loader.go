package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidModelNames lists known backend names per model kind.
// Used by [Validate] to warn about unrecognised names.
var ValidModelNames = map[string][]string{
	"asr": {"sensevoice", "whisper"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when server.tls is set"))
		}
		if tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when server.tls is set"))
		}
	}

	// Models — warn for unknown backend names.
	validateModelName("asr", cfg.Models.ASR.Name)

	// Audio
	audio := cfg.Audio
	if audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", audio.SampleRate))
	}
	if audio.MinDuration < 0 {
		errs = append(errs, fmt.Errorf("audio.min_duration %.2f must not be negative", audio.MinDuration))
	}
	if audio.MinDuration > 0 && audio.MaxDuration > 0 && audio.MinDuration >= audio.MaxDuration {
		errs = append(errs, fmt.Errorf("audio.min_duration %.2f must be below audio.max_duration %.2f", audio.MinDuration, audio.MaxDuration))
	}
	if audio.SegmentPadding < 0 {
		errs = append(errs, fmt.Errorf("audio.segment_padding %.2f must not be negative", audio.SegmentPadding))
	}

	// Auth
	auth := cfg.Auth
	if auth.SimilarityThreshold < 0 || auth.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("auth.similarity_threshold %.2f is out of range [0, 1]", auth.SimilarityThreshold))
	}
	if auth.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("auth.max_retries %d must not be negative", auth.MaxRetries))
	}
	if auth.ChallengeMinLength < 0 || auth.ChallengeMaxLength < 0 {
		errs = append(errs, errors.New("auth challenge lengths must not be negative"))
	}
	if auth.ChallengeMinLength > 0 && auth.ChallengeMaxLength > 0 && auth.ChallengeMinLength > auth.ChallengeMaxLength {
		errs = append(errs, fmt.Errorf("auth.challenge_min_length %d exceeds auth.challenge_max_length %d", auth.ChallengeMinLength, auth.ChallengeMaxLength))
	}
	if auth.PINHash != "" && !auth.PINHash.IsValid() {
		errs = append(errs, fmt.Errorf("auth.pin_hash %q is invalid; valid values: sha256-salted", auth.PINHash))
	}

	// Session
	if cfg.Session.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.idle_timeout %s must not be negative", cfg.Session.IdleTimeout))
	}
	if cfg.Session.InferWorkers < 0 {
		errs = append(errs, fmt.Errorf("session.infer_workers %d must not be negative", cfg.Session.InferWorkers))
	}

	// Store availability
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; falling back to the in-memory gallery, enrollments will not survive a restart")
	}
	if cfg.Store.PostgresDSN != "" && cfg.Store.EmbeddingDimensions <= 0 {
		slog.Warn("store.embedding_dimensions is not set; defaulting to 192")
	}

	return errors.Join(errs...)
}

// validateModelName logs a warning if name is non-empty and not found in
// the [ValidModelNames] list for the given kind.
func validateModelName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidModelNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown model backend name — may be a typo",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
