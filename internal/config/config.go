// Package config provides the configuration schema, loader, and model registry
// for the voxauth server.
package config

import "time"

// LogLevel controls log verbosity for the voxauth server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// PINHashScheme selects the PIN digest algorithm.
type PINHashScheme string

const (
	// PINHashSHA256Salted is salted SHA-256 with a per-speaker random salt.
	PINHashSHA256Salted PINHashScheme = "sha256-salted"
)

// IsValid reports whether p is a recognised PIN hash scheme.
func (p PINHashScheme) IsValid() bool {
	return p == PINHashSHA256Salted
}

// Config is the root configuration structure for voxauth.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Models  ModelsConfig  `yaml:"models"`
	Audio   AudioConfig   `yaml:"audio"`
	Auth    AuthConfig    `yaml:"auth"`
	Session SessionConfig `yaml:"session"`
	Store   StoreConfig   `yaml:"store"`
}

// ServerConfig holds network and logging settings for the voxauth server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ModelsConfig declares the inference models for each pipeline stage.
type ModelsConfig struct {
	ASR     ASRConfig     `yaml:"asr"`
	VAD     VADConfig     `yaml:"vad"`
	Speaker SpeakerConfig `yaml:"speaker"`
}

// ASRConfig selects and configures the speech-recognition backend.
// The Name field is used to look up the constructor in the [Registry].
type ASRConfig struct {
	// Name selects the registered ASR backend ("sensevoice" or "whisper").
	Name string `yaml:"name"`

	// Model is the path to the model file.
	Model string `yaml:"model"`

	// Tokens is the path to the tokens.txt vocabulary file. SenseVoice only.
	Tokens string `yaml:"tokens"`

	// Language hints the recognition language (e.g. "ja").
	// Empty means auto-detect (SenseVoice) or "ja" (whisper).
	Language string `yaml:"language"`

	// NumThreads is the per-handle inference thread count. Zero means 1.
	NumThreads int `yaml:"num_threads"`
}

// VADConfig configures the Silero voice-activity detector.
type VADConfig struct {
	// Model is the path to the silero_vad.onnx model file.
	Model string `yaml:"model"`

	// Threshold is the speech probability above which a window counts as
	// speech. Zero means 0.5.
	Threshold float32 `yaml:"threshold"`

	// MinSilence is the silence gap in seconds that closes a speech region.
	// Zero means 0.25.
	MinSilence float32 `yaml:"min_silence"`

	// MinSpeech is the minimum region length in seconds reported as speech.
	// Zero means 0.25.
	MinSpeech float32 `yaml:"min_speech"`

	// WindowSize is the per-step window in samples. Zero means the
	// model-native 512.
	WindowSize int `yaml:"window_size"`
}

// SpeakerConfig configures the speaker-embedding model.
type SpeakerConfig struct {
	// Model is the path to the speaker-embedding ONNX model file.
	Model string `yaml:"model"`

	// NumThreads is the per-handle inference thread count. Zero means 1.
	NumThreads int `yaml:"num_threads"`
}

// AudioConfig holds clip acceptance and segmentation settings.
type AudioConfig struct {
	// SampleRate is the pipeline-internal sample rate in Hz. Decoded audio
	// is resampled to this rate. Zero means 16000.
	SampleRate int `yaml:"sample_rate"`

	// MinDuration is the shortest acceptable clip in seconds. Zero means 1.0.
	MinDuration float64 `yaml:"min_duration"`

	// MaxDuration is the longest acceptable clip in seconds. Zero means 10.0.
	MaxDuration float64 `yaml:"max_duration"`

	// SegmentPadding is added on both sides of each digit span, in seconds.
	// Zero means 0.10.
	SegmentPadding float64 `yaml:"segment_padding"`

	// NoOverlap clamps each padded slice at the next digit's onset so
	// adjacent slices never share samples.
	NoOverlap bool `yaml:"no_overlap"`
}

// AuthConfig holds the authentication policy.
type AuthConfig struct {
	// SimilarityThreshold is the minimum mean cosine score for voice
	// authentication. Zero means 0.75.
	SimilarityThreshold float32 `yaml:"similarity_threshold"`

	// MaxRetries is the per-set retry cap during enrollment. Zero means 5.
	MaxRetries int `yaml:"max_retries"`

	// ChallengeMinLength and ChallengeMaxLength bound the verification
	// prompt length. Zero means 4 and 6.
	ChallengeMinLength int `yaml:"challenge_min_length"`
	ChallengeMaxLength int `yaml:"challenge_max_length"`

	// PINHash selects the PIN digest scheme. Only "sha256-salted" is
	// currently supported; empty means that.
	PINHash PINHashScheme `yaml:"pin_hash"`
}

// SessionConfig holds per-connection runtime settings.
type SessionConfig struct {
	// IdleTimeout closes a session when no frame arrives for this long.
	// Zero means 60s.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// InferWorkers is the number of model handles held per pool, which
	// bounds concurrent inference. Zero means GOMAXPROCS.
	InferWorkers int `yaml:"infer_workers"`
}

// StoreConfig holds the gallery persistence settings.
type StoreConfig struct {
	// PostgresDSN is the connection string for the speaker gallery.
	// Empty means the in-memory store (development only; nothing persists).
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDimensions is the pgvector column width. Must match the
	// speaker model's output dimension. Zero means 192.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}
