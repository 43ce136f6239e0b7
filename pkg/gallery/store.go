// Package gallery defines the persistent store for enrolled speakers: one
// voiceprint centroid per digit plus the optional PIN digest. Only derived
// data is stored — raw audio never reaches this layer.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Digits lists the gallery keys every complete enrollment must cover.
const Digits = "0123456789"

// ErrSpeakerExists is returned by Commit when the speaker ID is already
// enrolled.
var ErrSpeakerExists = errors.New("gallery: speaker already exists")

// ErrSpeakerNotFound is returned by Load when no speaker with the given ID
// is enrolled.
var ErrSpeakerNotFound = errors.New("gallery: speaker not found")

// Speaker is the stored profile of an enrolled speaker.
type Speaker struct {
	// ID is the unique speaker identifier chosen at enrollment.
	ID string

	// Name is an optional display name.
	Name string

	// PINDigest is the salted PIN hash, or nil when no PIN is set.
	PINDigest []byte

	// CreatedAt is when the enrollment was committed.
	CreatedAt time.Time
}

// Store persists enrolled speakers and their per-digit voiceprint
// centroids. Implementations must be safe for concurrent use.
type Store interface {
	// Exists reports whether a speaker with the given ID is enrolled.
	Exists(ctx context.Context, speakerID string) (bool, error)

	// Commit atomically persists a new speaker together with all ten
	// digit centroids. Either the full gallery is stored or nothing is.
	// Returns [ErrSpeakerExists] when the ID is taken.
	Commit(ctx context.Context, speaker Speaker, centroids map[string][]float32) error

	// Load returns the speaker profile and its digit-to-centroid gallery.
	// Returns [ErrSpeakerNotFound] when the ID is unknown.
	Load(ctx context.Context, speakerID string) (*Speaker, map[string][]float32, error)
}

// ValidateGallery checks that centroids holds exactly one vector per digit
// 0-9 and nothing else.
func ValidateGallery(centroids map[string][]float32) error {
	if len(centroids) != len(Digits) {
		return fmt.Errorf("gallery: %d centroids, want %d", len(centroids), len(Digits))
	}
	for i := range len(Digits) {
		d := Digits[i : i+1]
		v, ok := centroids[d]
		if !ok {
			return fmt.Errorf("gallery: missing centroid for digit %s", d)
		}
		if len(v) == 0 {
			return fmt.Errorf("gallery: empty centroid for digit %s", d)
		}
	}
	return nil
}
