// Package memory provides an in-memory gallery.Store for tests and
// model-free development. Data does not survive a restart.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/voxauth/pkg/gallery"
)

// Store is an in-memory implementation of gallery.Store. Safe for
// concurrent use. The zero value is not usable; call New.
type Store struct {
	mu        sync.RWMutex
	speakers  map[string]gallery.Speaker
	galleries map[string]map[string][]float32
}

var _ gallery.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		speakers:  make(map[string]gallery.Speaker),
		galleries: make(map[string]map[string][]float32),
	}
}

// Exists reports whether the speaker ID is enrolled.
func (s *Store) Exists(_ context.Context, speakerID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.speakers[speakerID]
	return ok, nil
}

// Commit stores the speaker and a deep copy of its centroid gallery.
func (s *Store) Commit(_ context.Context, speaker gallery.Speaker, centroids map[string][]float32) error {
	if speaker.ID == "" {
		return fmt.Errorf("gallery: speaker id is empty")
	}
	if err := gallery.ValidateGallery(centroids); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.speakers[speaker.ID]; ok {
		return gallery.ErrSpeakerExists
	}

	if speaker.CreatedAt.IsZero() {
		speaker.CreatedAt = time.Now()
	}
	if speaker.PINDigest != nil {
		speaker.PINDigest = append([]byte(nil), speaker.PINDigest...)
	}

	g := make(map[string][]float32, len(centroids))
	for d, v := range centroids {
		g[d] = append([]float32(nil), v...)
	}
	s.speakers[speaker.ID] = speaker
	s.galleries[speaker.ID] = g
	return nil
}

// Load returns copies of the stored speaker and gallery.
func (s *Store) Load(_ context.Context, speakerID string) (*gallery.Speaker, map[string][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sp, ok := s.speakers[speakerID]
	if !ok {
		return nil, nil, gallery.ErrSpeakerNotFound
	}
	if sp.PINDigest != nil {
		sp.PINDigest = append([]byte(nil), sp.PINDigest...)
	}

	g := make(map[string][]float32, len(s.galleries[speakerID]))
	for d, v := range s.galleries[speakerID] {
		g[d] = append([]float32(nil), v...)
	}
	return &sp, g, nil
}
