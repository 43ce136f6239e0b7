// Package embedding defines the Extractor interface for speaker-embedding
// backends and the vector arithmetic used to compare them.
//
// An extractor maps a speech clip to a fixed-dimension voiceprint vector.
// Vectors are compared by cosine similarity after L2 normalization; digit
// centroids are the normalized mean of the per-utterance vectors.
//
// Extractor handles are NOT safe for concurrent use; hold one per worker.
package embedding

// Extractor maps speech clips to fixed-dimension voiceprint vectors.
type Extractor interface {
	// Embed computes the embedding vector for the given mono float32
	// clip. The returned vector has Dim() elements and is NOT normalized;
	// callers decide when to apply [L2Normalize].
	Embed(samples []float32, sampleRate int) ([]float32, error)

	// Dim returns the embedding dimension of the loaded model.
	Dim() int

	// Close releases the model handle. Calling Close more than once is safe.
	Close() error
}
