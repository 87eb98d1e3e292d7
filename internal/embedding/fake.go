package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// Fake is a deterministic in-process Provider for tests and offline runs.
// Vectors can be pinned per text; unpinned texts get a stable hash-derived
// unit vector. Calls counts every provider invocation, which lets tests
// assert that cached results never re-invoke the model.
type Fake struct {
	Dim     int
	Vectors map[string][]float32
	Err     error
	Calls   int
}

// NewFake creates a Fake provider with the given dimension.
func NewFake(dim int) *Fake {
	return &Fake{Dim: dim, Vectors: make(map[string][]float32)}
}

// Pin fixes the vector returned for a text.
func (f *Fake) Pin(text string, vector []float32) {
	f.Vectors[text] = vector
}

func (f *Fake) Dimension() int { return f.Dim }

func (f *Fake) Embed(_ context.Context, text string) ([]float32, error) {
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	if v, ok := f.Vectors[text]; ok {
		return v, nil
	}
	return f.derive(text), nil
}

func (f *Fake) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// derive produces a stable unit vector from the text's FNV hash.
func (f *Fake) derive(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	v := make([]float32, f.Dim)
	var norm float64
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(int32(seed>>33)) / float32(math.MaxInt32)
		norm += float64(v[i]) * float64(v[i])
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		v[0] = 1
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
