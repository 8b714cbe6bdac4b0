// Package vector holds the float32 embedding helpers shared by the topic and
// successful-fix stores: the packed wire form RediSearch indexes, the base64
// text copy, and centroid arithmetic.
package vector

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Pack encodes a vector as little-endian float32 bytes.
func Pack(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// Unpack decodes little-endian float32 bytes.
func Unpack(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("packed vector length %d is not a multiple of 4", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}

func EncodeBase64(vec []float32) string {
	return base64.StdEncoding.EncodeToString(Pack(vec))
}

func DecodeBase64(s string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 vector: %w", err)
	}
	return Unpack(buf)
}

// MeanUpdate folds e into a running mean over count vectors and returns the
// mean over count+1. The accumulation happens in float64.
func MeanUpdate(centroid []float32, count int, e []float32) ([]float32, error) {
	if len(centroid) != len(e) {
		return nil, fmt.Errorf("%w: centroid %d, embedding %d", ErrDimensionMismatch, len(centroid), len(e))
	}
	if count < 0 {
		count = 0
	}
	n := float64(count)
	out := make([]float32, len(centroid))
	for i := range centroid {
		out[i] = float32((float64(centroid[i])*n + float64(e[i])) / (n + 1))
	}
	return out, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is empty,
// zero, or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SimilarityFromDistance converts a RediSearch COSINE distance to similarity.
func SimilarityFromDistance(distance float64) float64 {
	return 1 - distance
}
