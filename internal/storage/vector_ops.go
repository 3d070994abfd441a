package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// normEpsilon is added to every vector norm so zero vectors do not divide by zero.
const normEpsilon = 1e-8

// serializeVector converts a float32 slice to a little-endian byte blob
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(blob))
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector, nil
}

// norm returns the euclidean norm of v plus normEpsilon
func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum) + normEpsilon
}

// cosineSimilarity computes the cosine similarity of a and b, with the
// epsilon-adjusted norms. qNorm is the precomputed norm of a.
func cosineSimilarity(a []float32, qNorm float64, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (qNorm * norm(b))
}

// candidate represents a stored row with its similarity score
type candidate struct {
	row   int
	score float64
}

// sortCandidates sorts candidates by score in descending order. Ties keep
// their original (insertion) order.
func sortCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
}
