package sqlitedb

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

func float32ArrayToBLOB(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	return buf
}

// vectorArg binds an empty vector as SQL NULL rather than a zero-length blob.
func vectorArg(vec []float32) any {
	if len(vec) == 0 {
		return nil
	}
	return float32ArrayToBLOB(vec)
}

func blobToFloat32Array(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4 : i*4+4]))
	}
	return vec, nil
}

// cosineSimilarity returns 0 for mismatched or zero-length vectors.
func cosineSimilarity(a, b []float32) float64 {
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

type scored[T any] struct {
	item  T
	score float64
}

// topK sorts by score descending and keeps the first k, stable on ties.
func topK[T any](items []scored[T], k int) []scored[T] {
	sort.SliceStable(items, func(i, j int) bool { return items[i].score > items[j].score })
	if k > 0 && len(items) > k {
		items = items[:k]
	}
	return items
}
