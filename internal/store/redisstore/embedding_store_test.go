package redisstore

import (
	"math"
	"testing"
)

func TestPackUnpackVector(t *testing.T) {
	vectors := [][]float32{
		{},
		{0},
		{1.5, -2.25, 0.000001, 3e8},
		make([]float32, 128),
	}

	for _, vector := range vectors {
		packed := packVector(vector)
		if len(packed) != 4*len(vector) {
			t.Fatalf("packed %d floats into %d bytes", len(vector), len(packed))
		}

		unpacked := unpackVector(packed)
		if len(unpacked) != len(vector) {
			t.Fatalf("unpacked %d floats, want %d", len(unpacked), len(vector))
		}
		for i := range vector {
			if unpacked[i] != vector[i] {
				t.Errorf("element %d: %v != %v", i, unpacked[i], vector[i])
			}
		}
	}
}

func TestUnpackVectorIgnoresTrailingBytes(t *testing.T) {
	// A payload that is not a multiple of four decodes the complete floats
	// and drops the remainder.
	packed := append(packVector([]float32{1, 2}), 0xFF)
	if got := unpackVector(packed); len(got) != 2 {
		t.Errorf("decoded %d floats, want 2", len(got))
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    []float32
		b    []float32
		want float64
		tol  float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1, tol: 1e-9},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0, tol: 1e-9},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1, tol: 1e-9},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0, tol: 0},
		{name: "length mismatch", a: []float32{1}, b: []float32{1, 2}, want: 0, tol: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("CosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}
