package grid

import "fmt"

// Permutation reorders axes. A value p maps source axis p[i] to
// destination axis i, so applying p to a source shape yields
// dst[i] = src[p[i]]. The same vector is applied at every coordinate
// translation site; there is no per-ordering branching.
type Permutation []int

// NewPermutation validates that p is a permutation of 0..n-1.
func NewPermutation(p []int) (Permutation, error) {
	seen := make([]bool, len(p))
	for _, axis := range p {
		if axis < 0 || axis >= len(p) {
			return nil, fmt.Errorf("grid: axis %d out of range in permutation %v", axis, p)
		}
		if seen[axis] {
			return nil, fmt.Errorf("grid: duplicate axis %d in permutation %v", axis, p)
		}
		seen[axis] = true
	}
	return Permutation(append([]int(nil), p...)), nil
}

// Identity returns the identity permutation of n axes.
func Identity(n int) Permutation {
	p := make(Permutation, n)
	for i := range p {
		p[i] = i
	}
	return p
}

// TimeToFront moves the last axis to the front, converting a
// temporal-major layout such as [lat, lon, time] into a spatial-major
// [time, lat, lon] one.
func TimeToFront(n int) Permutation {
	p := make(Permutation, n)
	p[0] = n - 1
	for i := 1; i < n; i++ {
		p[i] = i - 1
	}
	return p
}

// TimeToBack moves the first axis to the back; the inverse of TimeToFront.
func TimeToBack(n int) Permutation {
	p := make(Permutation, n)
	for i := 0; i < n-1; i++ {
		p[i] = i + 1
	}
	p[n-1] = 0
	return p
}

// Apply permutes src into a new slice: out[i] = src[p[i]].
func (p Permutation) Apply(src []int) []int {
	out := make([]int, len(p))
	for i, axis := range p {
		out[i] = src[axis]
	}
	return out
}

// Inverse returns the permutation q with q[p[i]] = i.
func (p Permutation) Inverse() Permutation {
	q := make(Permutation, len(p))
	for i, axis := range p {
		q[axis] = i
	}
	return q
}

// IsIdentity reports whether p leaves the axis order unchanged.
func (p Permutation) IsIdentity() bool {
	for i, axis := range p {
		if axis != i {
			return false
		}
	}
	return true
}
