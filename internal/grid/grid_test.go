package grid

import (
	"reflect"
	"testing"
)

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("expected error for zero dimensions")
	}
	if _, err := New([]int{10, 0}, []int{5, 1}); err == nil {
		t.Error("expected error for non-positive extent")
	}
	if _, err := New([]int{10}, []int{11}); err == nil {
		t.Error("expected error for chunk extent larger than extent")
	}
	if _, err := New([]int{10, 10}, []int{5}); err == nil {
		t.Error("expected error for mismatched lengths")
	}
}

func TestCounts(t *testing.T) {
	g, err := New([]int{100, 10, 25}, []int{10, 10, 10})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if !reflect.DeepEqual(g.Counts(), []int{10, 1, 3}) {
		t.Errorf("expected counts [10 1 3], got %v", g.Counts())
	}
	if g.TotalChunks() != 30 {
		t.Errorf("expected 30 chunks, got %d", g.TotalChunks())
	}
}

func TestOrdinalRoundTrip(t *testing.T) {
	g, err := New([]int{100, 10, 25}, []int{10, 10, 10})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for ord := 0; ord < g.TotalChunks(); ord++ {
		coord := g.CoordAt(ord)
		if got := g.Ordinal(coord); got != ord {
			t.Fatalf("ordinal %d -> coord %v -> ordinal %d", ord, coord, got)
		}
	}
}

func TestLocate(t *testing.T) {
	g, err := New([]int{100, 10, 25}, []int{10, 10, 10})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	chunkCoord, local := g.Locate([]int{57, 3, 21})
	if !reflect.DeepEqual(chunkCoord, []int{5, 0, 2}) {
		t.Errorf("expected chunk [5 0 2], got %v", chunkCoord)
	}
	if !reflect.DeepEqual(local, []int{7, 3, 1}) {
		t.Errorf("expected local [7 3 1], got %v", local)
	}

	if g.Contains([]int{100, 0, 0}) {
		t.Error("coordinate at extent should be outside the grid")
	}
	if g.Contains([]int{-1, 0, 0}) {
		t.Error("negative coordinate should be outside the grid")
	}
}

func TestBoundaryChunkShape(t *testing.T) {
	// Extent 25 with chunk extent 10 gives chunks of 10, 10 and 5.
	g, err := New([]int{25}, []int{10})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	shapes := [][]int{{10}, {10}, {5}}
	for i, want := range shapes {
		got := g.ChunkShapeAt([]int{i})
		if !reflect.DeepEqual(got, want) {
			t.Errorf("chunk %d: expected shape %v, got %v", i, want, got)
		}
	}
	if fill := g.FillCount([]int{2}); fill != 5 {
		t.Errorf("expected fill count 5 for boundary chunk, got %d", fill)
	}
}

func TestStrides(t *testing.T) {
	if got := Strides([]int{4, 3, 2}); !reflect.DeepEqual(got, []int{6, 2, 1}) {
		t.Errorf("expected strides [6 2 1], got %v", got)
	}
}

func TestIterateRange(t *testing.T) {
	var visited [][]int
	err := IterateRange([]int{1, 0}, []int{3, 2}, func(coord []int) error {
		visited = append(visited, append([]int(nil), coord...))
		return nil
	})
	if err != nil {
		t.Fatalf("IterateRange failed: %v", err)
	}

	want := [][]int{{1, 0}, {1, 1}, {2, 0}, {2, 1}}
	if !reflect.DeepEqual(visited, want) {
		t.Errorf("expected %v, got %v", want, visited)
	}
}

func TestPermutation(t *testing.T) {
	if _, err := NewPermutation([]int{0, 0, 1}); err == nil {
		t.Error("expected error for duplicate axis")
	}
	if _, err := NewPermutation([]int{0, 3}); err == nil {
		t.Error("expected error for out-of-range axis")
	}

	p := TimeToFront(3)
	if !reflect.DeepEqual([]int(p), []int{2, 0, 1}) {
		t.Errorf("expected TimeToFront [2 0 1], got %v", p)
	}

	// [lat, lon, time] -> [time, lat, lon]
	shape := p.Apply([]int{10, 20, 100})
	if !reflect.DeepEqual(shape, []int{100, 10, 20}) {
		t.Errorf("expected [100 10 20], got %v", shape)
	}

	inv := p.Inverse()
	if !reflect.DeepEqual(inv.Apply(shape), []int{10, 20, 100}) {
		t.Errorf("inverse did not restore the original shape: %v", inv.Apply(shape))
	}

	back := TimeToBack(3)
	if !reflect.DeepEqual([]int(back), []int(p.Inverse())) {
		t.Errorf("TimeToBack should invert TimeToFront, got %v", back)
	}

	if !Identity(4).IsIdentity() {
		t.Error("Identity should report IsIdentity")
	}
	if p.IsIdentity() {
		t.Error("TimeToFront should not report IsIdentity")
	}
}

func TestCopyRegion(t *testing.T) {
	// Copy the 2x2 center of a 4x4 source into the top-left of a 3x3
	// destination, one byte per element.
	src := make([]byte, 16)
	for i := range src {
		src[i] = byte(i)
	}
	dst := make([]byte, 9)

	CopyRegion(dst, []int{3, 3}, []int{0, 0}, src, []int{4, 4}, []int{1, 1}, []int{2, 2}, 1)

	want := []byte{5, 6, 0, 9, 10, 0, 0, 0, 0}
	if !reflect.DeepEqual(dst, want) {
		t.Errorf("expected %v, got %v", want, dst)
	}
}
