package column

import "testing"

func TestFixedColumnSlice(t *testing.T) {
	c := NewInt64Column([]int64{10, 11, 12, 13, 14})

	full, err := c.Slice(0, c.Len())
	if err != nil {
		t.Fatalf("slice(0,len) should not fail: %v", err)
	}
	fc := full.(*FixedColumn[int64])
	for i, v := range c.Data {
		if fc.Data[i] != v {
			t.Errorf("slice(0,len) element %d = %v, want %v", i, fc.Data[i], v)
		}
	}

	mid, err := c.Slice(1, 2)
	if err != nil {
		t.Fatalf("slice(1,2) should not fail: %v", err)
	}
	if mid.Len() != 2 {
		t.Errorf("slice(1,2) len = %d, want 2", mid.Len())
	}
	midVals := mid.(*FixedColumn[int64]).Data
	if midVals[0] != 11 || midVals[1] != 12 {
		t.Errorf("slice(1,2) = %v, want [11 12]", midVals)
	}
}

func TestFixedColumnSliceOutOfBounds(t *testing.T) {
	c := NewInt64Column([]int64{1, 2, 3})

	if _, err := c.Slice(2, 5); err == nil {
		t.Error("slice(2,5) on a 3-element column should fail")
	}
	if _, err := c.Slice(-1, 1); err == nil {
		t.Error("slice(-1,1) should fail")
	}
}

func TestFixedColumnAppendAnyMismatch(t *testing.T) {
	c := NewInt64Column(nil)
	if err := c.AppendAny("not an int64"); err == nil {
		t.Error("AppendAny with wrong type should fail with a type mismatch error")
	}
	if err := c.AppendAny(int64(5)); err != nil {
		t.Errorf("AppendAny with correct type should succeed, got %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after one successful append", c.Len())
	}
}

func TestStringColumnSlice(t *testing.T) {
	c := NewStringColumn([]string{"a", "b", "c"})
	s, err := c.Slice(1, 2)
	if err != nil {
		t.Fatalf("slice should not fail: %v", err)
	}
	got := s.(*StringColumn).Data
	if got[0] != "b" || got[1] != "c" {
		t.Errorf("slice = %v, want [b c]", got)
	}
}

func TestArrayColumnSlice(t *testing.T) {
	elem := NewInt64Column([]int64{1, 2, 3, 4, 5, 6})
	// rows: [1,2] [3] [4,5,6]
	arr := NewArrayColumn(elem, []int{0, 2, 3, 6})

	if arr.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", arr.Len())
	}

	sliced, err := arr.Slice(1, 2)
	if err != nil {
		t.Fatalf("slice should not fail: %v", err)
	}
	sa := sliced.(*ArrayColumn)
	if sa.Len() != 2 {
		t.Errorf("sliced Len() = %d, want 2", sa.Len())
	}
	innerVals := sa.Elem.(*FixedColumn[int64]).Data
	if len(innerVals) != 4 {
		t.Errorf("sliced inner len = %d, want 4", len(innerVals))
	}
}
