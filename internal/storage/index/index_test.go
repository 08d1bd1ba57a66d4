package index

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"testing"

	"github.com/yndnr/usagestats-go/internal/storage/bucket"
)

func fileAt(key int64) *bucket.File {
	return bucket.Open(bucket.FileName(key, false), nil)
}

func build(keys ...int64) *Index {
	x := New(nil)
	for _, k := range keys {
		x.Put(k, fileAt(k))
	}
	return x
}

func TestIndex_PutKeepsOrder(t *testing.T) {
	x := build(300, 100, 200, 100)
	if got, want := x.keys, []int64{100, 200, 300}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys = %v, want %v", got, want)
	}

	replacement := bucket.Open("replacement", nil)
	x.Put(200, replacement)
	if x.Size() != 3 {
		t.Fatalf("Size = %d, want 3", x.Size())
	}
	if x.Get(200) != replacement {
		t.Fatal("Put on existing key did not replace the file")
	}
	if x.Get(250) != nil {
		t.Fatal("Get(250) should be nil")
	}
}

func TestIndex_ClosestIndex(t *testing.T) {
	x := build(100, 200, 300)
	tests := []struct {
		t             int64
		before, after int
	}{
		{50, -1, 0},
		{100, 0, 0},
		{150, 0, 1},
		{200, 1, 1},
		{300, 2, 2},
		{301, 2, -1},
	}
	for _, tt := range tests {
		t.Run(strconv.FormatInt(tt.t, 10), func(t *testing.T) {
			if got := x.ClosestIndexOnOrBefore(tt.t); got != tt.before {
				t.Errorf("ClosestIndexOnOrBefore(%d) = %d, want %d", tt.t, got, tt.before)
			}
			if got := x.ClosestIndexOnOrAfter(tt.t); got != tt.after {
				t.Errorf("ClosestIndexOnOrAfter(%d) = %d, want %d", tt.t, got, tt.after)
			}
		})
	}

	empty := New(nil)
	if empty.ClosestIndexOnOrBefore(0) != -1 || empty.ClosestIndexOnOrAfter(0) != -1 {
		t.Fatal("empty index should return -1")
	}
}

func TestIndex_RemoveRange(t *testing.T) {
	x := build(1, 2, 3, 4, 5)
	x.RemoveRange(1, 3)
	if got, want := x.keys, []int64{1, 5}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys = %v, want %v", got, want)
	}
	if x.ValueAt(1).Name() != "5" {
		t.Fatalf("ValueAt(1) = %s, want 5", x.ValueAt(1).Name())
	}

	x.RemoveAt(0)
	if x.Size() != 1 || x.KeyAt(0) != 5 {
		t.Fatalf("after RemoveAt(0): %v", x.keys)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("RemoveRange out of bounds should panic")
		}
	}()
	x.RemoveRange(0, 3)
}

func TestIndex_Clear(t *testing.T) {
	x := build(1, 2)
	x.Clear()
	if x.Size() != 0 || x.Get(1) != nil {
		t.Fatalf("Clear left %v", x.keys)
	}
}

func TestIndex_Reindex(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0640); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	// File names are stale; the key comes from the content.
	write("100", "500")
	write("200-c", "200")
	write("300", "garbage")
	write("400.tmp", "400")
	write("600.bak", "600")

	key := func(f *bucket.File) (int64, error) {
		raw, err := os.ReadFile(f.Path())
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return 0, errors.New("unparseable")
		}
		return v, nil
	}

	x := build(999)
	skipped, err := x.Reindex(dir, nil, key)
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if skipped != 1 {
		t.Fatalf("skipped = %d, want 1", skipped)
	}
	if got, want := x.keys, []int64{200, 500}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys = %v, want %v", got, want)
	}
	if x.Get(500).Name() != "100" {
		t.Fatalf("Get(500) = %s, want file 100", x.Get(500).Name())
	}
	if !x.Get(200).CheckedIn() {
		t.Fatal("Get(200) should be checked in")
	}

	if _, err := x.Reindex(filepath.Join(dir, "missing"), nil, key); err != nil {
		t.Fatalf("Reindex(missing) err = %v", err)
	}
	if x.Size() != 0 {
		t.Fatalf("Reindex(missing) left %v", x.keys)
	}
}
