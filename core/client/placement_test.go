package client

import (
	"bytes"
	"testing"

	"github.com/pyropy/udfs/core/constants"
	"github.com/pyropy/udfs/core/model"
)

func TestHash(t *testing.T) {
	tests := []struct {
		name   string
		hash   uint64
		bucket int
	}{
		{"", 5381, 1},
		{"a", 177670, 2},
		{"b.bin", 210705533390, 2},
		{"a.txt", 210704367572, 0},
		{"report.txt", 8246864397419608175, 3},
		{"some much longer file name that wraps.tar.gz", 17729902402384963312, 0},
	}

	for _, tt := range tests {
		if got := Hash(tt.name); got != tt.hash {
			t.Errorf("Hash(%q) = %d, want %d", tt.name, got, tt.hash)
		}
		if got := HashBucket(tt.name); got != tt.bucket {
			t.Errorf("HashBucket(%q) = %d, want %d", tt.name, got, tt.bucket)
		}
	}
}

func TestRouteBucketTwo(t *testing.T) {
	want := []model.Assignment{
		{Index: 0, Primary: 2, Secondary: 1},
		{Index: 1, Primary: 3, Secondary: 2},
		{Index: 2, Primary: 0, Secondary: 3},
		{Index: 3, Primary: 1, Secondary: 0},
	}

	for i, w := range want {
		if got := Route(2, i); got != w {
			t.Errorf("Route(2, %d) = %+v, want %+v", i, got, w)
		}
	}
}

func TestPlanGivesEveryNodeTwoChunks(t *testing.T) {
	for _, name := range []string{"", "a", "b.bin", "a.txt", "report.txt", "x"} {
		plan := Plan(name)
		if plan != Plan(name) {
			t.Fatalf("Plan(%q) is not deterministic", name)
		}

		held := make([]int, constants.NODE_COUNT)
		for i, a := range plan {
			if a.Index != i {
				t.Fatalf("Plan(%q)[%d].Index = %d", name, i, a.Index)
			}
			if a.Primary == a.Secondary {
				t.Fatalf("Plan(%q)[%d] places both replicas on node %d", name, i, a.Primary)
			}
			held[a.Primary]++
			held[a.Secondary]++
		}

		for node, n := range held {
			if n != constants.REPLICATION_FACTOR {
				t.Errorf("Plan(%q): node %d holds %d chunks, want 2", name, node, n)
			}
		}
	}
}

func TestSplitChunksRoundTrip(t *testing.T) {
	for size := 0; size <= 67; size++ {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i * 7)
		}

		chunks := SplitChunks("f", data)

		var joined []byte
		for i, c := range chunks {
			if c.Index != i || c.Filename != "f" {
				t.Fatalf("size %d: chunk %d = {%q %d}", size, i, c.Filename, c.Index)
			}
			joined = append(joined, c.Data...)
		}
		if !bytes.Equal(joined, data) {
			t.Fatalf("size %d: reassembled %v, want %v", size, joined, data)
		}

		longest, shortest := chunks[0].Size(), chunks[constants.CHUNK_COUNT-1].Size()
		if longest-shortest > 1 {
			t.Fatalf("size %d: chunk sizes differ by %d", size, longest-shortest)
		}
	}
}

func TestSplitChunksSizes(t *testing.T) {
	tests := []struct {
		size int
		want [constants.CHUNK_COUNT]int
	}{
		{0, [4]int{0, 0, 0, 0}},
		{1, [4]int{1, 0, 0, 0}},
		{3, [4]int{1, 1, 1, 0}},
		{4, [4]int{1, 1, 1, 1}},
		{10, [4]int{3, 3, 2, 2}},
	}

	for _, tt := range tests {
		chunks := SplitChunks("f", make([]byte, tt.size))
		var got [constants.CHUNK_COUNT]int
		for i, c := range chunks {
			got[i] = c.Size()
		}
		if got != tt.want {
			t.Errorf("size %d: chunk sizes %v, want %v", tt.size, got, tt.want)
		}
	}
}
