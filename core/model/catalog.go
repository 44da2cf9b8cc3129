package model

import (
	"sort"

	"github.com/pyropy/udfs/core/constants"
)

// CatalogEntry is the cross-node view of one filename.
type CatalogEntry struct {
	Filename string
	Chunks   map[int]struct{}
}

func NewCatalogEntry(filename string) *CatalogEntry {
	return &CatalogEntry{
		Filename: filename,
		Chunks:   map[int]struct{}{},
	}
}

func (e *CatalogEntry) Add(index int) {
	e.Chunks[index] = struct{}{}
}

// Complete reports whether every chunk index 0..CHUNK_COUNT-1 was observed.
func (e *CatalogEntry) Complete() bool {
	for i := 0; i < constants.CHUNK_COUNT; i++ {
		if _, ok := e.Chunks[i]; !ok {
			return false
		}
	}

	return true
}

// Indices returns the observed chunk indices in ascending order.
func (e *CatalogEntry) Indices() []int {
	out := make([]int, 0, len(e.Chunks))
	for i := range e.Chunks {
		out = append(out, i)
	}
	sort.Ints(out)

	return out
}

func (e *CatalogEntry) String() string {
	if e.Complete() {
		return e.Filename
	}

	return e.Filename + " [incomplete]"
}
