package node

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	fp "path/filepath"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrFileDoesNotExist = errors.New("file does not exist")
	ErrInvalidFilename  = errors.New("invalid filename")
)

// ChunkStore keeps chunks as <root>/<filename>/<chunk index>. The directory
// tree is the whole catalog; there is no separate index.
type ChunkStore struct {
	Root string
}

func NewChunkStore(root string) (*ChunkStore, error) {
	err := os.MkdirAll(root, 0o700)
	if err != nil {
		return nil, err
	}

	return &ChunkStore{Root: root}, nil
}

// ValidateFilename rejects names that would escape the store root or be
// hidden from listings.
func ValidateFilename(filename string) error {
	switch {
	case filename == "":
		return fmt.Errorf("%w: empty", ErrInvalidFilename)
	case isPseudoEntry(filename):
		return fmt.Errorf("%w: %q starts with a dot", ErrInvalidFilename, filename)
	case strings.ContainsAny(filename, `/\`), strings.ContainsRune(filename, 0):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidFilename, filename)
	}

	return nil
}

func GetChunkFilename(index int) string {
	return strconv.Itoa(index)
}

func (cs *ChunkStore) GetChunkPath(filename string, index int) string {
	return fp.Join(cs.Root, filename, GetChunkFilename(index))
}

// WriteChunk creates the filename directory if needed and replaces the chunk.
func (cs *ChunkStore) WriteChunk(filename string, index int, data []byte) error {
	if err := ValidateFilename(filename); err != nil {
		return err
	}

	err := os.MkdirAll(fp.Join(cs.Root, filename), 0o700)
	if err != nil {
		return err
	}

	return os.WriteFile(cs.GetChunkPath(filename, index), data, 0o600)
}

func (cs *ChunkStore) ReadChunk(filename string, index int) ([]byte, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}

	return os.ReadFile(cs.GetChunkPath(filename, index))
}

// ChunkIndices lists the chunk indices held for filename, ascending.
// Dot entries, directories and non-numeric names are skipped.
func (cs *ChunkStore) ChunkIndices(filename string) ([]int, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(fp.Join(cs.Root, filename))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrFileDoesNotExist
		}
		return nil, err
	}

	indices := make([]int, 0, len(entries))
	for _, e := range entries {
		if isPseudoEntry(e.Name()) || !e.Type().IsRegular() {
			continue
		}

		idx, err := strconv.Atoi(e.Name())
		if err != nil || idx < 0 {
			continue
		}

		indices = append(indices, idx)
	}

	sort.Ints(indices)
	return indices, nil
}

// Files lists every stored filename, ascending.
func (cs *ChunkStore) Files() ([]string, error) {
	entries, err := os.ReadDir(cs.Root)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if isPseudoEntry(e.Name()) || !e.IsDir() {
			continue
		}
		files = append(files, e.Name())
	}

	return files, nil
}

func isPseudoEntry(name string) bool {
	return strings.HasPrefix(name, ".")
}
