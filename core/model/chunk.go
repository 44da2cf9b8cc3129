package model

// FileChunk is one contiguous slice of a file, in flight between client and node.
type FileChunk struct {
	Filename string
	Index    int
	Data     []byte
}

func (c FileChunk) Size() int {
	return len(c.Data)
}

// Assignment is the pair of nodes a chunk index is stored on.
type Assignment struct {
	Index     int
	Primary   int
	Secondary int
}
