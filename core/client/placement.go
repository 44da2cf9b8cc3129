package client

import (
	"github.com/pyropy/udfs/core/constants"
	"github.com/pyropy/udfs/core/model"
)

// Hash is djb2 over the raw bytes of name with 64-bit wraparound.
func Hash(name string) uint64 {
	var h uint64 = 5381
	for i := 0; i < len(name); i++ {
		h = h*33 + uint64(name[i])
	}

	return h
}

func HashBucket(name string) int {
	return int(Hash(name) % constants.NODE_COUNT)
}

// Route places chunk index on (index+bucket) mod N and on the node
// preceding it, so every node holds exactly two of a file's four chunks.
func Route(bucket, index int) model.Assignment {
	primary := (index + bucket) % constants.NODE_COUNT
	secondary := (primary + constants.NODE_COUNT - 1) % constants.NODE_COUNT

	return model.Assignment{
		Index:     index,
		Primary:   primary,
		Secondary: secondary,
	}
}

// Plan returns the assignment of every chunk index of filename.
func Plan(filename string) [constants.CHUNK_COUNT]model.Assignment {
	var plan [constants.CHUNK_COUNT]model.Assignment
	bucket := HashBucket(filename)
	for i := range plan {
		plan[i] = Route(bucket, i)
	}

	return plan
}

// SplitChunks cuts data into CHUNK_COUNT contiguous chunks. The first
// len(data)%CHUNK_COUNT chunks are one byte longer than the rest.
func SplitChunks(filename string, data []byte) [constants.CHUNK_COUNT]model.FileChunk {
	var chunks [constants.CHUNK_COUNT]model.FileChunk

	chunkSize := len(data)/constants.CHUNK_COUNT + 1
	offsetChunks := len(data) % constants.CHUNK_COUNT

	start := 0
	for i := range chunks {
		n := chunkSize - 1
		if i < offsetChunks {
			n = chunkSize
		}

		chunks[i] = model.FileChunk{
			Filename: filename,
			Index:    i,
			Data:     data[start : start+n : start+n],
		}
		start += n
	}

	return chunks
}
