package constants

const (
	// NODE_COUNT is the fixed number of storage nodes.
	NODE_COUNT = 4
	// CHUNK_COUNT is the number of chunks every file is split into.
	CHUNK_COUNT = 4
	// REPLICATION_FACTOR is the number of nodes holding each chunk.
	REPLICATION_FACTOR = 2

	// SENTINEL_CHUNK_INDEX marks "no such file" (and, in the portable
	// dialect, the end of a get stream).
	SENTINEL_CHUNK_INDEX = -1

	COMMAND_TERMINATOR = "\r\n\r\n"
	RECORD_TERMINATOR  = "\r\n"

	DEFAULT_MAX_COMMAND_BYTES = 4096
	DEFAULT_MAX_CHUNK_BYTES   = 1 << 30
	DEFAULT_MAX_LIST_BYTES    = 1 << 20
)
