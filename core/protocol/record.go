package protocol

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pyropy/udfs/core/constants"
)

var ErrMalformedRecord = errors.New("malformed list record")

// Record is one line of a node's list reply: a filename and the chunk
// indices that node holds for it.
type Record struct {
	Filename string
	Chunks   []int
}

// Encode renders "<filename> <idx> <idx> ...\r\n" with indices ascending.
func (r Record) Encode() string {
	chunks := append([]int(nil), r.Chunks...)
	sort.Ints(chunks)

	var b strings.Builder
	b.WriteString(r.Filename)
	for _, c := range chunks {
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(c))
	}
	b.WriteString(constants.RECORD_TERMINATOR)

	return b.String()
}

// ParseRecord parses a list record without its terminator. The first
// space separated token is the filename.
func ParseRecord(line string) (Record, error) {
	fields := strings.Fields(strings.TrimRight(line, "\r\n"))
	if len(fields) == 0 {
		return Record{}, ErrMalformedRecord
	}

	record := Record{
		Filename: fields[0],
		Chunks:   make([]int, 0, len(fields)-1),
	}

	for _, f := range fields[1:] {
		idx, err := strconv.Atoi(f)
		if err != nil || idx < 0 {
			return Record{}, fmt.Errorf("%w: chunk index %q", ErrMalformedRecord, f)
		}
		record.Chunks = append(record.Chunks, idx)
	}

	return record, nil
}
