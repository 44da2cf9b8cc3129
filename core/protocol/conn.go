package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/pyropy/udfs/core/constants"
)

var (
	ErrCommandTooLong = errors.New("command exceeds maximum size")
	ErrRecordTooLong  = errors.New("list record exceeds maximum size")
	ErrMalformedFrame = errors.New("malformed chunk frame")
)

// Conn frames commands, chunks and list replies over one byte stream.
// All reads go through a single buffered reader, so a Conn must own the
// read side of the stream for its whole life.
type Conn struct {
	r       *bufio.Reader
	w       io.Writer
	closer  io.Closer
	dialect Dialect

	maxCommandBytes int
	maxChunkBytes   int
}

// NewConn wraps rw. If rw is also an io.Closer, Close closes it.
func NewConn(rw io.ReadWriter, dialect Dialect) *Conn {
	c := &Conn{
		r:               bufio.NewReader(rw),
		w:               rw,
		dialect:         dialect,
		maxCommandBytes: constants.DEFAULT_MAX_COMMAND_BYTES,
		maxChunkBytes:   constants.DEFAULT_MAX_CHUNK_BYTES,
	}

	if closer, ok := rw.(io.Closer); ok {
		c.closer = closer
	}

	return c
}

// SetLimits overrides the maximum command/record line and chunk payload
// sizes. Non-positive values keep the current limit.
func (c *Conn) SetLimits(maxCommandBytes, maxChunkBytes int) {
	if maxCommandBytes > 0 {
		c.maxCommandBytes = maxCommandBytes
	}
	if maxChunkBytes > 0 {
		c.maxChunkBytes = maxChunkBytes
	}
}

func (c *Conn) Dialect() Dialect {
	return c.dialect
}

func (c *Conn) Close() error {
	if c.closer == nil {
		return nil
	}

	return c.closer.Close()
}

// WriteCommand sends one command frame.
func (c *Conn) WriteCommand(cmd Command) error {
	return c.writeFull(cmd.Encode())
}

// ReadCommand reads up to and including the command terminator and parses
// the line. A peer that disconnects before sending anything yields io.EOF.
func (c *Conn) ReadCommand() (Command, error) {
	line, err := c.readUntil([]byte(constants.COMMAND_TERMINATOR), c.maxCommandBytes, ErrCommandTooLong)
	if err != nil {
		return Command{}, err
	}

	return ParseCommand(line)
}

// WriteChunk sends index, payload length and payload.
func (c *Conn) WriteChunk(index int, data []byte) error {
	if index < 0 {
		return fmt.Errorf("%w: negative chunk index %d", ErrMalformedFrame, index)
	}
	if len(data) > math.MaxInt32 {
		return fmt.Errorf("%w: payload of %d bytes", ErrMalformedFrame, len(data))
	}

	header := make([]byte, 8)
	c.dialect.Order.PutUint32(header[0:4], uint32(int32(index)))
	c.dialect.Order.PutUint32(header[4:8], uint32(int32(len(data))))

	if err := c.writeFull(header); err != nil {
		return err
	}

	return c.writeFull(data)
}

// WriteSentinel sends the bare -1 chunk index.
func (c *Conn) WriteSentinel() error {
	return c.WriteInt32(constants.SENTINEL_CHUNK_INDEX)
}

// ReadChunk reads one chunk frame. For the sentinel it returns
// SENTINEL_CHUNK_INDEX and nil data; no length or payload is consumed.
func (c *Conn) ReadChunk() (int, []byte, error) {
	index, err := c.ReadInt32()
	if err != nil {
		return 0, nil, err
	}

	if index == constants.SENTINEL_CHUNK_INDEX {
		return index, nil, nil
	}
	if index < 0 {
		return 0, nil, fmt.Errorf("%w: chunk index %d", ErrMalformedFrame, index)
	}

	size, err := c.ReadInt32()
	if err != nil {
		return 0, nil, unexpected(err)
	}
	if size < 0 || size > c.maxChunkBytes {
		return 0, nil, fmt.Errorf("%w: payload length %d", ErrMalformedFrame, size)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(c.r, data); err != nil {
		return 0, nil, unexpected(err)
	}

	return index, data, nil
}

// WriteCatalog sends the record count followed by the concatenated records.
func (c *Conn) WriteCatalog(count int, records []byte) error {
	if err := c.WriteInt32(count); err != nil {
		return err
	}

	return c.writeFull(records)
}

// ReadCount reads a non-negative int32, as sent before list records.
func (c *Conn) ReadCount() (int, error) {
	n, err := c.ReadInt32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: record count %d", ErrMalformedFrame, n)
	}

	return n, nil
}

// ReadRecord reads and parses one "\r\n" terminated list record.
func (c *Conn) ReadRecord() (Record, error) {
	line, err := c.readUntil([]byte(constants.RECORD_TERMINATOR), c.maxCommandBytes, ErrRecordTooLong)
	if err != nil {
		return Record{}, unexpected(err)
	}

	return ParseRecord(line)
}

func (c *Conn) WriteInt32(v int) error {
	b := make([]byte, 4)
	c.dialect.Order.PutUint32(b, uint32(int32(v)))

	return c.writeFull(b)
}

func (c *Conn) ReadInt32() (int, error) {
	b := make([]byte, 4)
	if _, err := io.ReadFull(c.r, b); err != nil {
		return 0, err
	}

	return int(int32(c.dialect.Order.Uint32(b))), nil
}

// writeFull loops until every byte is written; a short write without an
// error is retried rather than treated as a failure.
func (c *Conn) writeFull(b []byte) error {
	for len(b) > 0 {
		n, err := c.w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}

	return nil
}

// readUntil consumes bytes up to and including term. The returned line
// excludes term. A line of exactly limit bytes, term included, is accepted;
// reaching limit bytes without term returns tooLong.
func (c *Conn) readUntil(term []byte, limit int, tooLong error) (string, error) {
	buf := make([]byte, 0, 64)

	for {
		b, err := c.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(buf) > 0 {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}

		buf = append(buf, b)
		if bytes.HasSuffix(buf, term) {
			return string(buf[:len(buf)-len(term)]), nil
		}

		if len(buf) >= limit {
			return "", tooLong
		}
	}
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}

	return err
}
