package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pyropy/udfs/core/constants"
	"github.com/pyropy/udfs/core/model"
	"github.com/pyropy/udfs/core/protocol"
	"go.uber.org/zap"
)

var ErrNodeAbsent = errors.New("node is not connected")

// Slot is the client's view of one configured node. A slot without a
// connection is absent and records why in Err.
type Slot struct {
	Index    int
	Endpoint Endpoint
	Err      error

	conn *protocol.Conn
}

func (s *Slot) Connected() bool {
	return s.conn != nil
}

// drop closes the connection after a transport failure; the stream can
// no longer be trusted to be frame aligned.
func (s *Slot) drop(err error) {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.Err = err
}

func (s *Slot) put(chunk model.FileChunk) error {
	if !s.Connected() {
		return fmt.Errorf("node %d: %w", s.Index, ErrNodeAbsent)
	}

	err := s.conn.WriteCommand(protocol.Command{Verb: protocol.VerbPut, Filename: chunk.Filename})
	if err == nil {
		err = s.conn.WriteChunk(chunk.Index, chunk.Data)
	}
	if err != nil {
		s.drop(err)
		return fmt.Errorf("node %d: %w", s.Index, err)
	}

	return nil
}

type Slots [constants.NODE_COUNT]*Slot

// Dial connects to every endpoint in order. Failures leave the slot
// absent; Dial itself never fails.
func Dial(ctx context.Context, endpoints [constants.NODE_COUNT]Endpoint, dialect protocol.Dialect, timeout time.Duration, log *zap.SugaredLogger) Slots {
	var slots Slots
	dialer := net.Dialer{Timeout: timeout}

	for i, e := range endpoints {
		slot := &Slot{Index: i, Endpoint: e}
		slots[i] = slot

		if e.Err != nil {
			slot.Err = e.Err
			log.Warnw("dial", "node", i, "name", e.Name, "error", e.Err)
			continue
		}

		nc, err := dialer.DialContext(ctx, "tcp", e.Addr)
		if err != nil {
			slot.Err = err
			log.Warnw("dial", "node", i, "name", e.Name, "address", e.Addr, "error", err)
			continue
		}

		slot.conn = protocol.NewConn(nc, dialect)
		log.Debugw("dial", "node", i, "name", e.Name, "address", e.Addr)
	}

	return slots
}

// Connected reports whether every slot holds a live connection.
func (s Slots) Connected() bool {
	for _, slot := range s {
		if slot == nil || !slot.Connected() {
			return false
		}
	}

	return true
}

// Close sends exit to every connected node and closes the connections.
func (s Slots) Close() {
	for _, slot := range s {
		if slot == nil || !slot.Connected() {
			continue
		}

		_ = slot.conn.WriteCommand(protocol.Command{Verb: protocol.VerbExit})
		slot.conn.Close()
		slot.conn = nil
	}
}
