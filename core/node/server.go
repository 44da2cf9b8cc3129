package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pyropy/udfs/core/constants"
	"github.com/pyropy/udfs/core/protocol"
	"github.com/pyropy/udfs/lib/checksum"
	"github.com/pyropy/udfs/lib/cmap"
	"github.com/pyropy/udfs/lib/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Server accepts client connections and serves list/put/get/exit against
// a ChunkStore. Each connection runs in its own goroutine; the only state
// they share is the store on disk.
type Server struct {
	*ChunkStore

	Cfg     *Config
	dialect protocol.Dialect
	log     *zap.SugaredLogger

	conns *cmap.Map[uuid.UUID, net.Conn]
	wg    sync.WaitGroup
}

func NewServer(cfg *Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialect, err := cfg.Dialect()
	if err != nil {
		return nil, err
	}

	log, err := logger.NewAtLevel("node", cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: log level: %v", ErrBadConfig, err)
	}

	store, err := NewChunkStore(cfg.Chunks.Path)
	if err != nil {
		return nil, err
	}

	return &Server{
		ChunkStore: store,
		Cfg:        cfg,
		dialect:    dialect,
		log:        log,
		conns:      cmap.NewMap[uuid.UUID, net.Conn](),
	}, nil
}

// Serve accepts connections on l until ctx is cancelled, then closes the
// listener and every open connection and waits for their workers.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			l.Close()
		case <-stop:
		}
	}()

	s.log.Infow("startup", "status", "node accepting connections", "address", l.Addr().String(), "dialect", s.dialect.Name, "root", s.Root)

	for {
		nc, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.shutdown()
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				s.shutdown()
				return err
			}

			s.log.Warnw("accept", "error", err)
			continue
		}

		id := uuid.New()
		s.conns.Set(id, nc)
		s.wg.Add(1)

		go s.handleConn(id, nc)
	}
}

// OpenConnections reports how many client connections are being served.
func (s *Server) OpenConnections() int {
	return s.conns.Len()
}

func (s *Server) shutdown() {
	s.conns.Range(func(id uuid.UUID, nc net.Conn) bool {
		nc.Close()
		return true
	})
	s.wg.Wait()

	s.log.Infow("shutdown", "status", "node stopped")
}

func (s *Server) handleConn(id uuid.UUID, nc net.Conn) {
	defer s.wg.Done()
	defer s.conns.Delete(id)
	defer nc.Close()

	log := s.log.With("conn", id.String(), "remote", nc.RemoteAddr().String())
	log.Debugw("conn", "event", "accepted")

	conn := protocol.NewConn(nc, s.dialect)
	conn.SetLimits(s.Cfg.Protocol.MaxCommandBytes, s.Cfg.Protocol.MaxChunkBytes)

	for {
		cmd, err := conn.ReadCommand()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			log.Debugw("conn", "event", "peer disconnected")
			return
		case errors.Is(err, protocol.ErrEmptyCommand),
			errors.Is(err, protocol.ErrUnknownCommand),
			errors.Is(err, protocol.ErrMissingFilename):
			log.Warnw("command", "error", err)
			continue
		default:
			log.Warnw("conn", "event", "closing on protocol error", "error", err)
			return
		}

		if cmd.Verb == protocol.VerbExit {
			log.Debugw("conn", "event", "exit")
			return
		}

		if err := s.dispatch(log, conn, cmd); err != nil {
			log.Warnw("conn", "event", "closing on error", "command", string(cmd.Verb), "error", err)
			return
		}
	}
}

// dispatch runs one command. Returned errors end the connection; local
// storage failures are logged and swallowed.
func (s *Server) dispatch(log *zap.SugaredLogger, conn *protocol.Conn, cmd protocol.Command) error {
	switch cmd.Verb {
	case protocol.VerbPut:
		return s.handlePut(log, conn, cmd.Filename)
	case protocol.VerbGet:
		return s.handleGet(log, conn, cmd.Filename)
	case protocol.VerbList:
		return s.handleList(log, conn)
	default:
		return fmt.Errorf("%w: %s", protocol.ErrUnknownCommand, cmd.Verb)
	}
}

func (s *Server) handlePut(log *zap.SugaredLogger, conn *protocol.Conn, filename string) error {
	index, data, err := conn.ReadChunk()
	if err != nil {
		return err
	}
	if index < 0 || index >= constants.CHUNK_COUNT {
		return fmt.Errorf("%w: put chunk index %d", protocol.ErrMalformedFrame, index)
	}

	if log.Desugar().Core().Enabled(zapcore.DebugLevel) {
		log.Debugw("put", "file", filename, "chunk", index, "size", len(data), "digest", checksum.CalculateCheckSum(data))
	}

	err = s.WriteChunk(filename, index, data)
	if err != nil {
		log.Errorw("put", "file", filename, "chunk", index, "error", err)
		return nil
	}

	log.Infow("put", "file", filename, "chunk", index, "size", len(data))
	return nil
}

func (s *Server) handleGet(log *zap.SugaredLogger, conn *protocol.Conn, filename string) error {
	indices, err := s.ChunkIndices(filename)
	if err != nil {
		if !errors.Is(err, ErrFileDoesNotExist) {
			log.Warnw("get", "file", filename, "error", err)
		}
		return conn.WriteSentinel()
	}

	sent := 0
	for _, index := range indices {
		// An unterminated reply is read as at most REPLICATION_FACTOR frames.
		if !s.dialect.TerminatedGet && sent == constants.REPLICATION_FACTOR {
			log.Warnw("get", "file", filename, "event", "extra chunks not sent", "held", len(indices))
			break
		}

		data, err := s.ReadChunk(filename, index)
		if err != nil {
			log.Errorw("get", "file", filename, "chunk", index, "error", err)
			continue
		}

		if err := conn.WriteChunk(index, data); err != nil {
			return err
		}
		sent++
	}

	log.Infow("get", "file", filename, "chunks", sent)

	// A short unterminated reply still ends with the sentinel so the reader
	// never waits for a frame that is not coming.
	if sent < constants.REPLICATION_FACTOR || s.dialect.TerminatedGet {
		return conn.WriteSentinel()
	}

	return nil
}

func (s *Server) handleList(log *zap.SugaredLogger, conn *protocol.Conn) error {
	files, err := s.Files()
	if err != nil {
		log.Errorw("list", "error", err)
		files = nil
	}

	var buf strings.Builder
	count := 0

	for _, filename := range files {
		indices, err := s.ChunkIndices(filename)
		if err != nil {
			log.Warnw("list", "file", filename, "error", err)
			continue
		}

		record := protocol.Record{Filename: filename, Chunks: indices}.Encode()
		if buf.Len()+len(record) > s.Cfg.Protocol.MaxListBytes {
			log.Warnw("list", "file", filename, "event", "record omitted, reply size limit reached", "limit", s.Cfg.Protocol.MaxListBytes)
			continue
		}

		buf.WriteString(record)
		count++
	}

	log.Infow("list", "files", count)
	return conn.WriteCatalog(count, []byte(buf.String()))
}
