package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	fp "path/filepath"
	"strconv"
	"strings"

	ds "github.com/ipfs/go-datastore"
	"github.com/pyropy/udfs/core/constants"
	"github.com/pyropy/udfs/core/protocol"
	"github.com/pyropy/udfs/lib/checksum"
)

var ErrIncomplete = errors.New("file is incomplete")

// staging holds the chunks received so far for one get, one file per
// chunk index inside a scratch directory.
type staging struct {
	dir      string
	observed [constants.CHUNK_COUNT]bool
}

func (s *staging) write(index int, data []byte) error {
	if err := os.WriteFile(fp.Join(s.dir, strconv.Itoa(index)), data, 0o600); err != nil {
		return err
	}
	s.observed[index] = true

	return nil
}

func (s *staging) complete() bool {
	for _, ok := range s.observed {
		if !ok {
			return false
		}
	}

	return true
}

// assemble concatenates the staged chunks in index order into path.
func (s *staging) assemble(path string) (err error) {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	for i := 0; i < constants.CHUNK_COUNT; i++ {
		in, err := os.Open(fp.Join(s.dir, strconv.Itoa(i)))
		if err != nil {
			return err
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			return err
		}
	}

	return nil
}

// Get asks the connected nodes in ascending order for filename's chunks
// until all four are observed, then writes the file into OutputDir.
//
// By default a node that answers with the sentinel straight away ends the
// operation: the file is reported incomplete without asking the remaining
// nodes. With ProbeAll set such a node is skipped instead.
func (c *Client) Get(ctx context.Context, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if filename == "" || filename == "." || filename == ".." || strings.ContainsAny(filename, `/\`) {
		return fmt.Errorf("%w: %q is not a valid file name", ErrIncomplete, filename)
	}

	stage := &staging{dir: fp.Join(c.Settings.OutputDir, filename+".dir")}
	if err := os.MkdirAll(stage.dir, 0o700); err != nil {
		return fmt.Errorf("%w: staging: %v", ErrIncomplete, err)
	}
	defer os.RemoveAll(stage.dir)

	for _, slot := range c.Slots {
		if slot == nil || !slot.Connected() {
			continue
		}

		miss, err := c.fetch(slot, filename, stage)
		if err != nil {
			c.log.Errorw("get", "file", filename, "node", slot.Index, "error", err)
			slot.drop(err)
			return fmt.Errorf("%w: node %d: %v", ErrIncomplete, slot.Index, err)
		}

		if miss {
			c.log.Debugw("get", "file", filename, "node", slot.Index, "event", "not found")
			if !c.Settings.ProbeAll {
				return fmt.Errorf("%w: node %d does not have %s", ErrIncomplete, slot.Index, filename)
			}
			continue
		}

		if stage.complete() {
			break
		}
	}

	if !stage.complete() {
		return fmt.Errorf("%w: %s", ErrIncomplete, filename)
	}

	target := fp.Join(c.Settings.OutputDir, filename)
	if err := stage.assemble(target); err != nil {
		return fmt.Errorf("%w: assemble: %v", ErrIncomplete, err)
	}

	c.log.Infow("get", "file", filename, "path", target)
	c.verify(ctx, filename, target)

	return nil
}

// fetch sends get to one node and stages whatever it returns. miss is
// true when the node's first frame is the sentinel.
func (c *Client) fetch(slot *Slot, filename string, stage *staging) (miss bool, err error) {
	err = slot.conn.WriteCommand(protocol.Command{Verb: protocol.VerbGet, Filename: filename})
	if err != nil {
		return false, err
	}

	for frames := 0; ; frames++ {
		// An unterminated stream carries at most one frame per replica.
		if !c.dialect.TerminatedGet && frames == constants.REPLICATION_FACTOR {
			return false, nil
		}

		index, data, err := slot.conn.ReadChunk()
		if err != nil {
			return false, err
		}

		if index == constants.SENTINEL_CHUNK_INDEX {
			return frames == 0, nil
		}
		if index >= constants.CHUNK_COUNT {
			return false, fmt.Errorf("%w: chunk index %d", protocol.ErrMalformedFrame, index)
		}

		if err := stage.write(index, data); err != nil {
			return false, err
		}
		c.log.Debugw("get", "file", filename, "node", slot.Index, "chunk", index, "size", len(data))
	}
}

// verify compares the reconstructed file with the digest recorded when
// this client stored it. A mismatch is only reported.
func (c *Client) verify(ctx context.Context, filename, path string) {
	if c.manifests == nil {
		return
	}

	m, err := c.manifests.Get(ctx, filename)
	if errors.Is(err, ds.ErrNotFound) {
		return
	}
	if err != nil {
		c.log.Warnw("manifest", "file", filename, "error", err)
		return
	}

	digest, err := checksum.CalculateFileCheckSum(path)
	if err != nil {
		c.log.Warnw("verify", "file", filename, "error", err)
		return
	}

	if digest != m.Digest {
		c.log.Warnw("verify", "file", filename, "event", "digest mismatch", "want", m.Digest, "got", digest, "stored_at", m.StoredAt)
	}
}
