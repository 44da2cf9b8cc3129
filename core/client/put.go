package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	fp "path/filepath"
	"strings"

	"github.com/pyropy/udfs/core/model"
	"github.com/pyropy/udfs/lib/checksum"
	"go.uber.org/multierr"
)

var (
	ErrPutPreconditions = errors.New("put preconditions not met")
	ErrPutFailed        = errors.New("put failed")
)

// RemoteName is the name a local path is stored under: its base name.
// Names a node would refuse, or that could not be read back from a list
// reply, are rejected.
func RemoteName(path string) (string, error) {
	name := fp.Base(path)
	switch {
	case name == "." || name == ".." || name == string(fp.Separator):
		return "", fmt.Errorf("%w: %q has no file name", ErrPutPreconditions, path)
	case strings.HasPrefix(name, "."):
		return "", fmt.Errorf("%w: %q starts with a dot", ErrPutPreconditions, name)
	case strings.ContainsAny(name, " \t\r\n\\\x00"):
		return "", fmt.Errorf("%w: %q contains whitespace or a reserved character", ErrPutPreconditions, name)
	}

	return name, nil
}

// Put splits the file at path into four chunks and sends each to its
// primary and secondary node. Nothing is sent unless every node is
// connected. A failed send does not stop the remaining sends, but the
// file is reported as failed.
func (c *Client) Put(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name, err := RemoteName(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPutPreconditions, err)
	}

	if !c.Slots.Connected() {
		return fmt.Errorf("%w: not every node is connected", ErrPutPreconditions)
	}

	bucket := HashBucket(name)
	chunks := SplitChunks(name, data)

	var errs error
	for _, chunk := range chunks {
		a := Route(bucket, chunk.Index)
		for _, node := range []int{a.Primary, a.Secondary} {
			if err := c.Slots[node].put(chunk); err != nil {
				c.log.Errorw("put", "file", name, "chunk", chunk.Index, "node", node, "error", err)
				errs = multierr.Append(errs, fmt.Errorf("chunk %d: %w", chunk.Index, err))
				continue
			}
			c.log.Debugw("put", "file", name, "chunk", chunk.Index, "node", node, "size", chunk.Size())
		}
	}

	if errs != nil {
		return fmt.Errorf("%w: %s: %v", ErrPutFailed, name, errs)
	}

	c.log.Infow("put", "file", name, "size", len(data), "bucket", bucket)
	c.recordManifest(ctx, model.NewFileManifest(name, int64(len(data)), checksum.CalculateCheckSum(data), bucket))

	return nil
}

func (c *Client) recordManifest(ctx context.Context, m model.FileManifest) {
	if c.manifests == nil {
		return
	}

	if err := c.manifests.Put(ctx, m); err != nil {
		c.log.Warnw("manifest", "file", m.Filename, "error", err)
	}
}
