package client

import (
	"context"
	"fmt"

	"github.com/pyropy/udfs/core/constants"
	"github.com/pyropy/udfs/core/protocol"
	"github.com/pyropy/udfs/lib/logger"
	"go.uber.org/zap"
)

// Client drives list/put/get against the four configured nodes. It is
// strictly sequential and must not be shared between goroutines.
type Client struct {
	Settings *Settings
	Slots    Slots

	dialect   protocol.Dialect
	manifests *ManifestStore
	log       *zap.SugaredLogger
}

// NewClient dials every endpoint. Unreachable nodes leave absent slots;
// only bad settings make it fail. A manifest store that cannot be opened
// is logged and left disabled.
func NewClient(ctx context.Context, s *Settings, endpoints [constants.NODE_COUNT]Endpoint) (*Client, error) {
	dialect, err := s.Dialect()
	if err != nil {
		return nil, err
	}

	log, err := logger.NewAtLevel("client", s.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: log level: %v", ErrBadConfig, err)
	}

	c := &Client{
		Settings: s,
		dialect:  dialect,
		log:      log,
	}

	if s.ManifestEnabled() {
		c.manifests, err = NewManifestStore(s.ManifestPath)
		if err != nil {
			log.Warnw("manifest", "path", s.ManifestPath, "error", err)
			c.manifests = nil
		}
	}

	c.Slots = Dial(ctx, endpoints, dialect, s.DialTimeout, log)

	return c, nil
}

// Close says exit to every connected node and releases the manifest store.
func (c *Client) Close() error {
	c.Slots.Close()
	_ = c.log.Sync()

	if c.manifests != nil {
		return c.manifests.Close()
	}

	return nil
}
