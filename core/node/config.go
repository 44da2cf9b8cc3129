package node

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/kelseyhightower/envconfig"
	"github.com/pyropy/udfs/core/protocol"
)

var ErrBadConfig = errors.New("invalid node configuration")

type Config struct {
	Server struct {
		Host string `envconfig:"NODE_HOST"`
		Port int    `envconfig:"NODE_PORT"`
	}
	Chunks struct {
		Path string `envconfig:"NODE_CHUNK_PATH"`
	}
	Protocol struct {
		Dialect         string `envconfig:"DFS_PROTOCOL" default:"native"`
		MaxCommandBytes int    `envconfig:"DFS_MAX_COMMAND_BYTES" default:"4096"`
		MaxChunkBytes   int    `envconfig:"DFS_MAX_CHUNK_BYTES" default:"1073741824"`
		MaxListBytes    int    `envconfig:"DFS_MAX_LIST_BYTES" default:"1048576"`
	}
	Log struct {
		Level string `envconfig:"NODE_LOG_LEVEL" default:"info"`
	}
}

func GetConfig() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings the node cannot start without.
func (c *Config) Validate() error {
	if c.Chunks.Path == "" {
		return fmt.Errorf("%w: storage directory is empty", ErrBadConfig)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrBadConfig, c.Server.Port)
	}
	if c.Protocol.MaxCommandBytes < 16 {
		return fmt.Errorf("%w: max command bytes %d", ErrBadConfig, c.Protocol.MaxCommandBytes)
	}
	if c.Protocol.MaxChunkBytes <= 0 || c.Protocol.MaxListBytes <= 0 {
		return fmt.Errorf("%w: size limits must be positive", ErrBadConfig)
	}
	if _, err := c.Dialect(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadConfig, err)
	}

	return nil
}

func (c *Config) Dialect() (protocol.Dialect, error) {
	return protocol.ParseDialect(c.Protocol.Dialect)
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
