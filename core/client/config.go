package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	fp "path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pyropy/udfs/core/constants"
	"github.com/pyropy/udfs/core/protocol"
)

// ManifestDisabled as DFC_MANIFEST_PATH turns the manifest store off.
const ManifestDisabled = "off"

var (
	ErrBadConfig   = errors.New("invalid client configuration")
	ErrBadEndpoint = errors.New("invalid node endpoint")
)

// Settings are the client's ambient settings, read from the environment.
type Settings struct {
	ConfigPath   string        `envconfig:"DFC_CONFIG"`
	OutputDir    string        `envconfig:"DFC_OUTPUT_DIR" default:"."`
	ManifestPath string        `envconfig:"DFC_MANIFEST_PATH"`
	ProbeAll     bool          `envconfig:"DFC_PROBE_ALL" default:"false"`
	DialTimeout  time.Duration `envconfig:"DFC_DIAL_TIMEOUT" default:"0s"`
	Protocol     string        `envconfig:"DFS_PROTOCOL" default:"native"`
	LogLevel     string        `envconfig:"DFC_LOG_LEVEL" default:"warn"`
}

// GetSettings processes the environment and fills the home directory
// based defaults.
func GetSettings() (*Settings, error) {
	var s Settings
	err := envconfig.Process("", &s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadConfig, err)
	}

	if s.ConfigPath == "" || s.ManifestPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadConfig, err)
		}

		if s.ConfigPath == "" {
			s.ConfigPath = fp.Join(home, "dfc.conf")
		}
		if s.ManifestPath == "" {
			s.ManifestPath = fp.Join(home, ".dfc", "manifest")
		}
	}

	return &s, nil
}

func (s *Settings) Dialect() (protocol.Dialect, error) {
	d, err := protocol.ParseDialect(s.Protocol)
	if err != nil {
		return protocol.Dialect{}, fmt.Errorf("%w: %v", ErrBadConfig, err)
	}

	return d, nil
}

func (s *Settings) ManifestEnabled() bool {
	return s.ManifestPath != "" && !strings.EqualFold(s.ManifestPath, ManifestDisabled)
}

// Endpoint is one "server <name> <host>:<port>" line. Err is set when the
// address could not be parsed; such a slot is treated as absent.
type Endpoint struct {
	Name string
	Addr string
	Err  error
}

// ReadConfig loads the endpoint file at path.
func ReadConfig(path string) ([constants.NODE_COUNT]Endpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return [constants.NODE_COUNT]Endpoint{}, fmt.Errorf("%w: %v", ErrBadConfig, err)
	}
	defer f.Close()

	return ParseConfig(f)
}

// ParseConfig reads exactly NODE_COUNT lines; anything after them is
// ignored. A short file or a line that does not start with "server" is
// fatal, a malformed address only marks that endpoint.
func ParseConfig(r io.Reader) ([constants.NODE_COUNT]Endpoint, error) {
	var endpoints [constants.NODE_COUNT]Endpoint

	scanner := bufio.NewScanner(r)
	for i := 0; i < constants.NODE_COUNT; i++ {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return endpoints, fmt.Errorf("%w: %v", ErrBadConfig, err)
			}
			return endpoints, fmt.Errorf("%w: expected %d server lines, got %d", ErrBadConfig, constants.NODE_COUNT, i)
		}

		line := strings.TrimRight(scanner.Text(), "\r")
		if !strings.HasPrefix(line, "server") {
			return endpoints, fmt.Errorf("%w: line %d: %q does not start with \"server\"", ErrBadConfig, i+1, line)
		}

		endpoints[i] = parseEndpoint(line)
	}

	return endpoints, nil
}

func parseEndpoint(line string) Endpoint {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return Endpoint{Err: fmt.Errorf("%w: %q", ErrBadEndpoint, line)}
	}

	e := Endpoint{Name: fields[1], Addr: fields[2]}

	host, port, err := net.SplitHostPort(e.Addr)
	if err != nil {
		e.Err = fmt.Errorf("%w: %v", ErrBadEndpoint, err)
		return e
	}
	if host == "" {
		e.Err = fmt.Errorf("%w: %q has no host", ErrBadEndpoint, e.Addr)
		return e
	}
	if p, err := strconv.Atoi(port); err != nil || p <= 0 || p > 65535 {
		e.Err = fmt.Errorf("%w: %q has a bad port", ErrBadEndpoint, e.Addr)
	}

	return e
}
