package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Dialect fixes the two wire details that differ between deployments: the
// byte order of frame integers and whether a get reply is terminated.
type Dialect struct {
	Name  string
	Order binary.ByteOrder

	// TerminatedGet makes the node close every non-empty get reply with a
	// sentinel frame, so a reply may carry any number of chunks. Without it
	// the reader relies on each node holding REPLICATION_FACTOR chunks.
	TerminatedGet bool
}

var (
	// DialectNative sends integers in host order with unterminated get
	// replies, so both ends must share an architecture.
	DialectNative = Dialect{
		Name:          "native",
		Order:         binary.NativeEndian,
		TerminatedGet: false,
	}

	// DialectPortable uses network byte order and terminated get replies.
	DialectPortable = Dialect{
		Name:          "portable",
		Order:         binary.BigEndian,
		TerminatedGet: true,
	}
)

func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DialectNative.Name:
		return DialectNative, nil
	case DialectPortable.Name:
		return DialectPortable, nil
	default:
		return Dialect{}, fmt.Errorf("unknown protocol dialect %q", name)
	}
}

func (d Dialect) String() string {
	return d.Name
}
