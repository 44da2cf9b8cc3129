package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pyropy/udfs/core/constants"
)

type Verb string

const (
	VerbList Verb = "list"
	VerbPut  Verb = "put"
	VerbGet  Verb = "get"
	VerbExit Verb = "exit"
)

var (
	ErrEmptyCommand    = errors.New("empty command")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrMissingFilename = errors.New("command requires a filename")
)

// Command is one parsed command frame.
type Command struct {
	Verb     Verb
	Filename string
}

// ParseCommand parses a command line with its terminator already removed.
// The verb is matched case-insensitively. The run of spaces after it is a
// separator; the remaining bytes are the filename, kept verbatim.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimLeft(line, " ")
	if line == "" {
		return Command{}, ErrEmptyCommand
	}

	word, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimLeft(rest, " ")
	verb := Verb(strings.ToLower(word))

	switch verb {
	case VerbList, VerbExit:
		return Command{Verb: verb}, nil
	case VerbPut, VerbGet:
		if rest == "" {
			return Command{}, fmt.Errorf("%s: %w", verb, ErrMissingFilename)
		}
		return Command{Verb: verb, Filename: rest}, nil
	default:
		return Command{}, fmt.Errorf("%q: %w", word, ErrUnknownCommand)
	}
}

// Encode renders the command in wire form, terminator included.
func (c Command) Encode() []byte {
	var b strings.Builder
	b.WriteString(string(c.Verb))
	if c.Filename != "" {
		b.WriteByte(' ')
		b.WriteString(c.Filename)
	}
	b.WriteString(constants.COMMAND_TERMINATOR)

	return []byte(b.String())
}

func (c Command) String() string {
	if c.Filename == "" {
		return string(c.Verb)
	}

	return string(c.Verb) + " " + c.Filename
}
