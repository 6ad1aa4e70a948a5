package cmd

import (
	"fmt"
	"io"
)

type Format string

const (
	Human Format = "human"
	Plain Format = "plain"
	JSON  Format = "json"
	YAML  Format = "yaml"
)

// Formatter is any structured CLI result that can render itself in each
// of the supported output formats.
type Formatter interface {
	Human(io.Writer) error
	Plain(io.Writer) error
	JSON(io.Writer) error
	YAML(io.Writer) error
}

// write renders s in the given format, defaulting to an error on an
// unrecognized name rather than silently falling back to human output.
func write(out io.Writer, s Formatter, formatName string) error {
	switch Format(formatName) {
	case Human, "":
		return s.Human(out)
	case Plain:
		return s.Plain(out)
	case JSON:
		return s.JSON(out)
	case YAML:
		return s.YAML(out)
	default:
		return fmt.Errorf("format not recognized: %v", formatName)
	}
}
