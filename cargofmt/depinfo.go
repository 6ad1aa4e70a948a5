// Package cargofmt parses and reconstructs the compiler-metadata file
// formats that embed machine-local paths: dep-info files, build-script
// stdout, build-script OUT_DIR pointers, and (in fingerprint.go's sibling
// package) fingerprints. Every embedded path is run through package path
// so it round-trips across machines. Grounded on cargo/metadata.rs and
// cargo/build_script.rs in the original implementation.
package cargofmt

import (
	"encoding/json"
	"fmt"
	"strings"

	hpath "github.com/attunehq/hurry/path"
)

// DepInfoLine is one non-blank, non-comment line of a dep-info file: an
// output path followed by the input paths it depends on.
type DepInfoLine struct {
	Output hpath.QualifiedPath
	Inputs []hpath.QualifiedPath
}

// DepInfo is the parsed, portable form of a `.d` dep-info file: an ordered
// sequence of lines, each either a dependency line, a blank line, or a
// comment. Blank lines and comments are preserved verbatim so reconstruct
// round-trips modulo whitespace normalization, per spec.
type DepInfo struct {
	entries []depInfoEntry
}

type depInfoEntryKind int

const (
	depInfoEntryLine depInfoEntryKind = iota
	depInfoEntryBlank
	depInfoEntryComment
)

type depInfoEntry struct {
	kind    depInfoEntryKind
	line    DepInfoLine
	comment string
}

// ParseDepInfo parses raw dep-info bytes against the given roots.
func ParseDepInfo(content string, roots hpath.Roots) (DepInfo, error) {
	var d DepInfo
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimRight(raw, "\r")
		switch {
		case strings.TrimSpace(line) == "":
			d.entries = append(d.entries, depInfoEntry{kind: depInfoEntryBlank})
		case strings.HasPrefix(strings.TrimSpace(line), "#"):
			d.entries = append(d.entries, depInfoEntry{kind: depInfoEntryComment, comment: line})
		default:
			parsed, err := parseDepInfoLine(line, roots)
			if err != nil {
				return DepInfo{}, fmt.Errorf("parse dep-info line %q: %w", line, err)
			}
			d.entries = append(d.entries, depInfoEntry{kind: depInfoEntryLine, line: parsed})
		}
	}
	return d, nil
}

func parseDepInfoLine(line string, roots hpath.Roots) (DepInfoLine, error) {
	output, rest, ok := strings.Cut(line, ":")
	if !ok {
		return DepInfoLine{}, fmt.Errorf("missing ':' separator")
	}
	outQP, err := hpath.Classify(strings.TrimSpace(output), roots)
	if err != nil {
		return DepInfoLine{}, err
	}

	var inputs []hpath.QualifiedPath
	for _, f := range strings.Fields(rest) {
		qp, err := hpath.Classify(f, roots)
		if err != nil {
			return DepInfoLine{}, err
		}
		inputs = append(inputs, qp)
	}
	return DepInfoLine{Output: outQP, Inputs: inputs}, nil
}

// Reconstruct rebuilds the dep-info file's text against the given roots.
func (d DepInfo) Reconstruct(roots hpath.Roots) (string, error) {
	var b strings.Builder
	for i, e := range d.entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch e.kind {
		case depInfoEntryBlank:
		case depInfoEntryComment:
			b.WriteString(e.comment)
		case depInfoEntryLine:
			out, err := hpath.Reconstruct(e.line.Output, roots)
			if err != nil {
				return "", err
			}
			b.WriteString(out)
			b.WriteByte(':')
			for _, in := range e.line.Inputs {
				inStr, err := hpath.Reconstruct(in, roots)
				if err != nil {
					return "", err
				}
				b.WriteByte(' ')
				b.WriteString(inStr)
			}
		}
	}
	return b.String(), nil
}

// Lines returns the parsed dependency lines, skipping blanks and comments.
func (d DepInfo) Lines() []DepInfoLine {
	var lines []DepInfoLine
	for _, e := range d.entries {
		if e.kind == depInfoEntryLine {
			lines = append(lines, e.line)
		}
	}
	return lines
}

// wireEntry is the JSON-portable form of one depInfoEntry, used as the
// object content stored in CAS so a DepInfo round-trips across machines
// without re-parsing machine-local path strings.
type wireEntry struct {
	Kind    string               `json:"kind"`
	Output  *hpath.QualifiedPath `json:"output,omitempty"`
	Inputs  []hpath.QualifiedPath `json:"inputs,omitempty"`
	Comment string               `json:"comment,omitempty"`
}

func (d DepInfo) MarshalJSON() ([]byte, error) {
	wire := make([]wireEntry, len(d.entries))
	for i, e := range d.entries {
		switch e.kind {
		case depInfoEntryBlank:
			wire[i] = wireEntry{Kind: "blank"}
		case depInfoEntryComment:
			wire[i] = wireEntry{Kind: "comment", Comment: e.comment}
		case depInfoEntryLine:
			out := e.line.Output
			wire[i] = wireEntry{Kind: "line", Output: &out, Inputs: e.line.Inputs}
		}
	}
	return json.Marshal(wire)
}

func (d *DepInfo) UnmarshalJSON(data []byte) error {
	var wire []wireEntry
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	entries := make([]depInfoEntry, len(wire))
	for i, w := range wire {
		switch w.Kind {
		case "blank":
			entries[i] = depInfoEntry{kind: depInfoEntryBlank}
		case "comment":
			entries[i] = depInfoEntry{kind: depInfoEntryComment, comment: w.Comment}
		case "line":
			entries[i] = depInfoEntry{kind: depInfoEntryLine, line: DepInfoLine{Output: *w.Output, Inputs: w.Inputs}}
		default:
			return fmt.Errorf("unknown dep-info wire entry kind %q", w.Kind)
		}
	}
	d.entries = entries
	return nil
}
