package cargofmt

import (
	"encoding/json"
	"strings"

	hpath "github.com/attunehq/hurry/path"
)

// recognizedDirectives is the set of build-script stdout directive keys
// whose value is a path and must be run through the path classifier.
// Build scripts emit these prefixed with "cargo:" (e.g.
// "cargo:rerun-if-changed=build.rs"); currently only rerun-if-changed
// embeds a path, other cargo:rustc-* directives pass through opaquely.
var recognizedDirectives = map[string]bool{
	"cargo:rerun-if-changed": true,
}

// BuildScriptOutput is the parsed, portable form of a build script's
// captured stdout: an ordered sequence of lines, each either a recognized
// key=path directive or an opaque passthrough string.
type BuildScriptOutput struct {
	lines []buildScriptLine
}

type buildScriptLine struct {
	opaque string
	isPath bool
	key    string
	path   hpath.QualifiedPath
}

// ParseBuildScriptOutput parses raw build-script stdout against roots.
func ParseBuildScriptOutput(content string, roots hpath.Roots) (BuildScriptOutput, error) {
	var out BuildScriptOutput
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if ok && recognizedDirectives[key] {
			qp, err := hpath.Classify(value, roots)
			if err != nil {
				return BuildScriptOutput{}, err
			}
			out.lines = append(out.lines, buildScriptLine{isPath: true, key: key, path: qp})
			continue
		}
		out.lines = append(out.lines, buildScriptLine{opaque: line})
	}
	return out, nil
}

// Reconstruct rebuilds the build-script stdout text against roots.
func (b BuildScriptOutput) Reconstruct(roots hpath.Roots) (string, error) {
	var sb strings.Builder
	for i, l := range b.lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if l.isPath {
			p, err := hpath.Reconstruct(l.path, roots)
			if err != nil {
				return "", err
			}
			sb.WriteString(l.key)
			sb.WriteByte('=')
			sb.WriteString(p)
			continue
		}
		sb.WriteString(l.opaque)
	}
	return sb.String(), nil
}

type buildScriptWireLine struct {
	Opaque string               `json:"opaque,omitempty"`
	Key    string               `json:"key,omitempty"`
	Path   *hpath.QualifiedPath `json:"path,omitempty"`
}

func (b BuildScriptOutput) MarshalJSON() ([]byte, error) {
	wire := make([]buildScriptWireLine, len(b.lines))
	for i, l := range b.lines {
		if l.isPath {
			p := l.path
			wire[i] = buildScriptWireLine{Key: l.key, Path: &p}
			continue
		}
		wire[i] = buildScriptWireLine{Opaque: l.opaque}
	}
	return json.Marshal(wire)
}

func (b *BuildScriptOutput) UnmarshalJSON(data []byte) error {
	var wire []buildScriptWireLine
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	lines := make([]buildScriptLine, len(wire))
	for i, w := range wire {
		if w.Path != nil {
			lines[i] = buildScriptLine{isPath: true, key: w.Key, path: *w.Path}
			continue
		}
		lines[i] = buildScriptLine{opaque: w.Opaque}
	}
	b.lines = lines
	return nil
}

// RootOutput is the parsed, portable form of a build script's captured
// OUT_DIR: a single path.
type RootOutput struct {
	Path hpath.QualifiedPath
}

// ParseRootOutput parses a one-line OUT_DIR file against roots.
func ParseRootOutput(content string, roots hpath.Roots) (RootOutput, error) {
	line := strings.TrimRight(strings.TrimRight(content, "\n"), "\r")
	qp, err := hpath.Classify(line, roots)
	if err != nil {
		return RootOutput{}, err
	}
	return RootOutput{Path: qp}, nil
}

// Reconstruct rebuilds the one-line OUT_DIR file text against roots.
func (r RootOutput) Reconstruct(roots hpath.Roots) (string, error) {
	return hpath.Reconstruct(r.Path, roots)
}
