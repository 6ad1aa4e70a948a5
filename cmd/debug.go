package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/attunehq/hurry"
	"github.com/attunehq/hurry/cargo"
	"github.com/attunehq/hurry/cas"
	"github.com/attunehq/hurry/config"
	"github.com/attunehq/hurry/unitindex"
)

// NewDebugCmd groups operator-diagnostic subcommands, grouping in the
// teacher's way of nesting single-purpose diagnostics under one parent.
func NewDebugCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Diagnostic subcommands",
	}
	cmd.AddCommand(NewDebugCheckCmd())
	return cmd
}

// NewDebugCheckCmd loads the workspace, prints the resolved triples and
// path roots, and pings the CAS and index services if they're reachable.
// No auth or rate-limiting is involved; it only exercises the stateless
// Exists/healthcheck calls both clients already expose.
func NewDebugCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Print resolved workspace info and ping cache endpoints",
		RunE:  runDebugCheck,
	}
	cmd.Flags().String("target", "", "target triple to resolve for ($HURRY_TARGET)")
	cmd.Flags().StringP("output", "o", "human", "output format (human|plain|json|yaml)")
	return cmd
}

// checkResult is the Formatter-backed result of "hurry debug check".
type checkResult struct {
	WorkspaceRoot   string `json:"workspace_root" yaml:"workspace_root"`
	BuildDir        string `json:"build_dir" yaml:"build_dir"`
	HostTriple      string `json:"host_triple" yaml:"host_triple"`
	LibcVersion     string `json:"libc_version" yaml:"libc_version"`
	ResolvedTarget  string `json:"resolved_target" yaml:"resolved_target"`
	RegistryRoot    string `json:"registry_root" yaml:"registry_root"`
	CacheEndpoint   string `json:"cache_endpoint" yaml:"cache_endpoint"`
	IndexEndpoint   string `json:"index_endpoint" yaml:"index_endpoint"`
	CacheReachable  bool   `json:"cache_reachable" yaml:"cache_reachable"`
	CacheError      string `json:"cache_error,omitempty" yaml:"cache_error,omitempty"`
	IndexReachable  bool   `json:"index_reachable" yaml:"index_reachable"`
	IndexError      string `json:"index_error,omitempty" yaml:"index_error,omitempty"`
}

func (r checkResult) Human(w io.Writer) error {
	fmt.Fprintf(w, "workspace root:      %s\n", r.WorkspaceRoot)
	fmt.Fprintf(w, "build dir:           %s\n", r.BuildDir)
	fmt.Fprintf(w, "host triple:         %s\n", r.HostTriple)
	fmt.Fprintf(w, "libc version:        %s\n", r.LibcVersion)
	fmt.Fprintf(w, "resolved target:     %s\n", r.ResolvedTarget)
	fmt.Fprintf(w, "registry root:       %s\n", r.RegistryRoot)
	fmt.Fprintf(w, "cache endpoint:      %s\n", r.CacheEndpoint)
	fmt.Fprintf(w, "index endpoint:      %s\n", r.IndexEndpoint)
	if r.CacheReachable {
		fmt.Fprintf(w, "cache reachable:     yes\n")
	} else {
		fmt.Fprintf(w, "cache reachable:     no (%s)\n", r.CacheError)
	}
	if r.IndexReachable {
		fmt.Fprintf(w, "index reachable:     yes\n")
	} else {
		fmt.Fprintf(w, "index reachable:     no (%s)\n", r.IndexError)
	}
	return nil
}

func (r checkResult) Plain(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s %s %s %s %t %t\n", r.WorkspaceRoot, r.HostTriple, r.ResolvedTarget, r.LibcVersion, r.CacheReachable, r.IndexReachable)
	return err
}

func (r checkResult) JSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func (r checkResult) YAML(w io.Writer) error {
	bb, err := yaml.Marshal(r)
	if err != nil {
		return err
	}
	_, err = w.Write(bb)
	return err
}

func runDebugCheck(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.NewDefault()
	if err != nil {
		fmt.Fprintf(out, "error loading config at '%v': %v\n", config.ConfigPath(), err)
	}

	target, _ := cmd.Flags().GetString("target")
	ws, err := cargo.Load(cmd.Context(), nil, target, hurry.ProfileDebug)
	if err != nil {
		return err
	}

	result := checkResult{
		WorkspaceRoot:  ws.Root,
		BuildDir:       ws.BuildDir,
		HostTriple:     ws.Rustc.HostTriple,
		LibcVersion:    ws.Rustc.LibcVersion,
		ResolvedTarget: targetOrHost(ws),
		RegistryRoot:   ws.RegistryRoot,
		CacheEndpoint:  cfg.CacheEndpoint,
		IndexEndpoint:  cfg.IndexEndpoint,
	}

	store := cas.New(cfg.CacheEndpoint, nil)
	if _, err := store.Exists(cmd.Context(), hurry.ObjectKey("00")); err != nil {
		result.CacheError = err.Error()
	} else {
		result.CacheReachable = true
	}

	index := unitindex.New(cfg.IndexEndpoint, nil)
	if _, err := index.RestoreUnits(cmd.Context(), nil, ws.Rustc.LibcVersion); err != nil {
		result.IndexError = err.Error()
	} else {
		result.IndexReachable = true
	}

	format, _ := cmd.Flags().GetString("output")
	return write(out, result, format)
}

func targetOrHost(ws *cargo.Workspace) string {
	if ws.TargetTriple == "" {
		return ws.Rustc.HostTriple + " (implicit host)"
	}
	return ws.TargetTriple
}
