package cmd

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver"
	"github.com/ory/viper"
	"github.com/spf13/cobra"
)

// RootCommandConfig carries the values main() knows at link time (or that
// a test harness overrides) into the command tree.
type RootCommandConfig struct {
	Date    string
	Version string
	Hash    string
}

// NewRootCmd builds the hurry command tree. It has no action of its own;
// running the binary with no arguments prints usage.
func NewRootCmd(config RootCommandConfig) (*cobra.Command, error) {
	root := &cobra.Command{
		Use:           "hurry",
		Short:         "Unit-level build cache for cargo",
		SilenceErrors: true, // errors are printed explicitly in main()
		SilenceUsage:  true,
		Long: `hurry wraps a cargo invocation, restoring previously-saved compilation
units from a content-addressed cache before the build runs and saving
freshly-built units back afterward.`,
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("hurry")

	verbose := viper.GetBool("verbose")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", verbose, "print verbose logs")
	if err := viper.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose")); err != nil {
		return nil, err
	}

	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	version := Version{Date: config.Date, Vers: config.Version, Hash: config.Hash}
	root.Version = version.String()

	root.AddCommand(NewVersionCmd(version))
	root.AddCommand(NewBuildCmd())
	root.AddCommand(NewDebugCmd())
	root.AddCommand(NewCompletionCmd())

	return root, nil
}

// bindFunc conforms to the cobra PreRunE method signature.
type bindFunc func(*cobra.Command, []string) error

// bindEnv returns a bindFunc that binds env vars to the named flags.
func bindEnv(flags ...string) bindFunc {
	return func(cmd *cobra.Command, args []string) (err error) {
		for _, flag := range flags {
			if err = viper.BindPFlag(flag, cmd.Flags().Lookup(flag)); err != nil {
				return
			}
		}
		return
	}
}

// interactiveTerminal reports whether the attached process terminal is
// interactive, used to decide whether to prompt the user for first-run
// confirmations rather than silently assuming a default in a script.
func interactiveTerminal() bool {
	fi, err := os.Stdin.Stat()
	return err == nil && (fi.Mode()&os.ModeCharDevice) != 0
}

// Version is the value substituted into the --version template.
type Version struct {
	Date    string
	Vers    string
	Hash    string
	Verbose bool
}

func (v Version) String() string {
	if v.Vers == "" {
		v.Vers = "v0.0.0-source"
	}
	if _, err := semver.NewVersion(v.Vers); err != nil {
		fmt.Fprintf(os.Stderr, "hurry: build version %q is not valid semver: %v\n", v.Vers, err)
	}
	if v.Verbose {
		return fmt.Sprintf("%s-%s-%s", v.Vers, v.Hash, v.Date)
	}
	return v.Vers
}
