package cmd

import (
	"fmt"
	"os"

	survey "github.com/AlecAivazis/survey/v2"
	"github.com/ory/viper"
	"github.com/spf13/cobra"

	"github.com/attunehq/hurry"
	"github.com/attunehq/hurry/cas"
	"github.com/attunehq/hurry/config"
	"github.com/attunehq/hurry/orchestrator"
	"github.com/attunehq/hurry/unitindex"
)

// NewBuildCmd wraps a cargo build invocation with restore-before/save-after
// passes. Everything after "--" is forwarded to cargo verbatim.
func NewBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [flags] -- [cargo build args]",
		Short: "Build with hurry's unit cache",
		Long: `Runs "cargo build" with the given arguments, restoring previously-saved
compilation units from the cache beforehand and saving freshly-built
units back afterward. Everything after -- is forwarded to cargo unchanged.`,
		PreRunE: bindEnv("verbose", "target", "release", "wait"),
		RunE:    runBuild,
	}

	cmd.Flags().String("target", "", "target triple to build for ($HURRY_TARGET)")
	cmd.Flags().Bool("release", false, "build in release profile ($HURRY_RELEASE)")
	cmd.Flags().Bool("wait", false, "wait for the background save to finish before exiting ($HURRY_WAIT)")

	return cmd
}

func runBuild(cmd *cobra.Command, args []string) error {
	firstRun := !configFileExists()
	cfg, err := config.NewDefault()
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "error loading config at '%v': %v\n", config.ConfigPath(), err)
	}

	if firstRun && interactiveTerminal() {
		confirmed := cfg.DaemonAutoStart
		prompt := &survey.Confirm{
			Message: "Start a background hurryd daemon automatically to save builds asynchronously?",
			Default: cfg.DaemonAutoStart,
		}
		if err := survey.AskOne(prompt, &confirmed); err == nil {
			cfg.DaemonAutoStart = confirmed
			if err := cfg.Write(config.ConfigPath()); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "could not persist config: %v\n", err)
			}
		}
	}

	profile := hurry.ProfileDebug
	argv := append([]string(nil), args...)
	if viper.GetBool("release") {
		profile = hurry.ProfileRelease
		argv = append(argv, "--release")
	}
	if t := viper.GetString("target"); t != "" {
		argv = append(argv, "--target", t)
	}

	index := unitindex.New(cfg.IndexEndpoint, nil)
	store := cas.New(cfg.CacheEndpoint, nil)

	o := orchestrator.New(index, store)
	opts := orchestrator.Options{
		Argv:            argv,
		TargetTriple:    viper.GetString("target"),
		Profile:         profile,
		Verbose:         viper.GetBool("verbose"),
		Wait:            viper.GetBool("wait"),
		DaemonAutoStart: cfg.DaemonAutoStart,
		Log:             cmd.ErrOrStderr(),
	}
	return o.Run(cmd.Context(), opts)
}

// configFileExists reports whether a persisted global config file is
// already present, used to decide whether this is the very first
// invocation on this machine.
func configFileExists() bool {
	_, err := os.Stat(config.ConfigPath())
	return err == nil
}
