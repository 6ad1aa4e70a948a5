package cmd

import (
	"fmt"

	"github.com/ory/viper"
	"github.com/spf13/cobra"
)

// NewVersionCmd reports hurry's own build version, separate from the
// toolchain details (host triple, libc version) reported by
// "hurry debug check".
func NewVersionCmd(version Version) *cobra.Command {
	cmd := &cobra.Command{
		Use:        "version",
		Short:      "Print hurry's version",
		SuggestFor: []string{"vers"},
		PreRunE:    bindEnv("verbose"),
		Run: func(cmd *cobra.Command, _ []string) {
			v := version
			v.Verbose = viper.GetBool("verbose")
			fmt.Fprintln(cmd.OutOrStdout(), v.String())
		},
	}
	return cmd
}
