package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomlm/portapty/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(c *cobra.Command, args []string) {
			fmt.Printf("portapty version v%s\n", version.String())
		},
	}
}
