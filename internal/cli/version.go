package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the memoryd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("memoryd version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
