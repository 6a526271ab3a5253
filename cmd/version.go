package cmd

import (
	"fmt"

	"github.com/mabhi256/jprof/internal/snapshot"
	"github.com/spf13/cobra"
)

var (
	// This will be set by goreleaser
	version = "dev"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("jprof version %s (snapshot format %d.%d)\n", version, snapshot.MajorVersion, snapshot.MinorVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
