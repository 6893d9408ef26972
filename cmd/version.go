package cmd

import (
	"runtime"

	"github.com/spf13/cobra"
	"github.com/unihub/unihub/config"
)

var (
	version   = "0.1.0"
	goVersion = runtime.Version()
	platform  = runtime.GOOS + "/" + runtime.GOARCH
)

func versionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("UniHub version:", version)
			cmd.Println("Go version:", goVersion)
			cmd.Println("Platform:", platform)
			cmd.Println("Default API:", config.DefaultBaseURL)
		},
	}
	return cmd
}
