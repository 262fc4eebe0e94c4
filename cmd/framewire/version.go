package main

import (
	"fmt"
	"runtime"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/framewire/internal/protocol"
)

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Println(version)
				return
			}

			pterm.DefaultTable.WithData(pterm.TableData{
				{"Version", version},
				{"Commit", commit},
				{"Go version", runtime.Version()},
				{"OS/Arch", runtime.GOOS + "/" + runtime.GOARCH},
				{"Max frame", fmt.Sprintf("%d bytes", protocol.MaxFrameSize)},
			}).Render()
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only the version number")

	return cmd
}
